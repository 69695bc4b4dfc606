package user

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/availability"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RolePatient    Role = "patient"
	RoleSpecialist Role = "specialist"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePatient, RoleSpecialist:
		return true
	}
	return false
}

type User struct {
	ID              uuid.UUID             `json:"id"`
	Email           string                `json:"email"`
	Role            Role                  `json:"role"`
	Enabled         bool                  `json:"enabled"`
	FirstName       string                `json:"first_name"`
	LastName        string                `json:"last_name"`
	Age             int                   `json:"age"`
	NationalID      string                `json:"national_id"`
	HealthInsurance string                `json:"health_insurance,omitempty"`
	Specialties     []string              `json:"specialties,omitempty"`
	EmailVerified   bool                  `json:"email_verified"`
	Availability    availability.Schedule `json:"availability,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Offers reports whether the user is a specialist offering specialty.
func (u *User) Offers(specialty string) bool {
	if u.Role != RoleSpecialist {
		return false
	}
	for _, s := range u.Specialties {
		if s == specialty {
			return true
		}
	}
	return false
}

// Bookable reports whether patients can currently book with this user.
func (u *User) Bookable() bool {
	return u.Role == RoleSpecialist && u.Enabled
}

// Specialist is what patients see of a specialist: no contact or identity
// document fields.
type Specialist struct {
	ID           uuid.UUID             `json:"id"`
	Role         Role                  `json:"role"`
	FirstName    string                `json:"first_name"`
	LastName     string                `json:"last_name"`
	Specialties  []string              `json:"specialties,omitempty"`
	Availability availability.Schedule `json:"availability,omitempty"`
}

func (u *User) Public() Specialist {
	return Specialist{
		ID:           u.ID,
		Role:         u.Role,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Specialties:  u.Specialties,
		Availability: u.Availability,
	}
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Is reports whether the actor is the given user.
func (a Actor) Is(id uuid.UUID) bool { return a.ID == id }

// Profile is the user-supplied part of a registration.
type Profile struct {
	Role            Role     `json:"role"`
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Age             int      `json:"age"`
	NationalID      string   `json:"national_id"`
	HealthInsurance string   `json:"health_insurance,omitempty"`
	Specialties     []string `json:"specialties,omitempty"`
}
