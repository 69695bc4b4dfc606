package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/availability"
	"github.com/hackgods/clinic-appointments/internal/booking"
	"github.com/hackgods/clinic-appointments/internal/user"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type RegisterRequest struct {
	user.Profile
}

type CreateUserRequest struct {
	ID            string `json:"id,omitempty"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	user.Profile
}

type UpdateRoleRequest struct {
	Role user.Role `json:"role"`
}

type SetEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type ReplaceAvailabilityRequest struct {
	Rules []availability.Rule `json:"rules"`
}

type CreateBookingRequest struct {
	PatientID    string    `json:"patient_id,omitempty"`
	SpecialistID string    `json:"specialist_id"`
	Specialty    string    `json:"specialty"`
	Instant      time.Time `json:"instant"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type CompleteRequest struct {
	ClinicalRecord booking.ClinicalRecord `json:"clinical_record"`
}

type ReviewRequest struct {
	Comment string `json:"comment"`
}

type SurveyRequest struct {
	Response string `json:"response"`
}

type DaysResponse struct {
	SpecialistID uuid.UUID `json:"specialist_id"`
	Specialty    string    `json:"specialty"`
	Days         []string  `json:"days"`
}

type SlotsResponse struct {
	SpecialistID uuid.UUID           `json:"specialist_id"`
	Specialty    string              `json:"specialty"`
	Date         string              `json:"date"`
	Slots        []availability.Slot `json:"slots"`
}
