package user

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/availability"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAlreadyRegistered   = errors.New("user is already registered")
	ErrEmailTaken          = errors.New("email is already in use")
	ErrNationalIDTaken     = errors.New("national id is already registered")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidProfile      = errors.New("invalid profile")
	ErrNotSpecialist       = errors.New("user is not a specialist")
	ErrSpecialtyNotOffered = errors.New("specialist does not offer this specialty")
	ErrForbidden           = errors.New("operation not allowed for this user")
	ErrEmailNotVerified    = errors.New("email address is not verified")
	ErrSpecialistDisabled  = errors.New("specialist account is not enabled")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	List(ctx context.Context, role Role) ([]User, error)
	Create(ctx context.Context, u *User) error

	UpdateRole(ctx context.Context, id uuid.UUID, role Role) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error

	// ReplaceAvailability swaps the full rule list of one specialty.
	ReplaceAvailability(ctx context.Context, specialistID uuid.UUID, specialty string, rules []availability.Rule) error
}
