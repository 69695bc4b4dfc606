package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrSlotOccupied    = errors.New("slot is already booked")
	ErrStatusChanged   = errors.New("booking status changed concurrently, reload and retry")
	ErrAlreadyReviewed = errors.New("booking already has a review")
	ErrAlreadySurveyed = errors.New("booking survey was already submitted")
)

// Change carries the fields stored alongside a status transition.
type Change struct {
	Reason         string
	ClinicalRecord *ClinicalRecord
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Booking, error)
	Insert(ctx context.Context, b *Booking) error

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Booking, error)
	ListBySpecialist(ctx context.Context, specialistID uuid.UUID) ([]Booking, error)
	ListAll(ctx context.Context) ([]Booking, error)

	// ListBySpecialistBetween returns the specialist's bookings in [from, to).
	ListBySpecialistBetween(ctx context.Context, specialistID uuid.UUID, from, to time.Time) ([]Booking, error)

	// UpdateStatus moves a booking from one status to another. It fails with
	// ErrStatusChanged when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, change Change) (*Booking, error)

	SetComment(ctx context.Context, id uuid.UUID, comment string) (*Booking, error)
	SetSurvey(ctx context.Context, id uuid.UUID, survey Survey) (*Booking, error)

	// FindStaleRequests lists requested bookings whose instant is before now.
	FindStaleRequests(ctx context.Context, now time.Time) ([]Booking, error)
}
