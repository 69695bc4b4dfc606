package audit

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventBookingCreated   = "BOOKING_CREATED"
	EventBookingAccepted  = "BOOKING_ACCEPTED"
	EventBookingRejected  = "BOOKING_REJECTED"
	EventBookingCancelled = "BOOKING_CANCELLED"
	EventBookingCompleted = "BOOKING_COMPLETED"
	EventBookingReviewed  = "BOOKING_REVIEWED"
	EventBookingSurveyed  = "BOOKING_SURVEYED"
	EventBookingExpired   = "BOOKING_EXPIRED"

	EventUserCreated     = "USER_CREATED"
	EventUserRoleChanged = "USER_ROLE_CHANGED"
	EventUserEnabled     = "USER_ENABLED"
	EventUserDisabled    = "USER_DISABLED"
	EventAvailabilitySet = "AVAILABILITY_REPLACED"
)

type Event struct {
	ID        int64
	EventType string
	ActorID   *uuid.UUID
	TargetID  *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// Login is one entry of the login log shown in admin reports.
type Login struct {
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	LoggedInAt time.Time `json:"logged_in_at"`
}
