package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/availability"
	"github.com/hackgods/clinic-appointments/internal/booking"
	"github.com/hackgods/clinic-appointments/internal/user"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{user.ErrForbidden, http.StatusForbidden, "forbidden"},
	{user.ErrEmailNotVerified, http.StatusForbidden, "email_not_verified"},
	{user.ErrSpecialistDisabled, http.StatusForbidden, "specialist_disabled"},

	{user.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{booking.ErrBookingNotFound, http.StatusNotFound, "booking_not_found"},

	{user.ErrInvalidRole, http.StatusBadRequest, "invalid_role"},
	{user.ErrInvalidProfile, http.StatusBadRequest, "invalid_profile"},
	{user.ErrNotSpecialist, http.StatusBadRequest, "not_specialist"},
	{user.ErrSpecialtyNotOffered, http.StatusBadRequest, "specialty_not_offered"},
	{availability.ErrInvalidDay, http.StatusBadRequest, "invalid_availability"},
	{availability.ErrInvalidClock, http.StatusBadRequest, "invalid_availability"},
	{availability.ErrEmptyWindow, http.StatusBadRequest, "invalid_availability"},
	{booking.ErrNotPatient, http.StatusBadRequest, "not_patient"},
	{booking.ErrSlotUnavailable, http.StatusBadRequest, "slot_unavailable"},
	{booking.ErrReasonRequired, http.StatusBadRequest, "reason_required"},
	{booking.ErrCommentRequired, http.StatusBadRequest, "comment_required"},
	{booking.ErrResponseRequired, http.StatusBadRequest, "response_required"},
	{booking.ErrInvalidRecord, http.StatusBadRequest, "invalid_clinical_record"},

	{user.ErrAlreadyRegistered, http.StatusConflict, "already_registered"},
	{user.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{user.ErrNationalIDTaken, http.StatusConflict, "national_id_taken"},
	{booking.ErrSlotOccupied, http.StatusConflict, "slot_occupied"},
	{booking.ErrDuplicateBooking, http.StatusConflict, "duplicate_booking"},
	{booking.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
	{booking.ErrInvalidTransition, http.StatusConflict, "invalid_status_transition"},
	{booking.ErrStatusChanged, http.StatusConflict, "status_changed"},
	{booking.ErrNotCompleted, http.StatusConflict, "booking_not_completed"},
	{booking.ErrAlreadyReviewed, http.StatusConflict, "already_reviewed"},
	{booking.ErrAlreadySurveyed, http.StatusConflict, "already_surveyed"},
}

// writeServiceError maps domain errors to a status and a machine code.
// Anything unknown is logged and reported as a generic internal error.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}

	logger.Error().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", GetRequestID(r.Context())).
		Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
}
