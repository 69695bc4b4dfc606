package booking

import (
	"errors"
	"time"
)

var ErrDuplicateBooking = errors.New("patient already holds an active booking for this specialty on this date")

// CheckDuplicate refuses a new booking when the patient already holds an
// active one for the same specialty on the same local calendar date.
// sameDay compares dates in the clinic's time zone.
func CheckDuplicate(existing []Booking, specialty string, instant time.Time, sameDay func(a, b time.Time) bool) error {
	for _, b := range existing {
		if !b.Status.Active() {
			continue
		}
		if b.Specialty != specialty {
			continue
		}
		if sameDay(b.Instant, instant) {
			return ErrDuplicateBooking
		}
	}
	return nil
}
