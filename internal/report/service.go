package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hackgods/clinic-appointments/internal/audit"
	"github.com/hackgods/clinic-appointments/internal/booking"
	"github.com/hackgods/clinic-appointments/internal/user"
)

const (
	unspecifiedSpecialty = "Unspecified"
	unknownSpecialist    = "Unknown"
)

type BookingSource interface {
	ListAll(ctx context.Context) ([]booking.Booking, error)
}

type LoginSource interface {
	Logins(ctx context.Context, limit, offset int) ([]audit.Login, error)
}

// Service builds the administrator reports. Every method is admin only.
type Service struct {
	bookings BookingSource
	logins   LoginSource
	loc      *time.Location
}

func NewService(bookings BookingSource, logins LoginSource, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{bookings: bookings, logins: logins, loc: loc}
}

func (s *Service) load(ctx context.Context, actor user.Actor) ([]booking.Booking, error) {
	if !actor.IsAdmin() {
		return nil, user.ErrForbidden
	}
	all, err := s.bookings.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	return all, nil
}

// BySpecialty counts every booking per specialty as pie slices.
func (s *Service) BySpecialty(ctx context.Context, actor user.Actor) ([]Slice, error) {
	all, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, b := range all {
		label := strings.TrimSpace(b.Specialty)
		if label == "" {
			label = unspecifiedSpecialty
		}
		counts[label]++
	}
	return Pie(sortCounts(counts)), nil
}

// ByWeekday counts bookings per local weekday, Sunday first.
func (s *Service) ByWeekday(ctx context.Context, actor user.Actor) ([]Bar, error) {
	all, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}

	var perDay [7]int
	for _, b := range all {
		perDay[b.Instant.In(s.loc).Weekday()]++
	}

	counts := make([]Count, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		counts[d] = Count{Label: d.String(), Value: perDay[d]}
	}
	return Bars(counts), nil
}

// RequestedBySpecialist counts bookings per specialist whose local date lies
// in [from, to], both inclusive.
func (s *Service) RequestedBySpecialist(ctx context.Context, actor user.Actor, from, to time.Time) ([]Bar, error) {
	return s.bySpecialist(ctx, actor, from, to, func(booking.Booking) bool { return true })
}

// CompletedBySpecialist is RequestedBySpecialist restricted to completed visits.
func (s *Service) CompletedBySpecialist(ctx context.Context, actor user.Actor, from, to time.Time) ([]Bar, error) {
	return s.bySpecialist(ctx, actor, from, to, func(b booking.Booking) bool {
		return b.Status == booking.StatusCompleted
	})
}

func (s *Service) bySpecialist(ctx context.Context, actor user.Actor, from, to time.Time, keep func(booking.Booking) bool) ([]Bar, error) {
	all, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}

	start := s.midnight(from)
	end := s.midnight(to).AddDate(0, 0, 1)

	counts := map[string]int{}
	for _, b := range all {
		if b.Instant.Before(start) || !b.Instant.Before(end) || !keep(b) {
			continue
		}
		label := strings.TrimSpace(b.SpecialistName)
		if label == "" {
			label = unknownSpecialist
		}
		counts[label]++
	}
	return Bars(sortCounts(counts)), nil
}

func (s *Service) midnight(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func (s *Service) Logins(ctx context.Context, actor user.Actor, limit, offset int) ([]audit.Login, error) {
	if !actor.IsAdmin() {
		return nil, user.ErrForbidden
	}
	logins, err := s.logins.Logins(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("load logins: %w", err)
	}
	return logins, nil
}

// WriteLoginsCSV writes the login log as CSV with times in the clinic zone.
func (s *Service) WriteLoginsCSV(w io.Writer, logins []audit.Login) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"user_id", "email", "role", "logged_in_at"}); err != nil {
		return fmt.Errorf("logins csv: write header: %w", err)
	}
	for _, l := range logins {
		record := []string{
			l.UserID.String(),
			l.Email,
			l.Role,
			l.LoggedInAt.In(s.loc).Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("logins csv: write record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
