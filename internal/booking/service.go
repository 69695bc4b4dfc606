package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-appointments/internal/audit"
	"github.com/hackgods/clinic-appointments/internal/availability"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/metrics"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
	"github.com/hackgods/clinic-appointments/internal/user"
)

const ExpiredReason = "request expired without confirmation"

var (
	ErrNotPatient       = errors.New("bookings can only be made for patients")
	ErrSlotUnavailable  = errors.New("instant is not an offered slot for this specialist")
	ErrSlotBeingBooked  = errors.New("slot is currently being booked, please retry")
	ErrReasonRequired   = errors.New("a reason is required")
	ErrCommentRequired  = errors.New("comment must not be empty")
	ErrResponseRequired = errors.New("survey response must not be empty")
	ErrNotCompleted     = errors.New("booking is not completed")
)

var bookingTracer = otel.Tracer("clinic.internal.booking")

// UserLookup resolves patients and specialists.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

type Service struct {
	repo    Repository
	users   UserLookup
	locker  redisclient.Locker
	audit   *audit.Recorder
	metrics *metrics.BookingMetrics
	gen     availability.Generator
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(
	repo Repository,
	users UserLookup,
	locker redisclient.Locker,
	rec *audit.Recorder,
	m *metrics.BookingMetrics,
	cfg config.Config,
	logger zerolog.Logger,
) *Service {
	gen := availability.NewGenerator(cfg.Location)
	if cfg.SlotDays > 0 {
		gen.MaxDays = cfg.SlotDays
	}
	if cfg.SlotScanDays > 0 {
		gen.ScanDays = cfg.SlotScanDays
	}

	return &Service{
		repo:    repo,
		users:   users,
		locker:  locker,
		audit:   rec,
		metrics: m,
		gen:     gen,
		logger:  logger,
		now:     time.Now,
	}
}

// Create books a slot. Occupancy and the duplicate guard run while holding
// Redis locks on the slot and on the patient's specialty day, so concurrent
// requests for either cannot both pass.
func (s *Service) Create(ctx context.Context, actor user.Actor, req CreateRequest) (*Booking, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.create")
	defer span.End()

	switch actor.Role {
	case user.RolePatient:
		if req.PatientID == uuid.Nil {
			req.PatientID = actor.ID
		}
		if req.PatientID != actor.ID {
			return nil, user.ErrForbidden
		}
	case user.RoleAdmin:
	default:
		return nil, user.ErrForbidden
	}

	patient, err := s.users.GetByID(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if patient.Role != user.RolePatient {
		return nil, ErrNotPatient
	}

	specialist, err := s.users.GetByID(ctx, req.SpecialistID)
	if err != nil {
		return nil, fmt.Errorf("load specialist: %w", err)
	}
	if err := checkBookable(specialist, req.Specialty); err != nil {
		return nil, err
	}

	instant := req.Instant.In(s.gen.Location)
	if !s.gen.Bookable(specialist.Availability[req.Specialty], instant, s.now()) {
		return nil, ErrSlotUnavailable
	}

	span.SetAttributes(
		attribute.String("clinic.specialist_id", specialist.ID.String()),
		attribute.String("clinic.specialty", req.Specialty),
	)

	keys := []string{
		redisclient.SlotKey(specialist.ID, instant),
		redisclient.PatientDayKey(patient.ID, req.Specialty, instant.Format(time.DateOnly)),
	}

	var created *Booking

	err = s.locker.WithLocks(ctx, keys, func(lockCtx context.Context) error {
		// Inside the critical section re-read the specialist's day and the patient's bookings
		dayStart := s.gen.Midnight(instant)
		taken, err := s.repo.ListBySpecialistBetween(lockCtx, specialist.ID, dayStart, dayStart.AddDate(0, 0, 1))
		if err != nil {
			return fmt.Errorf("load specialist bookings: %w", err)
		}
		marked := availability.MarkOccupied([]availability.Slot{{Instant: instant}}, Occupants(taken))
		if marked[0].Occupied {
			return ErrSlotOccupied
		}

		existing, err := s.repo.ListByPatient(lockCtx, patient.ID)
		if err != nil {
			return fmt.Errorf("load patient bookings: %w", err)
		}
		if err := CheckDuplicate(existing, req.Specialty, instant, s.gen.SameDay); err != nil {
			return err
		}

		b := &Booking{
			ID:             uuid.New(),
			PatientID:      patient.ID,
			SpecialistID:   specialist.ID,
			Specialty:      req.Specialty,
			Instant:        instant,
			Status:         StatusRequested,
			PatientName:    patient.FullName(),
			SpecialistName: specialist.FullName(),
		}
		if err := s.repo.Insert(lockCtx, b); err != nil {
			return err
		}
		created = b

		s.audit.Record(lockCtx, audit.EventBookingCreated, actor.ID, b.ID, map[string]any{
			"patient_id":    b.PatientID.String(),
			"specialist_id": b.SpecialistID.String(),
			"specialty":     b.Specialty,
			"instant":       b.Instant,
		})
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			s.metrics.ObserveConflict("locked")
			return nil, ErrSlotBeingBooked
		case errors.Is(err, ErrSlotOccupied):
			s.metrics.ObserveConflict("occupied")
			return nil, err
		case errors.Is(err, ErrDuplicateBooking):
			s.metrics.ObserveConflict("duplicate")
			return nil, err
		}
		span.RecordError(err)
		return nil, err
	}

	s.metrics.ObserveCreated(created.Specialty)
	s.logger.Info().
		Str("booking_id", created.ID.String()).
		Str("specialist_id", created.SpecialistID.String()).
		Time("instant", created.Instant).
		Msg("booking created")

	return created, nil
}

func checkBookable(specialist *user.User, specialty string) error {
	switch {
	case specialist.Role != user.RoleSpecialist:
		return user.ErrNotSpecialist
	case !specialist.Enabled:
		return user.ErrSpecialistDisabled
	case !specialist.Offers(specialty):
		return user.ErrSpecialtyNotOffered
	}
	return nil
}

// Occupants converts bookings into the view the occupancy filter needs.
func Occupants(bookings []Booking) []availability.Occupant {
	out := make([]availability.Occupant, len(bookings))
	for i, b := range bookings {
		out[i] = availability.Occupant{Instant: b.Instant, Active: b.Status.Active()}
	}
	return out
}

func (s *Service) Accept(ctx context.Context, actor user.Actor, id uuid.UUID) (*Booking, error) {
	return s.transition(ctx, actor, id, ActionAccept, Change{}, isSpecialistOf(actor), audit.EventBookingAccepted)
}

func (s *Service) Reject(ctx context.Context, actor user.Actor, id uuid.UUID, reason string) (*Booking, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return s.transition(ctx, actor, id, ActionReject, Change{Reason: reason}, isSpecialistOf(actor), audit.EventBookingRejected)
}

// Cancel may be issued by the patient, the specialist or an administrator.
func (s *Service) Cancel(ctx context.Context, actor user.Actor, id uuid.UUID, reason string) (*Booking, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return s.transition(ctx, actor, id, ActionCancel, Change{Reason: reason}, isParticipant(actor), audit.EventBookingCancelled)
}

func (s *Service) Complete(ctx context.Context, actor user.Actor, id uuid.UUID, record ClinicalRecord) (*Booking, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, ActionComplete, Change{ClinicalRecord: &record}, isSpecialistOf(actor), audit.EventBookingCompleted)
}

func (s *Service) transition(
	ctx context.Context,
	actor user.Actor,
	id uuid.UUID,
	action Action,
	change Change,
	allowed func(*Booking) bool,
	event string,
) (*Booking, error) {
	ctx, span := bookingTracer.Start(ctx, "booking."+string(action),
		trace.WithAttributes(attribute.String("clinic.booking_id", id.String())))
	defer span.End()

	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowed(b) {
		return nil, user.ErrForbidden
	}

	to, err := Next(b.Status, action)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, b.ID, b.Status, to, change)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s booking: %w", action, err)
	}

	details := map[string]any{"from": b.Status, "to": to}
	if change.Reason != "" {
		details["reason"] = change.Reason
	}
	s.audit.Record(ctx, event, actor.ID, updated.ID, details)
	s.metrics.ObserveTransition(string(to))

	return updated, nil
}

func isSpecialistOf(actor user.Actor) func(*Booking) bool {
	return func(b *Booking) bool {
		return actor.Role == user.RoleSpecialist && actor.Is(b.SpecialistID)
	}
}

func isPatientOf(actor user.Actor) func(*Booking) bool {
	return func(b *Booking) bool {
		return actor.Role == user.RolePatient && actor.Is(b.PatientID)
	}
}

func isParticipant(actor user.Actor) func(*Booking) bool {
	return func(b *Booking) bool {
		return actor.IsAdmin() || isPatientOf(actor)(b) || isSpecialistOf(actor)(b)
	}
}

// Review stores the patient's comment on a completed visit. It can be left once.
func (s *Service) Review(ctx context.Context, actor user.Actor, id uuid.UUID, comment string) (*Booking, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, ErrCommentRequired
	}

	b, err := s.completedFor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if b.Comment != "" {
		return nil, ErrAlreadyReviewed
	}

	updated, err := s.repo.SetComment(ctx, id, comment)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.EventBookingReviewed, actor.ID, id, nil)
	return updated, nil
}

// SubmitSurvey stores the patient's questionnaire answer on a completed visit.
func (s *Service) SubmitSurvey(ctx context.Context, actor user.Actor, id uuid.UUID, response string) (*Booking, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, ErrResponseRequired
	}

	b, err := s.completedFor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if b.Survey != nil {
		return nil, ErrAlreadySurveyed
	}

	updated, err := s.repo.SetSurvey(ctx, id, Survey{Response: response, SubmittedAt: s.now()})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.EventBookingSurveyed, actor.ID, id, nil)
	return updated, nil
}

func (s *Service) completedFor(ctx context.Context, actor user.Actor, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isPatientOf(actor)(b) {
		return nil, user.ErrForbidden
	}
	if b.Status != StatusCompleted {
		return nil, ErrNotCompleted
	}
	return b, nil
}

func (s *Service) Get(ctx context.Context, actor user.Actor, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParticipant(actor)(b) {
		return nil, user.ErrForbidden
	}
	return b, nil
}

// List returns the bookings visible to the actor: their own as a patient or
// specialist, every booking for an administrator.
func (s *Service) List(ctx context.Context, actor user.Actor, q Query) (Page, error) {
	switch actor.Role {
	case user.RolePatient:
		return s.ListForPatient(ctx, actor, actor.ID, q)
	case user.RoleSpecialist:
		return s.ListForSpecialist(ctx, actor, actor.ID, q)
	case user.RoleAdmin:
		return s.ListAll(ctx, actor, q)
	}
	return Page{}, user.ErrForbidden
}

func (s *Service) ListForPatient(ctx context.Context, actor user.Actor, patientID uuid.UUID, q Query) (Page, error) {
	if !actor.IsAdmin() && !actor.Is(patientID) {
		return Page{}, user.ErrForbidden
	}
	bookings, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return Page{}, fmt.Errorf("list bookings by patient: %w", err)
	}
	return Apply(bookings, q, s.gen.Location), nil
}

func (s *Service) ListForSpecialist(ctx context.Context, actor user.Actor, specialistID uuid.UUID, q Query) (Page, error) {
	if !actor.IsAdmin() && !actor.Is(specialistID) {
		return Page{}, user.ErrForbidden
	}
	bookings, err := s.repo.ListBySpecialist(ctx, specialistID)
	if err != nil {
		return Page{}, fmt.Errorf("list bookings by specialist: %w", err)
	}
	return Apply(bookings, q, s.gen.Location), nil
}

func (s *Service) ListAll(ctx context.Context, actor user.Actor, q Query) (Page, error) {
	if !actor.IsAdmin() {
		return Page{}, user.ErrForbidden
	}
	bookings, err := s.repo.ListAll(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("list bookings: %w", err)
	}
	return Apply(bookings, q, s.gen.Location), nil
}

// History is the patient's clinical history: completed visits, newest first.
// Besides the patient and administrators, any specialist who has seen the
// patient may read it.
func (s *Service) History(ctx context.Context, actor user.Actor, patientID uuid.UUID) ([]Booking, error) {
	bookings, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	history := make([]Booking, 0, len(bookings))
	treated := false
	for _, b := range bookings {
		if b.Status != StatusCompleted {
			continue
		}
		if actor.Role == user.RoleSpecialist && actor.Is(b.SpecialistID) {
			treated = true
		}
		history = append(history, b)
	}

	if !actor.IsAdmin() && !actor.Is(patientID) && !treated {
		return nil, user.ErrForbidden
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Instant.After(history[j].Instant)
	})
	return history, nil
}

// PatientSummary is one patient a specialist has seen.
type PatientSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	LastVisit time.Time `json:"last_visit"`
}

// PatientsOf lists the patients with at least one completed visit with the
// specialist, most recently seen first.
func (s *Service) PatientsOf(ctx context.Context, actor user.Actor, specialistID uuid.UUID) ([]PatientSummary, error) {
	if !actor.IsAdmin() && !actor.Is(specialistID) {
		return nil, user.ErrForbidden
	}

	bookings, err := s.repo.ListBySpecialist(ctx, specialistID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by specialist: %w", err)
	}

	byID := map[uuid.UUID]*PatientSummary{}
	for _, b := range bookings {
		if b.Status != StatusCompleted {
			continue
		}
		p, ok := byID[b.PatientID]
		if !ok {
			byID[b.PatientID] = &PatientSummary{ID: b.PatientID, Name: b.PatientName, LastVisit: b.Instant}
			continue
		}
		if b.Instant.After(p.LastVisit) {
			p.LastVisit = b.Instant
		}
	}

	out := make([]PatientSummary, 0, len(byID))
	for _, p := range byID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastVisit.Equal(out[j].LastVisit) {
			return out[i].LastVisit.After(out[j].LastVisit)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// ExpireStaleRequests cancels requested bookings whose instant has passed
// without the specialist acting. It is intended to be called by the worker
// periodically and returns how many bookings it cancelled.
func (s *Service) ExpireStaleRequests(ctx context.Context) (int, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.expire")
	defer span.End()

	stale, err := s.repo.FindStaleRequests(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("find stale requests: %w", err)
	}

	expired := 0
	for _, b := range stale {
		_, err := s.repo.UpdateStatus(ctx, b.ID, StatusRequested, StatusCancelled, Change{Reason: ExpiredReason})
		if err != nil {
			if !errors.Is(err, ErrStatusChanged) {
				s.logger.Error().Err(err).Str("booking_id", b.ID.String()).Msg("failed to expire booking")
			}
			continue
		}
		expired++
		s.audit.Record(ctx, audit.EventBookingExpired, uuid.Nil, b.ID, map[string]any{
			"reason":  ExpiredReason,
			"instant": b.Instant,
		})
	}

	s.metrics.ObserveExpired(expired)
	return expired, nil
}

// DaysFor lists the upcoming dates on which the specialist offers specialty.
func (s *Service) DaysFor(ctx context.Context, specialistID uuid.UUID, specialty string) ([]time.Time, error) {
	specialist, err := s.users.GetByID(ctx, specialistID)
	if err != nil {
		return nil, err
	}
	if err := checkBookable(specialist, specialty); err != nil {
		return nil, err
	}
	return s.gen.Days(specialist.Availability[specialty], s.now()), nil
}

// SlotsFor lists the slots of one day with occupied ones marked. Days outside
// the bookable horizon have no slots.
func (s *Service) SlotsFor(ctx context.Context, specialistID uuid.UUID, specialty string, day time.Time) ([]availability.Slot, error) {
	specialist, err := s.users.GetByID(ctx, specialistID)
	if err != nil {
		return nil, err
	}
	if err := checkBookable(specialist, specialty); err != nil {
		return nil, err
	}

	rules := specialist.Availability[specialty]
	offered := false
	for _, d := range s.gen.Days(rules, s.now()) {
		if s.gen.SameDay(d, day) {
			offered = true
			break
		}
	}
	if !offered {
		return []availability.Slot{}, nil
	}

	slots := s.gen.Slots(rules, day)
	if len(slots) == 0 {
		return []availability.Slot{}, nil
	}

	dayStart := s.gen.Midnight(day)
	taken, err := s.repo.ListBySpecialistBetween(ctx, specialistID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load specialist bookings: %w", err)
	}
	return availability.MarkOccupied(slots, Occupants(taken)), nil
}

// Location is the clinic time zone used for calendar dates.
func (s *Service) Location() *time.Location {
	return s.gen.Location
}
