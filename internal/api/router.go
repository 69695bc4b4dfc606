package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/audit"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/availability"
	"github.com/hackgods/clinic-appointments/internal/booking"
	"github.com/hackgods/clinic-appointments/internal/metrics"
	"github.com/hackgods/clinic-appointments/internal/report"
	"github.com/hackgods/clinic-appointments/internal/user"
)

type UserService interface {
	Register(ctx context.Context, id user.Identity, p user.Profile) (*user.User, error)
	CreateByAdmin(ctx context.Context, actor user.Actor, id user.Identity, p user.Profile) (*user.User, error)
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
	List(ctx context.Context, role user.Role) ([]user.User, error)
	UpdateRole(ctx context.Context, actor user.Actor, id uuid.UUID, role user.Role) error
	SetEnabled(ctx context.Context, actor user.Actor, id uuid.UUID, enabled bool) error
	ReplaceAvailability(ctx context.Context, actor user.Actor, specialistID uuid.UUID, specialty string, rules []availability.Rule) error
	RecordLogin(ctx context.Context, id user.Identity) (*user.User, error)
}

type BookingService interface {
	Create(ctx context.Context, actor user.Actor, req booking.CreateRequest) (*booking.Booking, error)
	Accept(ctx context.Context, actor user.Actor, id uuid.UUID) (*booking.Booking, error)
	Reject(ctx context.Context, actor user.Actor, id uuid.UUID, reason string) (*booking.Booking, error)
	Cancel(ctx context.Context, actor user.Actor, id uuid.UUID, reason string) (*booking.Booking, error)
	Complete(ctx context.Context, actor user.Actor, id uuid.UUID, record booking.ClinicalRecord) (*booking.Booking, error)
	Review(ctx context.Context, actor user.Actor, id uuid.UUID, comment string) (*booking.Booking, error)
	SubmitSurvey(ctx context.Context, actor user.Actor, id uuid.UUID, response string) (*booking.Booking, error)
	Get(ctx context.Context, actor user.Actor, id uuid.UUID) (*booking.Booking, error)
	List(ctx context.Context, actor user.Actor, q booking.Query) (booking.Page, error)
	History(ctx context.Context, actor user.Actor, patientID uuid.UUID) ([]booking.Booking, error)
	PatientsOf(ctx context.Context, actor user.Actor, specialistID uuid.UUID) ([]booking.PatientSummary, error)
	DaysFor(ctx context.Context, specialistID uuid.UUID, specialty string) ([]time.Time, error)
	SlotsFor(ctx context.Context, specialistID uuid.UUID, specialty string, day time.Time) ([]availability.Slot, error)
	Location() *time.Location
}

type ReportService interface {
	BySpecialty(ctx context.Context, actor user.Actor) ([]report.Slice, error)
	ByWeekday(ctx context.Context, actor user.Actor) ([]report.Bar, error)
	RequestedBySpecialist(ctx context.Context, actor user.Actor, from, to time.Time) ([]report.Bar, error)
	CompletedBySpecialist(ctx context.Context, actor user.Actor, from, to time.Time) ([]report.Bar, error)
	Logins(ctx context.Context, actor user.Actor, limit, offset int) ([]audit.Login, error)
	WriteLoginsCSV(w io.Writer, logins []audit.Login) error
}

type RouterConfig struct {
	Users     UserService
	Bookings  BookingService
	Reports   ReportService
	Metrics   *metrics.BookingMetrics
	PgPool    Pinger
	Redis     RedisPinger
	JWTSecret string
	Logger    zerolog.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	h := &handlers{
		users:    cfg.Users,
		bookings: cfg.Bookings,
		reports:  cfg.Reports,
		logger:   cfg.Logger,
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(cfg.JWTSecret))

		// Identity endpoints that work before the user is registered
		r.Post("/register", h.register)
		r.Post("/me/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(ActorMiddleware(cfg.Users))

			r.Get("/me", h.me)

			r.Post("/users", h.createUser)
			r.Get("/users", h.listUsers)
			r.Get("/users/{id}", h.getUser)
			r.Put("/users/{id}/role", h.updateRole)
			r.Put("/users/{id}/enabled", h.setEnabled)

			r.Put("/specialists/{id}/availability/{specialty}", h.replaceAvailability)
			r.Get("/specialists/{id}/days", h.days)
			r.Get("/specialists/{id}/slots", h.slots)
			r.Get("/specialists/{id}/patients", h.patientsOf)

			r.Post("/bookings", h.createBooking)
			r.Get("/bookings", h.listBookings)
			r.Get("/bookings/{id}", h.getBooking)
			r.Post("/bookings/{id}/accept", h.acceptBooking)
			r.Post("/bookings/{id}/reject", h.rejectBooking)
			r.Post("/bookings/{id}/cancel", h.cancelBooking)
			r.Post("/bookings/{id}/complete", h.completeBooking)
			r.Post("/bookings/{id}/review", h.reviewBooking)
			r.Post("/bookings/{id}/survey", h.surveyBooking)

			r.Get("/patients/{id}/history", h.history)

			r.Get("/reports/specialties", h.reportSpecialties)
			r.Get("/reports/weekdays", h.reportWeekdays)
			r.Get("/reports/specialists", h.reportSpecialists)
			r.Get("/reports/logins", h.reportLogins)
			r.Get("/reports/logins.csv", h.reportLoginsCSV)
		})
	})

	return r
}
