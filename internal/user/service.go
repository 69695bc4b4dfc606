package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-appointments/internal/audit"
	"github.com/hackgods/clinic-appointments/internal/availability"
)

var userTracer = otel.Tracer("clinic.internal.user")

type Service struct {
	repo   Repository
	audit  *audit.Recorder
	logger zerolog.Logger
}

func NewService(repo Repository, rec *audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		audit:  rec,
		logger: logger,
	}
}

// Identity is what the identity provider tells us about the caller.
type Identity struct {
	ID            uuid.UUID
	Email         string
	EmailVerified bool
}

// Register stores the profile of a freshly signed-up identity. Patients are
// enabled right away; specialists wait for an administrator.
func (s *Service) Register(ctx context.Context, id Identity, p Profile) (*User, error) {
	ctx, span := userTracer.Start(ctx, "user.register")
	defer span.End()

	if p.Role != RolePatient && p.Role != RoleSpecialist {
		return nil, fmt.Errorf("%w: self registration is only for patients and specialists", ErrInvalidRole)
	}

	u, err := newUser(id.ID, id.Email, p)
	if err != nil {
		return nil, err
	}
	u.EmailVerified = id.EmailVerified
	u.Enabled = u.Role != RoleSpecialist

	if err := s.repo.Create(ctx, u); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.audit.Record(ctx, audit.EventUserCreated, u.ID, u.ID, map[string]any{"role": u.Role, "self": true})
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("user registered")
	return u, nil
}

// CreateByAdmin stores a profile of any role on behalf of an administrator.
func (s *Service) CreateByAdmin(ctx context.Context, actor Actor, id Identity, p Profile) (*User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if !p.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if id.ID == uuid.Nil {
		id.ID = uuid.New()
	}

	u, err := newUser(id.ID, id.Email, p)
	if err != nil {
		return nil, err
	}
	u.EmailVerified = id.EmailVerified
	u.Enabled = true

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.EventUserCreated, actor.ID, u.ID, map[string]any{"role": u.Role, "self": false})
	return u, nil
}

func newUser(id uuid.UUID, email string, p Profile) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	nationalID := digitsOnly(p.NationalID)

	switch {
	case id == uuid.Nil:
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidProfile)
	case email == "" || !strings.Contains(email, "@"):
		return nil, fmt.Errorf("%w: email is required", ErrInvalidProfile)
	case strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "":
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidProfile)
	case p.Age <= 0 || p.Age > 120:
		return nil, fmt.Errorf("%w: age must be between 1 and 120", ErrInvalidProfile)
	case nationalID == "":
		return nil, fmt.Errorf("%w: national id is required", ErrInvalidProfile)
	case p.Role == RolePatient && strings.TrimSpace(p.HealthInsurance) == "":
		return nil, fmt.Errorf("%w: patients must provide a health insurance", ErrInvalidProfile)
	}

	u := &User{
		ID:         id,
		Email:      email,
		Role:       p.Role,
		FirstName:  strings.TrimSpace(p.FirstName),
		LastName:   strings.TrimSpace(p.LastName),
		Age:        p.Age,
		NationalID: nationalID,
	}

	switch p.Role {
	case RolePatient:
		u.HealthInsurance = strings.TrimSpace(p.HealthInsurance)
	case RoleSpecialist:
		u.Specialties = cleanSpecialties(p.Specialties)
		if len(u.Specialties) == 0 {
			return nil, fmt.Errorf("%w: specialists need at least one specialty", ErrInvalidProfile)
		}
	}

	return u, nil
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func cleanSpecialties(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, role Role) ([]User, error) {
	if role != "" && !role.Valid() {
		return nil, ErrInvalidRole
	}
	users, err := s.repo.List(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Service) UpdateRole(ctx context.Context, actor Actor, id uuid.UUID, role Role) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.EventUserRoleChanged, actor.ID, id, map[string]any{"role": role})
	return nil
}

// SetEnabled toggles whether a specialist can log in and receive bookings.
// Only specialists carry this flag.
func (s *Service) SetEnabled(ctx context.Context, actor Actor, id uuid.UUID, enabled bool) error {
	ctx, span := userTracer.Start(ctx, "user.set_enabled")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.user_id", id.String()), attribute.Bool("clinic.enabled", enabled))

	if !actor.IsAdmin() {
		return ErrForbidden
	}

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.Role != RoleSpecialist {
		return ErrNotSpecialist
	}

	if err := s.repo.SetEnabled(ctx, id, enabled); err != nil {
		span.RecordError(err)
		return err
	}

	event := audit.EventUserDisabled
	if enabled {
		event = audit.EventUserEnabled
	}
	s.audit.Record(ctx, event, actor.ID, id, map[string]any{
		"email":  u.Email,
		"before": map[string]bool{"enabled": u.Enabled},
		"after":  map[string]bool{"enabled": enabled},
	})
	return nil
}

// ReplaceAvailability overwrites the rules of one specialty. The specialist
// may edit their own schedule; administrators may edit anyone's.
func (s *Service) ReplaceAvailability(ctx context.Context, actor Actor, specialistID uuid.UUID, specialty string, rules []availability.Rule) error {
	ctx, span := userTracer.Start(ctx, "user.replace_availability")
	defer span.End()

	if !actor.IsAdmin() && !actor.Is(specialistID) {
		return ErrForbidden
	}

	u, err := s.repo.GetByID(ctx, specialistID)
	if err != nil {
		return err
	}
	if u.Role != RoleSpecialist {
		return ErrNotSpecialist
	}
	if !u.Offers(specialty) {
		return ErrSpecialtyNotOffered
	}
	if err := availability.ValidateRules(rules); err != nil {
		return err
	}

	if err := s.repo.ReplaceAvailability(ctx, specialistID, specialty, rules); err != nil {
		span.RecordError(err)
		return err
	}

	s.audit.Record(ctx, audit.EventAvailabilitySet, actor.ID, specialistID, map[string]any{
		"specialty": specialty,
		"rules":     rules,
	})
	return nil
}

// RecordLogin is called once the identity provider has authenticated the
// caller. Unverified emails (except for administrators) and disabled
// specialists are turned away.
func (s *Service) RecordLogin(ctx context.Context, id Identity) (*User, error) {
	u, err := s.repo.GetByID(ctx, id.ID)
	if err != nil {
		return nil, err
	}

	if id.EmailVerified && !u.EmailVerified {
		if err := s.repo.MarkEmailVerified(ctx, u.ID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("could not store email verification")
		} else {
			u.EmailVerified = true
		}
	}

	if u.Role != RoleAdmin && !u.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	if u.Role == RoleSpecialist && !u.Enabled {
		return nil, ErrSpecialistDisabled
	}

	s.audit.RecordLogin(ctx, u.ID, u.Email, string(u.Role))
	return u, nil
}
