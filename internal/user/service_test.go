package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointments/internal/audit"
	"github.com/hackgods/clinic-appointments/internal/availability"
	"github.com/hackgods/clinic-appointments/pkg/logging"
)

type fakeRepo struct {
	users map[uuid.UUID]*User
}

func newFakeRepo(users ...*User) *fakeRepo {
	f := &fakeRepo{users: map[uuid.UUID]*User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) List(_ context.Context, role Role) ([]User, error) {
	var out []User
	for _, u := range f.users {
		if role == "" || u.Role == role {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeRepo) Create(_ context.Context, u *User) error {
	if _, ok := f.users[u.ID]; ok {
		return ErrAlreadyRegistered
	}
	for _, existing := range f.users {
		if existing.NationalID == u.NationalID {
			return ErrNationalIDTaken
		}
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeRepo) UpdateRole(_ context.Context, id uuid.UUID, role Role) error {
	u, ok := f.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (f *fakeRepo) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	u, ok := f.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Enabled = enabled
	return nil
}

func (f *fakeRepo) MarkEmailVerified(_ context.Context, id uuid.UUID) error {
	u, ok := f.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.EmailVerified = true
	return nil
}

func (f *fakeRepo) ReplaceAvailability(_ context.Context, id uuid.UUID, specialty string, rules []availability.Rule) error {
	u, ok := f.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if u.Availability == nil {
		u.Availability = availability.Schedule{}
	}
	u.Availability[specialty] = rules
	return nil
}

type auditLog struct {
	events []audit.Event
	logins []audit.Login
}

func (a *auditLog) InsertEvent(_ context.Context, ev audit.Event) error {
	a.events = append(a.events, ev)
	return nil
}

func (a *auditLog) InsertLogin(_ context.Context, l audit.Login) error {
	a.logins = append(a.logins, l)
	return nil
}

func (a *auditLog) ListLogins(_ context.Context, _, _ int) ([]audit.Login, error) {
	return a.logins, nil
}

func newTestService(users ...*User) (*Service, *fakeRepo, *auditLog) {
	repo := newFakeRepo(users...)
	log := &auditLog{}
	return NewService(repo, audit.NewRecorder(log, logging.Nop()), logging.Nop()), repo, log
}

var admin = Actor{ID: uuid.New(), Role: RoleAdmin}

func specialist(enabled bool) *User {
	return &User{
		ID:            uuid.New(),
		Email:         "wilson@clinic.test",
		Role:          RoleSpecialist,
		Enabled:       enabled,
		FirstName:     "James",
		LastName:      "Wilson",
		Age:           45,
		NationalID:    "30111222",
		Specialties:   []string{"Cardiology", "Oncology"},
		EmailVerified: true,
	}
}

func TestRegisterPatient(t *testing.T) {
	svc, repo, log := newTestService()
	id := uuid.New()

	u, err := svc.Register(context.Background(), Identity{ID: id, Email: " Ana@Clinic.test ", EmailVerified: false}, Profile{
		Role:            RolePatient,
		FirstName:       "Ana",
		LastName:        "Gómez",
		Age:             31,
		NationalID:      "30.123.456",
		HealthInsurance: "OSDE",
	})
	require.NoError(t, err)

	assert.Equal(t, "ana@clinic.test", u.Email)
	assert.Equal(t, "30123456", u.NationalID)
	assert.True(t, u.Enabled)
	assert.Contains(t, repo.users, id)
	require.Len(t, log.events, 1)
	assert.Equal(t, audit.EventUserCreated, log.events[0].EventType)
}

func TestRegisterSpecialistStartsDisabled(t *testing.T) {
	svc, _, _ := newTestService()

	u, err := svc.Register(context.Background(), Identity{ID: uuid.New(), Email: "doc@clinic.test"}, Profile{
		Role:        RoleSpecialist,
		FirstName:   "Lisa",
		LastName:    "Cuddy",
		Age:         48,
		NationalID:  "20999888",
		Specialties: []string{" Endocrinology ", "Endocrinology", ""},
	})
	require.NoError(t, err)

	assert.False(t, u.Enabled)
	assert.Equal(t, []string{"Endocrinology"}, u.Specialties)
}

func TestRegisterRejectsInvalidProfiles(t *testing.T) {
	base := Profile{Role: RolePatient, FirstName: "A", LastName: "B", Age: 30, NationalID: "123", HealthInsurance: "OSDE"}

	cases := map[string]func(p *Profile){
		"admin role":          func(p *Profile) { p.Role = RoleAdmin },
		"missing name":        func(p *Profile) { p.FirstName = " " },
		"zero age":            func(p *Profile) { p.Age = 0 },
		"non numeric id":      func(p *Profile) { p.NationalID = "abc" },
		"no insurance":        func(p *Profile) { p.HealthInsurance = "" },
		"specialist no field": func(p *Profile) { p.Role = RoleSpecialist; p.Specialties = nil },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _, _ := newTestService()
			p := base
			mutate(&p)
			_, err := svc.Register(context.Background(), Identity{ID: uuid.New(), Email: "x@y.test"}, p)
			assert.Error(t, err)
		})
	}
}

func TestRegisterDuplicateNationalID(t *testing.T) {
	existing := specialist(true)
	svc, _, _ := newTestService(existing)

	_, err := svc.Register(context.Background(), Identity{ID: uuid.New(), Email: "x@y.test"}, Profile{
		Role: RolePatient, FirstName: "A", LastName: "B", Age: 30, NationalID: "30-111-222", HealthInsurance: "OSDE",
	})
	assert.ErrorIs(t, err, ErrNationalIDTaken)
}

func TestUpdateRoleRequiresAdmin(t *testing.T) {
	u := specialist(true)
	svc, repo, log := newTestService(u)

	err := svc.UpdateRole(context.Background(), Actor{ID: u.ID, Role: RoleSpecialist}, u.ID, RoleAdmin)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.UpdateRole(context.Background(), admin, u.ID, RolePatient))
	assert.Equal(t, RolePatient, repo.users[u.ID].Role)
	require.Len(t, log.events, 1)
	assert.Equal(t, audit.EventUserRoleChanged, log.events[0].EventType)
}

func TestSetEnabledOnlyForSpecialists(t *testing.T) {
	doc := specialist(false)
	patient := &User{ID: uuid.New(), Role: RolePatient, Enabled: true}
	svc, repo, log := newTestService(doc, patient)

	require.NoError(t, svc.SetEnabled(context.Background(), admin, doc.ID, true))
	assert.True(t, repo.users[doc.ID].Enabled)
	require.Len(t, log.events, 1)
	assert.Equal(t, audit.EventUserEnabled, log.events[0].EventType)
	assert.JSONEq(t,
		`{"email":"wilson@clinic.test","before":{"enabled":false},"after":{"enabled":true}}`,
		string(log.events[0].Payload))

	assert.ErrorIs(t, svc.SetEnabled(context.Background(), admin, patient.ID, false), ErrNotSpecialist)
	assert.ErrorIs(t, svc.SetEnabled(context.Background(), Actor{ID: doc.ID, Role: RoleSpecialist}, doc.ID, false), ErrForbidden)
}

func TestReplaceAvailability(t *testing.T) {
	doc := specialist(true)
	svc, repo, _ := newTestService(doc)
	self := Actor{ID: doc.ID, Role: RoleSpecialist}
	rules := []availability.Rule{{DayOfWeek: time.Monday, Start: "09:00", End: "12:00"}}

	require.NoError(t, svc.ReplaceAvailability(context.Background(), self, doc.ID, "Cardiology", rules))
	assert.Equal(t, rules, repo.users[doc.ID].Availability["Cardiology"])

	assert.ErrorIs(t,
		svc.ReplaceAvailability(context.Background(), self, doc.ID, "Dermatology", rules),
		ErrSpecialtyNotOffered)

	assert.ErrorIs(t,
		svc.ReplaceAvailability(context.Background(), Actor{ID: uuid.New(), Role: RolePatient}, doc.ID, "Cardiology", rules),
		ErrForbidden)

	bad := []availability.Rule{{DayOfWeek: time.Monday, Start: "12:00", End: "09:00"}}
	assert.ErrorIs(t,
		svc.ReplaceAvailability(context.Background(), admin, doc.ID, "Cardiology", bad),
		availability.ErrEmptyWindow)
}

func TestRecordLogin(t *testing.T) {
	t.Run("marks email verified", func(t *testing.T) {
		p := &User{ID: uuid.New(), Email: "p@clinic.test", Role: RolePatient, Enabled: true}
		svc, repo, log := newTestService(p)

		u, err := svc.RecordLogin(context.Background(), Identity{ID: p.ID, EmailVerified: true})
		require.NoError(t, err)
		assert.True(t, u.EmailVerified)
		assert.True(t, repo.users[p.ID].EmailVerified)
		require.Len(t, log.logins, 1)
		assert.Equal(t, "patient", log.logins[0].Role)
	})

	t.Run("unverified patient refused", func(t *testing.T) {
		p := &User{ID: uuid.New(), Role: RolePatient, Enabled: true}
		svc, _, log := newTestService(p)

		_, err := svc.RecordLogin(context.Background(), Identity{ID: p.ID})
		assert.ErrorIs(t, err, ErrEmailNotVerified)
		assert.Empty(t, log.logins)
	})

	t.Run("unverified admin allowed", func(t *testing.T) {
		a := &User{ID: uuid.New(), Role: RoleAdmin, Enabled: true}
		svc, _, _ := newTestService(a)

		_, err := svc.RecordLogin(context.Background(), Identity{ID: a.ID})
		assert.NoError(t, err)
	})

	t.Run("disabled specialist refused", func(t *testing.T) {
		doc := specialist(false)
		svc, _, _ := newTestService(doc)

		_, err := svc.RecordLogin(context.Background(), Identity{ID: doc.ID, EmailVerified: true})
		assert.ErrorIs(t, err, ErrSpecialistDisabled)
	})
}
