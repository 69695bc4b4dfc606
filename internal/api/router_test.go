package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointments/internal/audit"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/availability"
	"github.com/hackgods/clinic-appointments/internal/booking"
	"github.com/hackgods/clinic-appointments/internal/report"
	"github.com/hackgods/clinic-appointments/internal/user"
	"github.com/hackgods/clinic-appointments/pkg/logging"
)

const secret = "test-secret"

type stubUsers struct {
	users map[uuid.UUID]*user.User
}

func (s *stubUsers) Register(_ context.Context, id user.Identity, p user.Profile) (*user.User, error) {
	u := &user.User{ID: id.ID, Email: id.Email, Role: p.Role, FirstName: p.FirstName, LastName: p.LastName}
	s.users[id.ID] = u
	return u, nil
}

func (s *stubUsers) CreateByAdmin(_ context.Context, actor user.Actor, id user.Identity, p user.Profile) (*user.User, error) {
	if !actor.IsAdmin() {
		return nil, user.ErrForbidden
	}
	return &user.User{ID: id.ID, Role: p.Role}, nil
}

func (s *stubUsers) Get(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (s *stubUsers) List(_ context.Context, role user.Role) ([]user.User, error) {
	var out []user.User
	for _, u := range s.users {
		if role == "" || u.Role == role {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *stubUsers) UpdateRole(context.Context, user.Actor, uuid.UUID, user.Role) error { return nil }

func (s *stubUsers) SetEnabled(_ context.Context, actor user.Actor, _ uuid.UUID, _ bool) error {
	if !actor.IsAdmin() {
		return user.ErrForbidden
	}
	return nil
}

func (s *stubUsers) ReplaceAvailability(context.Context, user.Actor, uuid.UUID, string, []availability.Rule) error {
	return nil
}

func (s *stubUsers) RecordLogin(_ context.Context, id user.Identity) (*user.User, error) {
	if !id.EmailVerified {
		return nil, user.ErrEmailNotVerified
	}
	return s.Get(context.Background(), id.ID)
}

type stubBookings struct {
	createErr error
	created   booking.CreateRequest
	slots     []availability.Slot
	slotDay   time.Time
	specialty string
}

func (s *stubBookings) Create(_ context.Context, actor user.Actor, req booking.CreateRequest) (*booking.Booking, error) {
	s.created = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &booking.Booking{ID: uuid.New(), PatientID: actor.ID, SpecialistID: req.SpecialistID, Status: booking.StatusRequested}, nil
}

func (s *stubBookings) Accept(context.Context, user.Actor, uuid.UUID) (*booking.Booking, error) {
	return nil, booking.ErrInvalidTransition
}

func (s *stubBookings) Reject(context.Context, user.Actor, uuid.UUID, string) (*booking.Booking, error) {
	return nil, booking.ErrReasonRequired
}

func (s *stubBookings) Cancel(_ context.Context, _ user.Actor, id uuid.UUID, reason string) (*booking.Booking, error) {
	return &booking.Booking{ID: id, Status: booking.StatusCancelled, CancellationReason: reason}, nil
}

func (s *stubBookings) Complete(context.Context, user.Actor, uuid.UUID, booking.ClinicalRecord) (*booking.Booking, error) {
	return nil, errors.New("connection reset by peer")
}

func (s *stubBookings) Review(context.Context, user.Actor, uuid.UUID, string) (*booking.Booking, error) {
	return nil, booking.ErrAlreadyReviewed
}

func (s *stubBookings) SubmitSurvey(context.Context, user.Actor, uuid.UUID, string) (*booking.Booking, error) {
	return nil, booking.ErrNotCompleted
}

func (s *stubBookings) Get(context.Context, user.Actor, uuid.UUID) (*booking.Booking, error) {
	return nil, booking.ErrBookingNotFound
}

func (s *stubBookings) List(_ context.Context, _ user.Actor, q booking.Query) (booking.Page, error) {
	return booking.Page{Items: []booking.Booking{}, Limit: q.Limit, Offset: q.Offset}, nil
}

func (s *stubBookings) History(context.Context, user.Actor, uuid.UUID) ([]booking.Booking, error) {
	return []booking.Booking{}, nil
}

func (s *stubBookings) PatientsOf(context.Context, user.Actor, uuid.UUID) ([]booking.PatientSummary, error) {
	return nil, user.ErrForbidden
}

func (s *stubBookings) DaysFor(context.Context, uuid.UUID, string) ([]time.Time, error) {
	return []time.Time{time.Date(2024, time.May, 13, 0, 0, 0, 0, time.UTC)}, nil
}

func (s *stubBookings) SlotsFor(_ context.Context, _ uuid.UUID, specialty string, day time.Time) ([]availability.Slot, error) {
	s.slotDay, s.specialty = day, specialty
	return s.slots, nil
}

func (s *stubBookings) Location() *time.Location { return time.UTC }

type stubReports struct{ *report.Service }

func (stubReports) BySpecialty(_ context.Context, actor user.Actor) ([]report.Slice, error) {
	if !actor.IsAdmin() {
		return nil, user.ErrForbidden
	}
	return report.Pie([]report.Count{{Label: "Cardiology", Value: 1}}), nil
}

func (stubReports) Logins(context.Context, user.Actor, int, int) ([]audit.Login, error) {
	return []audit.Login{{UserID: uuid.Nil, Email: "a@b.test", Role: "admin", LoggedInAt: time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)}}, nil
}

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	handler    http.Handler
	users      *stubUsers
	bookings   *stubBookings
	patient    *user.User
	specialist *user.User
	admin      *user.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	patient := &user.User{ID: uuid.New(), Role: user.RolePatient, Enabled: true, EmailVerified: true}
	specialist := &user.User{
		ID:            uuid.New(),
		Role:          user.RoleSpecialist,
		Enabled:       true,
		EmailVerified: true,
		Email:         "house@clinic.test",
		NationalID:    "30111222",
		FirstName:     "Gregory",
		LastName:      "House",
		Specialties:   []string{"Cardiology"},
	}
	disabled := &user.User{ID: uuid.New(), Role: user.RoleSpecialist, Enabled: false}
	admin := &user.User{ID: uuid.New(), Role: user.RoleAdmin, Enabled: true, EmailVerified: true}

	users := &stubUsers{users: map[uuid.UUID]*user.User{
		patient.ID: patient, specialist.ID: specialist, disabled.ID: disabled, admin.ID: admin,
	}}
	bookings := &stubBookings{}

	handler := NewRouter(RouterConfig{
		Users:     users,
		Bookings:  bookings,
		Reports:   stubReports{Service: report.NewService(nil, nil, time.UTC)},
		PgPool:    okPinger{},
		Redis:     rdb,
		JWTSecret: secret,
		Logger:    logging.Nop(),
		Env:       "test",
		Version:   "v0",
	})

	return &testServer{handler: handler, users: users, bookings: bookings, patient: patient, specialist: specialist, admin: admin}
}

func (s *testServer) do(t *testing.T, as uuid.UUID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.doAs(t, user.Identity{ID: as, EmailVerified: true}, method, path, body)
}

func (s *testServer) doAs(t *testing.T, id user.Identity, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if id.ID != uuid.Nil {
		token, err := auth.Sign(secret, id, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, uuid.Nil, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, uuid.Nil, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"v0","env":"test","dependencies":{"postgres":"ok","redis":"ok"}}`, rec.Body.String())
}

func TestReadinessPostgresDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := NewHealthHandler(okPinger{err: errors.New("down")}, rdb, "test", "v0")
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postgres":"down"`)
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, uuid.Nil, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, uuid.Nil, http.MethodGet, "/bookings", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, uuid.New(), http.MethodGet, "/bookings", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_registered", errorCode(t, rec))
}

func TestDisabledSpecialistIsTurnedAway(t *testing.T) {
	s := newTestServer(t)
	var disabled uuid.UUID
	for id, u := range s.users.users {
		if u.Role == user.RoleSpecialist && !u.Enabled {
			disabled = id
		}
	}

	rec := s.do(t, disabled, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "specialist_disabled", errorCode(t, rec))
}

func TestRegisterBeforeActorExists(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New()

	rec := s.do(t, id, http.MethodPost, "/register", map[string]any{"role": "patient", "first_name": "Ana"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, s.users.users, id)

	rec = s.do(t, id, http.MethodPost, "/me/login", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateBooking(t *testing.T) {
	s := newTestServer(t)
	instant := time.Date(2024, time.May, 10, 9, 30, 0, 0, time.UTC)

	rec := s.do(t, s.patient.ID, http.MethodPost, "/bookings", map[string]any{
		"specialist_id": s.specialist.ID.String(),
		"specialty":     "Cardiology",
		"instant":       instant,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, s.bookings.created.Instant.Equal(instant))
	assert.Equal(t, uuid.Nil, s.bookings.created.PatientID)

	rec = s.do(t, s.patient.ID, http.MethodPost, "/bookings", map[string]any{"specialist_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_specialist_id", errorCode(t, rec))
}

func TestBookingErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{booking.ErrDuplicateBooking, http.StatusConflict, "duplicate_booking"},
		{booking.ErrSlotOccupied, http.StatusConflict, "slot_occupied"},
		{booking.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
		{booking.ErrSlotUnavailable, http.StatusBadRequest, "slot_unavailable"},
		{user.ErrSpecialistDisabled, http.StatusForbidden, "specialist_disabled"},
		{errors.New("load patient: " + user.ErrUserNotFound.Error()), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			s := newTestServer(t)
			s.bookings.createErr = tc.err

			rec := s.do(t, s.patient.ID, http.MethodPost, "/bookings", map[string]any{
				"specialist_id": s.specialist.ID.String(),
				"specialty":     "Cardiology",
				"instant":       time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC),
			})
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, errorCode(t, rec))
		})
	}
}

func TestLifecycleRoutes(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New().String()

	rec := s.do(t, s.specialist.ID, http.MethodPost, "/bookings/"+id+"/accept", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", errorCode(t, rec))

	rec = s.do(t, s.patient.ID, http.MethodPost, "/bookings/"+id+"/cancel", ReasonRequest{Reason: "sick"})
	require.Equal(t, http.StatusOK, rec.Code)
	var b booking.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, booking.StatusCancelled, b.Status)
	assert.Equal(t, "sick", b.CancellationReason)

	rec = s.do(t, s.specialist.ID, http.MethodPost, "/bookings/"+id+"/complete", CompleteRequest{})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")

	rec = s.do(t, s.patient.ID, http.MethodPost, "/bookings/"+id+"/review", ReviewRequest{Comment: "ok"})
	assert.Equal(t, "already_reviewed", errorCode(t, rec))

	rec = s.do(t, s.patient.ID, http.MethodGet, "/bookings/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, s.patient.ID, http.MethodGet, "/bookings/not-a-uuid", nil)
	assert.Equal(t, "invalid_id", errorCode(t, rec))
}

func TestSlotsRoute(t *testing.T) {
	s := newTestServer(t)
	monday := time.Date(2024, time.May, 13, 8, 0, 0, 0, time.UTC)
	s.bookings.slots = []availability.Slot{{Instant: monday, Occupied: true}}

	rec := s.do(t, s.patient.ID, http.MethodGet,
		"/specialists/"+s.specialist.ID.String()+"/slots?specialty=Cardiology&date=2024-05-13", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SlotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2024-05-13", resp.Date)
	require.Len(t, resp.Slots, 1)
	assert.True(t, resp.Slots[0].Occupied)
	assert.Equal(t, "Cardiology", s.bookings.specialty)

	rec = s.do(t, s.patient.ID, http.MethodGet,
		"/specialists/"+s.specialist.ID.String()+"/slots?specialty=Cardiology&date=13/05/2024", nil)
	assert.Equal(t, "invalid_date", errorCode(t, rec))

	rec = s.do(t, s.patient.ID, http.MethodGet, "/specialists/"+s.specialist.ID.String()+"/days", nil)
	assert.Equal(t, "invalid_specialty", errorCode(t, rec))

	rec = s.do(t, s.patient.ID, http.MethodGet, "/specialists/"+s.specialist.ID.String()+"/days?specialty=Cardiology", nil)
	assert.JSONEq(t, `{"specialist_id":"`+s.specialist.ID.String()+`","specialty":"Cardiology","days":["2024-05-13"]}`, rec.Body.String())
}

func TestListUsersForPatientsShowsBookableSpecialists(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, s.patient.ID, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []user.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, s.specialist.ID, users[0].ID)

	rec = s.do(t, s.patient.ID, http.MethodGet, "/users?role=admin", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, s.admin.ID, http.MethodGet, "/users", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 4)
}

func TestSetEnabledRequiresBody(t *testing.T) {
	s := newTestServer(t)
	path := "/users/" + s.specialist.ID.String() + "/enabled"

	rec := s.do(t, s.admin.ID, http.MethodPut, path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, s.admin.ID, http.MethodPut, path, map[string]any{"enabled": false})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, s.patient.ID, http.MethodPut, path, map[string]any{"enabled": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReportRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, s.patient.ID, http.MethodGet, "/reports/specialties", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, s.admin.ID, http.MethodGet, "/reports/specialties", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "M 1 0 A 1 1 0 1 1 -1 0")

	rec = s.do(t, s.admin.ID, http.MethodGet, "/reports/logins.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "user_id,email,role,logged_in_at\n"))
}

func TestUnverifiedEmailIsTurnedAway(t *testing.T) {
	s := newTestServer(t)
	unverified := &user.User{ID: uuid.New(), Role: user.RolePatient, Enabled: true}
	s.users.users[unverified.ID] = unverified

	body := map[string]any{
		"specialist_id": s.specialist.ID.String(),
		"specialty":     "Cardiology",
		"instant":       time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC),
	}

	rec := s.doAs(t, user.Identity{ID: unverified.ID}, http.MethodPost, "/bookings", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "email_not_verified", errorCode(t, rec))

	rec = s.doAs(t, user.Identity{ID: unverified.ID}, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A token issued after verification is accepted before the next login
	// records the flag.
	rec = s.doAs(t, user.Identity{ID: unverified.ID, EmailVerified: true}, http.MethodPost, "/bookings", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUnverifiedAdminIsLetThrough(t *testing.T) {
	s := newTestServer(t)
	s.admin.EmailVerified = false

	rec := s.doAs(t, user.Identity{ID: s.admin.ID}, http.MethodGet, "/users", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSpecialistProfileHidesPrivateFields(t *testing.T) {
	s := newTestServer(t)
	path := "/users/" + s.specialist.ID.String()

	rec := s.do(t, s.patient.ID, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"first_name":"Gregory"`)
	assert.NotContains(t, rec.Body.String(), "national_id")
	assert.NotContains(t, rec.Body.String(), "house@clinic.test")

	rec = s.do(t, s.patient.ID, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "national_id")
	assert.NotContains(t, rec.Body.String(), "email")

	rec = s.do(t, s.admin.ID, http.MethodGet, path, nil)
	assert.Contains(t, rec.Body.String(), `"national_id":"30111222"`)

	rec = s.do(t, s.specialist.ID, http.MethodGet, path, nil)
	assert.Contains(t, rec.Body.String(), "house@clinic.test")
}
