package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/booking"
	"github.com/hackgods/clinic-appointments/internal/user"
)

type handlers struct {
	users    UserService
	bookings BookingService
	reports  ReportService
	logger   zerolog.Logger
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(w, r, h.logger, err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Users

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.users.Register(r.Context(), id, req.Profile)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	u, err := h.users.RecordLogin(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), actorFrom(r).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decode(w, r, &req) {
		return
	}

	var id uuid.UUID
	if req.ID != "" {
		parsed, err := uuid.Parse(req.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
			return
		}
		id = parsed
	}

	u, err := h.users.CreateByAdmin(r.Context(), actorFrom(r), user.Identity{
		ID:            id,
		Email:         req.Email,
		EmailVerified: req.EmailVerified,
	}, req.Profile)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// listUsers gives administrators every user. Everybody else may only browse
// the public profiles of the enabled specialists they can book with.
func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	role := user.Role(r.URL.Query().Get("role"))

	if !actor.IsAdmin() {
		if role != "" && role != user.RoleSpecialist {
			writeError(w, http.StatusForbidden, "forbidden", user.ErrForbidden.Error())
			return
		}
		role = user.RoleSpecialist
	}

	users, err := h.users.List(r.Context(), role)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if !actor.IsAdmin() {
		visible := []user.Specialist{}
		for _, u := range users {
			if u.Bookable() {
				visible = append(visible, u.Public())
			}
		}
		writeJSON(w, http.StatusOK, visible)
		return
	}
	if users == nil {
		users = []user.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *handlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	actor := actorFrom(r)
	switch {
	case actor.IsAdmin() || actor.Is(id):
		writeJSON(w, http.StatusOK, u)
	case u.Bookable():
		writeJSON(w, http.StatusOK, u.Public())
	default:
		h.fail(w, r, user.ErrForbidden)
	}
}

func (h *handlers) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.users.UpdateRole(r.Context(), actorFrom(r), id, req.Role); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SetEnabledRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "enabled is required")
		return
	}

	if err := h.users.SetEnabled(r.Context(), actorFrom(r), id, *req.Enabled); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Specialists

func specialtyParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	specialty, err := url.PathUnescape(chi.URLParam(r, "specialty"))
	if err != nil || specialty == "" {
		writeError(w, http.StatusBadRequest, "invalid_specialty", "specialty is required")
		return "", false
	}
	return specialty, true
}

func specialtyQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	specialty := r.URL.Query().Get("specialty")
	if specialty == "" {
		writeError(w, http.StatusBadRequest, "invalid_specialty", "specialty query parameter is required")
		return "", false
	}
	return specialty, true
}

func (h *handlers) replaceAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	specialty, ok := specialtyParam(w, r)
	if !ok {
		return
	}
	var req ReplaceAvailabilityRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.users.ReplaceAvailability(r.Context(), actorFrom(r), id, specialty, req.Rules); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) days(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	specialty, ok := specialtyQuery(w, r)
	if !ok {
		return
	}

	days, err := h.bookings.DaysFor(r.Context(), id, specialty)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := DaysResponse{SpecialistID: id, Specialty: specialty, Days: make([]string, len(days))}
	for i, d := range days {
		resp.Days[i] = d.Format(time.DateOnly)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) slots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	specialty, ok := specialtyQuery(w, r)
	if !ok {
		return
	}
	day, err := time.ParseInLocation(time.DateOnly, r.URL.Query().Get("date"), h.bookings.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be formatted as YYYY-MM-DD")
		return
	}

	slots, err := h.bookings.SlotsFor(r.Context(), id, specialty, day)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SlotsResponse{
		SpecialistID: id,
		Specialty:    specialty,
		Date:         day.Format(time.DateOnly),
		Slots:        slots,
	})
}

func (h *handlers) patientsOf(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	patients, err := h.bookings.PatientsOf(r.Context(), actorFrom(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

// Bookings

func (h *handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !decode(w, r, &req) {
		return
	}

	specialistID, err := uuid.Parse(req.SpecialistID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_specialist_id", "specialist_id must be a valid UUID")
		return
	}

	var patientID uuid.UUID
	if req.PatientID != "" {
		patientID, err = uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
	}

	if req.Specialty == "" || req.Instant.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "specialty and instant are required")
		return
	}

	b, err := h.bookings.Create(r.Context(), actorFrom(r), booking.CreateRequest{
		PatientID:    patientID,
		SpecialistID: specialistID,
		Specialty:    req.Specialty,
		Instant:      req.Instant,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *handlers) listBookings(w http.ResponseWriter, r *http.Request) {
	page, err := h.bookings.List(r.Context(), actorFrom(r), booking.Query{
		Term:   r.URL.Query().Get("q"),
		Limit:  queryInt(r, "limit", booking.DefaultPageSize),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	b, err := h.bookings.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handlers) respondBooking(w http.ResponseWriter, r *http.Request, b *booking.Booking, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handlers) acceptBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := h.bookings.Accept(r.Context(), actorFrom(r), id)
	h.respondBooking(w, r, b, err)
}

func (h *handlers) rejectBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ReasonRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := h.bookings.Reject(r.Context(), actorFrom(r), id, req.Reason)
	h.respondBooking(w, r, b, err)
}

func (h *handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ReasonRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := h.bookings.Cancel(r.Context(), actorFrom(r), id, req.Reason)
	h.respondBooking(w, r, b, err)
}

func (h *handlers) completeBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CompleteRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := h.bookings.Complete(r.Context(), actorFrom(r), id, req.ClinicalRecord)
	h.respondBooking(w, r, b, err)
}

func (h *handlers) reviewBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ReviewRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := h.bookings.Review(r.Context(), actorFrom(r), id, req.Comment)
	h.respondBooking(w, r, b, err)
}

func (h *handlers) surveyBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SurveyRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := h.bookings.SubmitSurvey(r.Context(), actorFrom(r), id, req.Response)
	h.respondBooking(w, r, b, err)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	history, err := h.bookings.History(r.Context(), actorFrom(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// Reports

const (
	defaultReportRangeDays = 30
	maxLoginExport         = 10000
)

func (h *handlers) reportSpecialties(w http.ResponseWriter, r *http.Request) {
	slices, err := h.reports.BySpecialty(r.Context(), actorFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slices)
}

func (h *handlers) reportWeekdays(w http.ResponseWriter, r *http.Request) {
	bars, err := h.reports.ByWeekday(r.Context(), actorFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bars)
}

// reportSpecialists answers both per-specialist charts over one inclusive
// date range, by default the last 30 days.
func (h *handlers) reportSpecialists(w http.ResponseWriter, r *http.Request) {
	loc := h.bookings.Location()
	to := time.Now().In(loc)
	from := to.AddDate(0, 0, -defaultReportRangeDays)

	for key, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		v := r.URL.Query().Get(key)
		if v == "" {
			continue
		}
		t, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", key+" must be formatted as YYYY-MM-DD")
			return
		}
		*dst = t
	}

	actor := actorFrom(r)
	requested, err := h.reports.RequestedBySpecialist(r.Context(), actor, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	completed, err := h.reports.CompletedBySpecialist(r.Context(), actor, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"from":      from.Format(time.DateOnly),
		"to":        to.Format(time.DateOnly),
		"requested": requested,
		"completed": completed,
	})
}

func (h *handlers) reportLogins(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", booking.DefaultPageSize)
	if limit <= 0 || limit > booking.MaxPageSize {
		limit = booking.MaxPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	logins, err := h.reports.Logins(r.Context(), actorFrom(r), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logins)
}

func (h *handlers) reportLoginsCSV(w http.ResponseWriter, r *http.Request) {
	logins, err := h.reports.Logins(r.Context(), actorFrom(r), maxLoginExport, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="logins.csv"`)
	if err := h.reports.WriteLoginsCSV(w, logins); err != nil {
		h.logger.Error().Err(err).Msg("write logins csv")
	}
}
