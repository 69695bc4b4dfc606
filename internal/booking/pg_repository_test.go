package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingCols = []string{
	"id", "patient_id", "specialist_id", "specialty", "starts_at", "status", "patient_name",
	"specialist_name", "comment", "cancellation_reason", "survey_response", "survey_submitted_at",
	"clinical_record", "created_at", "updated_at",
}

func strPtr(s string) *string { return &s }

func TestPgRepositoryGetDecodesOptionalFields(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	at := time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC)
	submitted := at.Add(48 * time.Hour)

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(bookingCols).AddRow(
			id, uuid.New(), uuid.New(), "Cardiology", at, StatusCompleted, "Ana Gómez",
			"Gregory House", strPtr("great"), (*string)(nil), strPtr("5 stars"), &submitted,
			[]byte(`{"height_cm":170,"weight_kg":70,"temperature_c":36.5,"blood_pressure":"120/80","extra":[{"key":"Allergy","value":"None"}]}`),
			at, at,
		))

	b, err := NewPgRepository(mock).Get(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, b.Status)
	assert.Equal(t, "great", b.Comment)
	assert.Empty(t, b.CancellationReason)
	require.NotNil(t, b.Survey)
	assert.Equal(t, Survey{Response: "5 stars", SubmittedAt: submitted}, *b.Survey)
	require.NotNil(t, b.ClinicalRecord)
	assert.Equal(t, "120/80", b.ClinicalRecord.BloodPressure)
	assert.Equal(t, []Entry{{Key: "Allergy", Value: "None"}}, b.ClinicalRecord.Extra)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(bookingCols))

	_, err = NewPgRepository(mock).Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestPgRepositoryInsertMapsActiveSlotViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "bookings_active_slot_key"})

	err = NewPgRepository(mock).Insert(context.Background(), &Booking{Status: StatusRequested})
	assert.ErrorIs(t, err, ErrSlotOccupied)
}

func TestPgRepositoryInsertAssignsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2024, time.May, 8, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(at, at))

	b := &Booking{Status: StatusRequested}
	require.NoError(t, NewPgRepository(mock).Insert(context.Background(), b))
	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.Equal(t, at, b.CreatedAt)
}

func TestPgRepositoryUpdateStatusGuardsFromStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("UPDATE bookings").
		WithArgs(id, StatusAccepted, StatusRequested, (*string)(nil), []byte(nil)).
		WillReturnRows(pgxmock.NewRows(bookingCols))

	_, err = NewPgRepository(mock).UpdateStatus(context.Background(), id, StatusRequested, StatusAccepted, Change{})
	assert.ErrorIs(t, err, ErrStatusChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositorySetCommentOnlyOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SET comment").
		WithArgs(id, "thanks").
		WillReturnRows(pgxmock.NewRows(bookingCols))

	_, err = NewPgRepository(mock).SetComment(context.Background(), id, "thanks")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
}

func TestPgRepositoryFindStaleRequests(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2024, time.May, 8, 12, 0, 0, 0, time.UTC)
	id := uuid.New()
	mock.ExpectQuery("status = 'requested'").
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows(bookingCols).AddRow(
			id, uuid.New(), uuid.New(), "Cardiology", now.Add(-time.Hour), StatusRequested, "Ana", "House",
			(*string)(nil), (*string)(nil), (*string)(nil), (*time.Time)(nil), []byte(nil), now, now,
		))

	stale, err := NewPgRepository(mock).FindStaleRequests(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, id, stale[0].ID)
	assert.Nil(t, stale[0].ClinicalRecord)
	assert.Nil(t, stale[0].Survey)
}
