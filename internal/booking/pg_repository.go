package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-appointments/internal/db"
)

const activeSlotConstraint = "bookings_active_slot_key"

const bookingColumns = `id, patient_id, specialist_id, specialty, starts_at, status, patient_name,
	specialist_name, comment, cancellation_reason, survey_response, survey_submitted_at,
	clinical_record, created_at, updated_at`

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

// Helpers

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b                 Booking
		comment, reason   *string
		surveyResponse    *string
		surveySubmittedAt *time.Time
		record            []byte
	)

	err := row.Scan(
		&b.ID,
		&b.PatientID,
		&b.SpecialistID,
		&b.Specialty,
		&b.Instant,
		&b.Status,
		&b.PatientName,
		&b.SpecialistName,
		&comment,
		&reason,
		&surveyResponse,
		&surveySubmittedAt,
		&record,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if comment != nil {
		b.Comment = *comment
	}
	if reason != nil {
		b.CancellationReason = *reason
	}
	if surveyResponse != nil {
		b.Survey = &Survey{Response: *surveyResponse}
		if surveySubmittedAt != nil {
			b.Survey.SubmittedAt = *surveySubmittedAt
		}
	}
	if len(record) > 0 {
		var cr ClinicalRecord
		if err := json.Unmarshal(record, &cr); err != nil {
			return nil, fmt.Errorf("decode clinical record of %s: %w", b.ID, err)
		}
		b.ClinicalRecord = &cr
	}

	return &b, nil
}

func (r *PgRepository) list(ctx context.Context, sql string, args ...any) ([]Booking, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

func (r *PgRepository) Insert(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO bookings (id, patient_id, specialist_id, specialty, starts_at, status,
			patient_name, specialist_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`, b.ID, b.PatientID, b.SpecialistID, b.Specialty, b.Instant, b.Status, b.PatientName, b.SpecialistName)

	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err, activeSlotConstraint) {
			return ErrSlotOccupied
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	return nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE patient_id = $1 ORDER BY starts_at DESC`, patientID)
}

func (r *PgRepository) ListBySpecialist(ctx context.Context, specialistID uuid.UUID) ([]Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE specialist_id = $1 ORDER BY starts_at DESC`, specialistID)
}

func (r *PgRepository) ListAll(ctx context.Context) ([]Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY starts_at DESC`)
}

func (r *PgRepository) ListBySpecialistBetween(ctx context.Context, specialistID uuid.UUID, from, to time.Time) ([]Booking, error) {
	return r.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE specialist_id = $1
		  AND starts_at >= $2
		  AND starts_at < $3
		ORDER BY starts_at
	`, specialistID, from, to)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, change Change) (*Booking, error) {
	var reason *string
	if change.Reason != "" {
		reason = &change.Reason
	}

	var record []byte
	if change.ClinicalRecord != nil {
		var err error
		record, err = json.Marshal(change.ClinicalRecord)
		if err != nil {
			return nil, fmt.Errorf("encode clinical record: %w", err)
		}
	}

	row := r.db.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    cancellation_reason = COALESCE($4, cancellation_reason),
		    clinical_record = COALESCE($5, clinical_record),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns, id, to, from, reason, record)

	b, err := scanBooking(row)
	if errors.Is(err, ErrBookingNotFound) {
		return nil, ErrStatusChanged
	}
	return b, err
}

func (r *PgRepository) SetComment(ctx context.Context, id uuid.UUID, comment string) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE bookings
		SET comment = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'completed'
		  AND comment IS NULL
		RETURNING `+bookingColumns, id, comment)

	b, err := scanBooking(row)
	if errors.Is(err, ErrBookingNotFound) {
		return nil, ErrAlreadyReviewed
	}
	return b, err
}

func (r *PgRepository) SetSurvey(ctx context.Context, id uuid.UUID, survey Survey) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE bookings
		SET survey_response = $2,
		    survey_submitted_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'completed'
		  AND survey_response IS NULL
		RETURNING `+bookingColumns, id, survey.Response, survey.SubmittedAt)

	b, err := scanBooking(row)
	if errors.Is(err, ErrBookingNotFound) {
		return nil, ErrAlreadySurveyed
	}
	return b, err
}

func (r *PgRepository) FindStaleRequests(ctx context.Context, now time.Time) ([]Booking, error) {
	return r.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'requested'
		  AND starts_at < $1
		ORDER BY starts_at
	`, now)
}
