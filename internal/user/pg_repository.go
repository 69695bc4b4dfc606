package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-appointments/internal/availability"
	"github.com/hackgods/clinic-appointments/internal/db"
)

const userColumns = `id, email, role, enabled, first_name, last_name, age, national_id,
	health_insurance, specialties, email_verified, created_at, updated_at`

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Role,
		&u.Enabled,
		&u.FirstName,
		&u.LastName,
		&u.Age,
		&u.NationalID,
		&u.HealthInsurance,
		&u.Specialties,
		&u.EmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &u, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}

	if u.Role == RoleSpecialist {
		schedule, err := r.loadAvailability(ctx, id)
		if err != nil {
			return nil, err
		}
		u.Availability = schedule
	}

	return u, nil
}

func (r *PgRepository) loadAvailability(ctx context.Context, specialistID uuid.UUID) (availability.Schedule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT specialty, day_of_week, start_time, end_time
		FROM availability_rules
		WHERE specialist_id = $1
		ORDER BY specialty, day_of_week, start_time
	`, specialistID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	defer rows.Close()

	schedule := availability.Schedule{}
	for rows.Next() {
		var (
			specialty string
			day       int16
			rule      availability.Rule
		)
		if err := rows.Scan(&specialty, &day, &rule.Start, &rule.End); err != nil {
			return nil, err
		}
		rule.DayOfWeek = time.Weekday(day)
		schedule[specialty] = append(schedule[specialty], rule)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return schedule, nil
}

func (r *PgRepository) List(ctx context.Context, role Role) ([]User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1 = '' OR role = $1)
		ORDER BY last_name, first_name
	`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Create(ctx context.Context, u *User) error {
	specialties := u.Specialties
	if specialties == nil {
		specialties = []string{}
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, role, enabled, first_name, last_name, age, national_id,
			health_insurance, specialties, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.Role, u.Enabled, u.FirstName, u.LastName, u.Age, u.NationalID,
		u.HealthInsurance, specialties, u.EmailVerified)

	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		switch {
		case db.IsUniqueViolation(err, "users_pkey"):
			return ErrAlreadyRegistered
		case db.IsUniqueViolation(err, "users_email_key"):
			return ErrEmailTaken
		case db.IsUniqueViolation(err, "users_national_id_key"):
			return ErrNationalIDTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *PgRepository) UpdateRole(ctx context.Context, id uuid.UUID, role Role) error {
	return r.update(ctx, `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, id, role)
}

func (r *PgRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return r.update(ctx, `UPDATE users SET enabled = $2, updated_at = now() WHERE id = $1`, id, enabled)
}

func (r *PgRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, `UPDATE users SET email_verified = TRUE, updated_at = now() WHERE id = $1`, id)
}

func (r *PgRepository) update(ctx context.Context, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ReplaceAvailability runs the delete and the insert as one statement so a
// reader never sees a half-replaced list.
func (r *PgRepository) ReplaceAvailability(ctx context.Context, specialistID uuid.UUID, specialty string, rules []availability.Rule) error {
	days := make([]int16, len(rules))
	starts := make([]string, len(rules))
	ends := make([]string, len(rules))
	for i, rule := range rules {
		days[i] = int16(rule.DayOfWeek)
		starts[i] = rule.Start
		ends[i] = rule.End
	}

	_, err := r.db.Exec(ctx, `
		WITH removed AS (
			DELETE FROM availability_rules
			WHERE specialist_id = $1 AND specialty = $2
		)
		INSERT INTO availability_rules (specialist_id, specialty, day_of_week, start_time, end_time)
		SELECT $1, $2, d, s, e
		FROM unnest($3::smallint[], $4::text[], $5::text[]) AS t(d, s, e)
	`, specialistID, specialty, days, starts, ends)
	if err != nil {
		return fmt.Errorf("replace availability: %w", err)
	}
	return nil
}
