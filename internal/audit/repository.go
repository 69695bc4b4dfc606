package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-appointments/internal/db"
)

type Repository interface {
	InsertEvent(ctx context.Context, ev Event) error
	InsertLogin(ctx context.Context, l Login) error
	ListLogins(ctx context.Context, limit, offset int) ([]Login, error)
}

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev Event) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO events (event_type, actor_id, target_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.ActorID, ev.TargetID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertLogin(ctx context.Context, l Login) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO login_log (user_id, email, role, logged_in_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, l.UserID, l.Email, l.Role, nullableTime(l.LoggedInAt))
	if err != nil {
		return fmt.Errorf("insert login: %w", err)
	}
	return nil
}

func (r *PgRepository) ListLogins(ctx context.Context, limit, offset int) ([]Login, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, email, role, logged_in_at
		FROM login_log
		ORDER BY logged_in_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list logins: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Login, error) {
		var l Login
		err := row.Scan(&l.UserID, &l.Email, &l.Role, &l.LoggedInAt)
		return l, err
	})
}
