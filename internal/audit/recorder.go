package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder appends audit events. A failed write is logged and swallowed so
// that auditing never fails the operation being audited.
type Recorder struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewRecorder(repo Repository, logger zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, eventType string, actorID, targetID uuid.UUID, details map[string]any) {
	if r == nil {
		return
	}

	var data []byte
	if details != nil {
		var err error
		data, err = json.Marshal(details)
		if err != nil {
			r.logger.Warn().Err(err).Str("event_type", eventType).Msg("marshal audit payload")
			data = nil
		}
	}

	ev := Event{
		EventType: eventType,
		ActorID:   nilIfZero(actorID),
		TargetID:  nilIfZero(targetID),
		Payload:   data,
		CreatedAt: r.now(),
	}

	if err := r.repo.InsertEvent(ctx, ev); err != nil {
		r.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("target_id", targetID.String()).
			Msg("failed to insert audit event")
	}
}

func (r *Recorder) RecordLogin(ctx context.Context, userID uuid.UUID, email, role string) {
	if r == nil {
		return
	}
	l := Login{UserID: userID, Email: email, Role: role, LoggedInAt: r.now()}
	if err := r.repo.InsertLogin(ctx, l); err != nil {
		r.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to insert login log")
	}
}

func (r *Recorder) Logins(ctx context.Context, limit, offset int) ([]Login, error) {
	return r.repo.ListLogins(ctx, limit, offset)
}

func nilIfZero(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
