package storage

import (
	"context"

	"github.com/md-rashed-zaman/voicedesk/libs/db"
)

// Notification records one outgoing message attempt, successful or not.
type Notification struct {
	AppointmentID int64
	EventType     string
	Channel       string
	Recipient     string
	Body          string
	Status        string
	ProviderID    string
	Reason        string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id BIGSERIAL PRIMARY KEY,
			appointment_id BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			channel TEXT NOT NULL,
			recipient TEXT NOT NULL,
			body TEXT NOT NULL,
			status TEXT NOT NULL,
			provider_id TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, event_type, channel, recipient, body, status, provider_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.AppointmentID, n.EventType, n.Channel, n.Recipient, n.Body, n.Status, n.ProviderID, n.Reason)
	return err
}
