package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/voicedesk/libs/db"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/model"
)

type AppointmentsRepository struct {
	pool *db.Pool
}

func NewAppointmentsRepository(pool *db.Pool) *AppointmentsRepository {
	return &AppointmentsRepository{pool: pool}
}

func (r *AppointmentsRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// EnsureSchema creates the tables the service needs. The deployment has no
// separate migration step; every binary converges the schema on boot.
func (r *AppointmentsRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS appointments (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			appointment_time TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			phone_number TEXT NOT NULL DEFAULT 'Unknown',
			status TEXT NOT NULL DEFAULT 'pending',
			booking_key TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS reminder_log (
			id BIGSERIAL PRIMARY KEY,
			appointment_id BIGINT NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
			reminder_type TEXT NOT NULL,
			appointment_time TEXT NOT NULL,
			called_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (appointment_id, reminder_type, appointment_time)
		);

		CREATE TABLE IF NOT EXISTS outbox_events (
			id BIGSERIAL PRIMARY KEY,
			event_id UUID NOT NULL DEFAULT gen_random_uuid(),
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			traceparent TEXT NOT NULL DEFAULT '',
			tracestate TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			published_at TIMESTAMPTZ
		)
	`)
	return err
}

// Create inserts an appointment inside tx. bookingKey deduplicates retried
// webhook deliveries for the same booking; on conflict the existing row's id
// is returned and created reports false.
func (r *AppointmentsRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment, bookingKey string) (id int64, created bool, err error) {
	var key *string
	if bookingKey != "" {
		key = &bookingKey
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (name, appointment_time, notes, phone_number, status, booking_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (booking_key) DO NOTHING
		RETURNING id
	`, appt.Name, appt.AppointmentTime, appt.Notes, appt.PhoneNumber, appt.Status, key).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}

	err = tx.QueryRow(ctx, `
		SELECT id FROM appointments WHERE booking_key = $1
	`, bookingKey).Scan(&id)
	if err != nil {
		return 0, false, err
	}
	return id, false, nil
}

const appointmentColumns = `id, name, appointment_time, notes, phone_number, status, created_at`

func (r *AppointmentsRepository) GetByID(ctx context.Context, id int64) (model.Appointment, error) {
	var appt model.Appointment
	err := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id).Scan(&appt.ID, &appt.Name, &appt.AppointmentTime, &appt.Notes, &appt.PhoneNumber, &appt.Status, &appt.CreatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// SearchByName matches case-insensitively on a name substring, most recent
// first. Cancelled appointments are excluded.
func (r *AppointmentsRepository) SearchByName(ctx context.Context, name string) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE name ILIKE '%' || $1 || '%' AND status <> 'cancelled'
		ORDER BY created_at DESC
	`, name)
}

// SearchByDate matches on a substring of the schedule text ("Tuesday",
// "14:00"), since appointment times are stored as spoken.
func (r *AppointmentsRepository) SearchByDate(ctx context.Context, fragment string) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_time ILIKE '%' || $1 || '%' AND status <> 'cancelled'
		ORDER BY created_at DESC
	`, fragment)
}

func (r *AppointmentsRepository) ListAll(ctx context.Context) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY created_at DESC
	`)
}

// ListActive returns appointments still eligible for reminder calls.
func (r *AppointmentsRepository) ListActive(ctx context.Context) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status <> 'cancelled'
		ORDER BY id
	`)
}

// UpdateStatus sets the status of one appointment and returns the updated
// row. pgx.ErrNoRows when the id does not exist.
func (r *AppointmentsRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status string) (model.Appointment, error) {
	var appt model.Appointment
	err := tx.QueryRow(ctx, `
		UPDATE appointments SET status = $2
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, status).Scan(&appt.ID, &appt.Name, &appt.AppointmentTime, &appt.Notes, &appt.PhoneNumber, &appt.Status, &appt.CreatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Reschedule moves an appointment to newTime and marks it rescheduled.
func (r *AppointmentsRepository) Reschedule(ctx context.Context, tx pgx.Tx, id int64, newTime string) (model.Appointment, error) {
	var appt model.Appointment
	err := tx.QueryRow(ctx, `
		UPDATE appointments SET appointment_time = $2, status = 'rescheduled'
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, newTime).Scan(&appt.ID, &appt.Name, &appt.AppointmentTime, &appt.Notes, &appt.PhoneNumber, &appt.Status, &appt.CreatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentsRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RecordReminder claims the (appointment, window, time) reminder exactly
// once. It reports false when another sweep already claimed it.
func (r *AppointmentsRepository) RecordReminder(ctx context.Context, appointmentID int64, reminderType, appointmentTime string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO reminder_log (appointment_id, reminder_type, appointment_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (appointment_id, reminder_type, appointment_time) DO NOTHING
	`, appointmentID, reminderType, appointmentTime)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseReminder undoes a claim whose outbound call failed so a later sweep
// can retry it.
func (r *AppointmentsRepository) ReleaseReminder(ctx context.Context, appointmentID int64, reminderType, appointmentTime string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM reminder_log
		WHERE appointment_id = $1 AND reminder_type = $2 AND appointment_time = $3
	`, appointmentID, reminderType, appointmentTime)
	return err
}

func (r *AppointmentsRepository) list(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		if err := rows.Scan(&appt.ID, &appt.Name, &appt.AppointmentTime, &appt.Notes, &appt.PhoneNumber, &appt.Status, &appt.CreatedAt); err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
