// Package booking applies appointment state changes transactionally and
// records a matching outbox event in the same transaction, so downstream
// consumers see exactly the changes that committed.
package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/model"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/outbox"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/storage"
)

type Service struct {
	repo   *storage.AppointmentsRepository
	outbox *outbox.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo *storage.AppointmentsRepository, ob *outbox.Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		outbox: ob,
		logger: logger,
		now:    time.Now,
	}
}

// Book saves a new appointment. bookingKey deduplicates retried webhook
// deliveries: a replay returns the already-saved appointment and emits no
// second event.
func (s *Service) Book(ctx context.Context, name, appointmentTime, notes, phone, bookingKey string) (model.Appointment, error) {
	if phone == "" {
		phone = model.UnknownPhone
	}
	appt := model.Appointment{
		Name:            name,
		AppointmentTime: appointmentTime,
		Notes:           notes,
		PhoneNumber:     phone,
		Status:          model.StatusPending,
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, created, err := s.repo.Create(ctx, tx, &appt, bookingKey)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.ID = id

	if created {
		evt, err := outbox.AppointmentEvent(outbox.EventBooked, appt, s.now())
		if err != nil {
			return model.Appointment{}, err
		}
		if err := s.outbox.Insert(ctx, tx, evt); err != nil {
			return model.Appointment{}, err
		}
	} else {
		s.logger.Info("duplicate booking ignored", "appointment_id", id, "booking_key", bookingKey)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) Cancel(ctx context.Context, id int64) (model.Appointment, error) {
	return s.updateStatus(ctx, id, model.StatusCancelled, outbox.EventCancelled)
}

func (s *Service) Confirm(ctx context.Context, id int64) (model.Appointment, error) {
	return s.updateStatus(ctx, id, model.StatusConfirmed, outbox.EventConfirmed)
}

func (s *Service) Reschedule(ctx context.Context, id int64, newTime string) (model.Appointment, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.repo.Reschedule(ctx, tx, id, newTime)
	if err != nil {
		return model.Appointment{}, err
	}

	evt, err := outbox.AppointmentEvent(outbox.EventRescheduled, appt, s.now())
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) FindByName(ctx context.Context, name string) ([]model.Appointment, error) {
	return s.repo.SearchByName(ctx, name)
}

func (s *Service) updateStatus(ctx context.Context, id int64, status, eventType string) (model.Appointment, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.repo.UpdateStatus(ctx, tx, id, status)
	if err != nil {
		return model.Appointment{}, err
	}

	evt, err := outbox.AppointmentEvent(eventType, appt, s.now())
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}
