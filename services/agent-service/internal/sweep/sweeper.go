// Package sweep scans appointments on an interval and places outbound
// reminder calls for the ones whose reminder window is open. The reminder_log
// claim makes each (appointment, window, time) call happen exactly once even
// with several sweepers running.
package sweep

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/model"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/remindctx"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/telephony"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/timewindow"
)

// Appointments is the storage surface the sweeper needs.
type Appointments interface {
	ListActive(ctx context.Context) ([]model.Appointment, error)
	RecordReminder(ctx context.Context, appointmentID int64, reminderType, appointmentTime string) (bool, error)
	ReleaseReminder(ctx context.Context, appointmentID int64, reminderType, appointmentTime string) error
}

type Sweeper struct {
	appts    Appointments
	caller   telephony.Caller
	logger   *slog.Logger
	voiceURL string
	interval time.Duration
	now      func() time.Time
}

type Config struct {
	// VoiceURL is the public /voice webhook the outbound call is pointed at.
	VoiceURL string
	Interval time.Duration
}

func NewSweeper(appts Appointments, caller telephony.Caller, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	return &Sweeper{
		appts:    appts,
		caller:   caller,
		logger:   logger,
		voiceURL: cfg.VoiceURL,
		interval: cfg.Interval,
		now:      time.Now,
	}
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if err := s.Sweep(ctx); err != nil {
		s.logger.Error("reminder sweep failed", "err", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("reminder sweep failed", "err", err)
			}
		}
	}
}

// Sweep runs one pass. Per-appointment failures are logged and do not stop
// the pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	appts, err := s.appts.ListActive(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	for _, appt := range appts {
		reminderType := timewindow.ClassifyString(appt.AppointmentTime, now)
		if reminderType == timewindow.ReminderNone {
			continue
		}
		if err := s.remind(ctx, appt, reminderType); err != nil {
			s.logger.Error("reminder call failed",
				"appointment_id", appt.ID,
				"reminder_type", string(reminderType),
				"err", err,
			)
		}
	}
	return nil
}

// Remind places a reminder call for one appointment regardless of its window,
// used for operator-triggered calls.
func (s *Sweeper) Remind(ctx context.Context, appt model.Appointment) error {
	return s.remind(ctx, appt, timewindow.ReminderGeneral)
}

func (s *Sweeper) remind(ctx context.Context, appt model.Appointment, reminderType timewindow.ReminderType) error {
	if appt.PhoneNumber == "" || appt.PhoneNumber == model.UnknownPhone {
		return nil
	}

	claimed, err := s.appts.RecordReminder(ctx, appt.ID, string(reminderType), appt.AppointmentTime)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	sid, err := s.caller.CreateCall(ctx, appt.PhoneNumber, s.callbackURL(appt, reminderType))
	if err != nil {
		// Give the claim back so the next sweep retries.
		if relErr := s.appts.ReleaseReminder(ctx, appt.ID, string(reminderType), appt.AppointmentTime); relErr != nil {
			s.logger.Error("reminder claim release failed", "appointment_id", appt.ID, "err", relErr)
		}
		return err
	}

	s.logger.Info("reminder call placed",
		"appointment_id", appt.ID,
		"reminder_type", string(reminderType),
		"call_sid", sid,
	)
	return nil
}

func (s *Sweeper) callbackURL(appt model.Appointment, reminderType timewindow.ReminderType) string {
	token := remindctx.Encode(remindctx.Context{
		AppointmentID:   appt.ID,
		ClientName:      appt.Name,
		AppointmentTime: appt.AppointmentTime,
		Notes:           appt.Notes,
		ReminderType:    reminderType,
	})
	return s.voiceURL + "?" + remindctx.QueryParam + "=" + url.QueryEscape(token)
}
