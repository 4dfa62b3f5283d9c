package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/model"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/remindctx"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/timewindow"
)

type fakeStore struct {
	appts    []model.Appointment
	claimed  map[string]bool
	released []string
}

func claimKey(id int64, reminderType, appointmentTime string) string {
	return fmt.Sprintf("%d/%s/%s", id, reminderType, appointmentTime)
}

func (f *fakeStore) ListActive(_ context.Context) ([]model.Appointment, error) {
	return f.appts, nil
}

func (f *fakeStore) RecordReminder(_ context.Context, id int64, reminderType, appointmentTime string) (bool, error) {
	if f.claimed == nil {
		f.claimed = map[string]bool{}
	}
	key := claimKey(id, reminderType, appointmentTime)
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeStore) ReleaseReminder(_ context.Context, id int64, reminderType, appointmentTime string) error {
	key := claimKey(id, reminderType, appointmentTime)
	delete(f.claimed, key)
	f.released = append(f.released, key)
	return nil
}

type fakeCaller struct {
	calls []string // callback URLs
	err   error
}

func (f *fakeCaller) CreateCall(_ context.Context, _ string, callbackURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, callbackURL)
	return "CA1", nil
}

// Wednesday, January 28 2026, 12:00 UTC. "Friday at 0:00" is 36 hours ahead.
var sweepNow = time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)

func newSweeper(store *fakeStore, caller *fakeCaller) *Sweeper {
	s := NewSweeper(store, caller, slog.New(slog.DiscardHandler), Config{
		VoiceURL: "https://agent.example.com/voice",
	})
	s.now = func() time.Time { return sweepNow }
	return s
}

func TestSweepCallsDueAppointments(t *testing.T) {
	store := &fakeStore{appts: []model.Appointment{
		{ID: 1, Name: "Jane Doe", AppointmentTime: "Friday at 0:00", PhoneNumber: "+15550001111", Status: model.StatusPending},
		{ID: 2, Name: "Bob Roe", AppointmentTime: "Monday at 9:00", PhoneNumber: "+15550002222", Status: model.StatusPending},
	}}
	caller := &fakeCaller{}

	if err := newSweeper(store, caller).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(caller.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(caller.calls))
	}

	u, err := url.Parse(caller.calls[0])
	if err != nil {
		t.Fatalf("bad callback URL: %v", err)
	}
	rctx := remindctx.Decode(u.Query().Get(remindctx.QueryParam))
	if rctx == nil {
		t.Fatal("callback URL carries no reminder context")
	}
	if rctx.AppointmentID != 1 || rctx.ReminderType != timewindow.ReminderFarBefore {
		t.Fatalf("unexpected context %+v", rctx)
	}
}

func TestSweepSkipsUnknownPhone(t *testing.T) {
	store := &fakeStore{appts: []model.Appointment{
		{ID: 1, Name: "Jane Doe", AppointmentTime: "Friday at 0:00", PhoneNumber: model.UnknownPhone},
	}}
	caller := &fakeCaller{}

	if err := newSweeper(store, caller).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(caller.calls) != 0 {
		t.Fatalf("expected no calls, got %d", len(caller.calls))
	}
	if len(store.claimed) != 0 {
		t.Fatal("unreachable appointment must not be claimed")
	}
}

func TestSweepIsIdempotentAcrossPasses(t *testing.T) {
	store := &fakeStore{appts: []model.Appointment{
		{ID: 1, Name: "Jane Doe", AppointmentTime: "Friday at 0:00", PhoneNumber: "+15550001111"},
	}}
	caller := &fakeCaller{}
	s := newSweeper(store, caller)

	for range 3 {
		if err := s.Sweep(context.Background()); err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
	}
	if len(caller.calls) != 1 {
		t.Fatalf("expected exactly one call across passes, got %d", len(caller.calls))
	}
}

func TestSweepReleasesClaimOnCallFailure(t *testing.T) {
	store := &fakeStore{appts: []model.Appointment{
		{ID: 1, Name: "Jane Doe", AppointmentTime: "Friday at 0:00", PhoneNumber: "+15550001111"},
	}}
	caller := &fakeCaller{err: errors.New("provider down")}
	s := newSweeper(store, caller)

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(store.released) != 1 {
		t.Fatalf("expected claim release, got %v", store.released)
	}

	// Provider recovers, next pass retries the call.
	caller.err = nil
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(caller.calls) != 1 {
		t.Fatalf("expected retry call, got %d", len(caller.calls))
	}
}

func TestRemindGeneralIgnoresWindows(t *testing.T) {
	store := &fakeStore{}
	caller := &fakeCaller{}
	s := newSweeper(store, caller)

	appt := model.Appointment{ID: 4, Name: "Jane Doe", AppointmentTime: "Monday at 9:00", PhoneNumber: "+15550001111"}
	if err := s.Remind(context.Background(), appt); err != nil {
		t.Fatalf("Remind failed: %v", err)
	}
	if len(caller.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(caller.calls))
	}
	if !strings.Contains(caller.calls[0], remindctx.QueryParam+"=") {
		t.Fatalf("callback URL missing context: %q", caller.calls[0])
	}
}
