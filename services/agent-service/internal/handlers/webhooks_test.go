package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/convstate"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/dialog"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/model"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/remindctx"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/timewindow"
)

type memStates struct {
	m map[string]*convstate.State
}

func newMemStates() *memStates { return &memStates{m: map[string]*convstate.State{}} }

func (s *memStates) Load(_ context.Context, callID string) (*convstate.State, error) {
	if st, ok := s.m[callID]; ok {
		cp := *st
		return &cp, nil
	}
	return &convstate.State{}, nil
}

func (s *memStates) Save(_ context.Context, callID string, st *convstate.State) error {
	cp := *st
	s.m[callID] = &cp
	return nil
}

func (s *memStates) Delete(_ context.Context, callID string) error {
	delete(s.m, callID)
	return nil
}

type scriptedChat struct {
	reply      string
	lastPrompt string
}

func (c *scriptedChat) Complete(_ context.Context, _ []convstate.Message, userText string) (string, error) {
	c.lastPrompt = userText
	return c.reply, nil
}

type fakeAppointments struct {
	booked []model.Appointment
	keys   []string
	found  []model.Appointment
}

func (f *fakeAppointments) Book(_ context.Context, name, appointmentTime, notes, phone, key string) (model.Appointment, error) {
	appt := model.Appointment{ID: 1, Name: name, AppointmentTime: appointmentTime, Notes: notes, PhoneNumber: phone}
	f.booked = append(f.booked, appt)
	f.keys = append(f.keys, key)
	return appt, nil
}

func (f *fakeAppointments) Cancel(_ context.Context, id int64) (model.Appointment, error) {
	return model.Appointment{ID: id}, nil
}

func (f *fakeAppointments) Confirm(_ context.Context, id int64) (model.Appointment, error) {
	return model.Appointment{ID: id}, nil
}

func (f *fakeAppointments) Reschedule(_ context.Context, id int64, newTime string) (model.Appointment, error) {
	return model.Appointment{ID: id, AppointmentTime: newTime}, nil
}

func (f *fakeAppointments) FindByName(_ context.Context, _ string) ([]model.Appointment, error) {
	return f.found, nil
}

func newWebhooks(chat *scriptedChat, appts *fakeAppointments) (*Webhooks, *memStates) {
	logger := slog.New(slog.DiscardHandler)
	states := newMemStates()
	ctrl := dialog.NewController(chat, appts, logger)
	return NewWebhooks(ctrl, states, chat, appts, logger), states
}

func postForm(t *testing.T, h http.HandlerFunc, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestVoiceInboundGathersGreeting(t *testing.T) {
	chat := &scriptedChat{reply: "Hello! How can I help you today?"}
	h, states := newWebhooks(chat, &fakeAppointments{})

	rec := postForm(t, h.Voice, "/voice", url.Values{"CallSid": {"CA1"}, "From": {"+15550001111"}})
	body := rec.Body.String()

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(body, `action="/handle-input"`) {
		t.Fatalf("gather must target /handle-input:\n%s", body)
	}
	if !strings.Contains(body, chat.reply) {
		t.Fatalf("reply not spoken:\n%s", body)
	}
	if !strings.Contains(body, `<Redirect method="POST">/handle-input</Redirect>`) {
		t.Fatalf("missing silence redirect:\n%s", body)
	}
	if st, _ := states.Load(context.Background(), "CA1"); len(st.History) != 2 {
		t.Fatalf("expected saved history, got %+v", st)
	}
}

func TestVoiceReminderPreservesContextInAction(t *testing.T) {
	chat := &scriptedChat{reply: "Hi Jane, just checking in about your appointment."}
	h, _ := newWebhooks(chat, &fakeAppointments{})

	token := remindctx.Encode(remindctx.Context{
		AppointmentID:   7,
		ClientName:      "Jane Doe",
		AppointmentTime: "Tuesday at 14:00",
		ReminderType:    timewindow.ReminderFarBefore,
	})
	rec := postForm(t, h.Voice, "/voice?"+remindctx.QueryParam+"="+url.QueryEscape(token), url.Values{"CallSid": {"CA2"}})
	body := rec.Body.String()

	if !strings.Contains(body, remindctx.QueryParam+"=") {
		t.Fatalf("reminder context dropped from action URL:\n%s", body)
	}
	if !strings.HasPrefix(chat.lastPrompt, "OUTBOUND_REMINDER_CALL: Hi Jane, this is a friendly reminder") {
		t.Fatalf("unexpected opener prompt %q", chat.lastPrompt)
	}
}

func TestVoiceBadReminderContext(t *testing.T) {
	h, _ := newWebhooks(&scriptedChat{reply: "hi"}, &fakeAppointments{})

	rec := postForm(t, h.Voice, "/voice?"+remindctx.QueryParam+"=not-base64!!!", url.Values{"CallSid": {"CA3"}})
	if !strings.Contains(rec.Body.String(), "having trouble accessing your appointment details") {
		t.Fatalf("expected broken-reminder message:\n%s", rec.Body.String())
	}
}

func TestHandleInputBooksAndEndsStateless(t *testing.T) {
	chat := &scriptedChat{reply: "APPOINTMENT_BOOKED: Jane Doe|Tuesday at 14:00|Bring ID"}
	appts := &fakeAppointments{}
	h, _ := newWebhooks(chat, appts)

	rec := postForm(t, h.HandleInput, "/handle-input", url.Values{
		"CallSid":      {"CA4"},
		"From":         {"+15552223333"},
		"SpeechResult": {"yes, Tuesday works"},
	})
	body := rec.Body.String()

	if len(appts.booked) != 1 {
		t.Fatalf("expected one booking, got %d", len(appts.booked))
	}
	if appts.booked[0].PhoneNumber != "+15552223333" {
		t.Fatalf("caller number not stored: %+v", appts.booked[0])
	}
	if appts.keys[0] != "CA4|Jane Doe|Tuesday at 14:00" {
		t.Fatalf("unexpected booking key %q", appts.keys[0])
	}
	if !strings.Contains(body, "has been confirmed and saved") {
		t.Fatalf("confirmation not spoken:\n%s", body)
	}
	if !strings.Contains(body, "<Gather") {
		t.Fatalf("call must keep gathering after booking:\n%s", body)
	}
}

func TestHandleInputConversationEndedDeletesState(t *testing.T) {
	chat := &scriptedChat{reply: "CONVERSATION_ENDED"}
	h, states := newWebhooks(chat, &fakeAppointments{})
	states.m["CA5"] = &convstate.State{Intent: "booking"}

	rec := postForm(t, h.HandleInput, "/handle-input", url.Values{
		"CallSid":      {"CA5"},
		"SpeechResult": {"no, that's all"},
	})
	body := rec.Body.String()

	if !strings.Contains(body, dialog.Farewell) || !strings.Contains(body, "<Hangup>") {
		t.Fatalf("expected farewell hangup:\n%s", body)
	}
	if strings.Contains(body, "<Gather") {
		t.Fatalf("ended call must not gather:\n%s", body)
	}
	if _, ok := states.m["CA5"]; ok {
		t.Fatal("conversation state must be deleted when the call ends")
	}
}

func TestHandleInputEmptySpeechReprompts(t *testing.T) {
	h, _ := newWebhooks(&scriptedChat{reply: "unused"}, &fakeAppointments{})

	rec := postForm(t, h.HandleInput, "/handle-input", url.Values{"CallSid": {"CA6"}})
	body := rec.Body.String()

	if !strings.Contains(body, "catch that. Could you please repeat?") {
		t.Fatalf("expected reprompt:\n%s", body)
	}
	if !strings.Contains(body, "end the call now. Feel free to call back later.") {
		t.Fatalf("expected silence fallback after gather:\n%s", body)
	}
}

func TestSMSBooksStateless(t *testing.T) {
	chat := &scriptedChat{reply: "APPOINTMENT_BOOKED: Jane Doe|Tuesday at 14:00|"}
	appts := &fakeAppointments{}
	h, _ := newWebhooks(chat, appts)

	rec := postForm(t, h.SMS, "/sms", url.Values{
		"From":       {"+15552223333"},
		"Body":       {"book me Tuesday at 2pm, Jane Doe"},
		"MessageSid": {"SM1"},
	})
	body := rec.Body.String()

	if len(appts.booked) != 1 {
		t.Fatalf("expected one booking, got %d", len(appts.booked))
	}
	if !strings.Contains(body, "<Message>Thank you Jane. Your appointment for Tuesday at 14:00") {
		t.Fatalf("unexpected sms body:\n%s", body)
	}
}

func TestSMSListsAllAppointmentsWithNotes(t *testing.T) {
	chat := &scriptedChat{reply: "CHECK_APPOINTMENTS: Jane"}
	appts := &fakeAppointments{found: []model.Appointment{
		{AppointmentTime: "Monday at 10:00", Notes: "Bring ID"},
		{AppointmentTime: "Friday at 14:00"},
	}}
	h, _ := newWebhooks(chat, appts)

	rec := postForm(t, h.SMS, "/sms", url.Values{"From": {"+15550001111"}, "Body": {"my appointments"}})
	body := rec.Body.String()

	if !strings.Contains(body, "I found 2 appointments for Jane:") {
		t.Fatalf("unexpected sms:\n%s", body)
	}
	if !strings.Contains(body, "1. Monday at 10:00 - Bring ID") {
		t.Fatalf("notes missing:\n%s", body)
	}
}

func TestSMSPlainReplyVerbatim(t *testing.T) {
	chat := &scriptedChat{reply: "We are open Monday through Friday, 9 to 5."}
	h, _ := newWebhooks(chat, &fakeAppointments{})

	rec := postForm(t, h.SMS, "/sms", url.Values{"From": {"+15550001111"}, "Body": {"when are you open"}})
	if !strings.Contains(rec.Body.String(), chat.reply) {
		t.Fatalf("expected verbatim reply:\n%s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newWebhooks(&scriptedChat{}, &fakeAppointments{})
	req := httptest.NewRequest(http.MethodGet, "/voice", nil)
	rec := httptest.NewRecorder()
	h.Voice(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
