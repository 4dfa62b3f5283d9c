// Package handlers exposes the telephony webhook surface. Every response is
// a TwiML document, including on internal failure: the provider plays an
// apology instead of reading a bare 5xx to the caller.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/convstate"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/dialog"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/directive"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/model"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/remindctx"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/twiml"
)

const (
	apologyPhrase = "I'm sorry, we're experiencing technical difficulties. Please try again later."
	smsFarewell   = "Thank you for your message. Have a great day!"
)

// States persists per-call conversation state between webhook turns.
type States interface {
	Load(ctx context.Context, callID string) (*convstate.State, error)
	Save(ctx context.Context, callID string, st *convstate.State) error
	Delete(ctx context.Context, callID string) error
}

type Webhooks struct {
	ctrl   *dialog.Controller
	states States
	chat   dialog.Chat
	appts  dialog.Appointments
	logger *slog.Logger
}

func NewWebhooks(ctrl *dialog.Controller, states States, chat dialog.Chat, appts dialog.Appointments, logger *slog.Logger) *Webhooks {
	return &Webhooks{
		ctrl:   ctrl,
		states: states,
		chat:   chat,
		appts:  appts,
		logger: logger,
	}
}

func (h *Webhooks) Register(mux *http.ServeMux) {
	mux.HandleFunc("/voice", h.Voice)
	mux.HandleFunc("/handle-input", h.HandleInput)
	mux.HandleFunc("/sms", h.SMS)
}

// Voice answers the first webhook of a call, inbound or outbound reminder.
func (h *Webhooks) Voice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.apology(w, false)
		return
	}

	callID := r.PostForm.Get("CallSid")
	token := r.URL.Query().Get(remindctx.QueryParam)
	rctx := remindctx.Decode(token)
	if token != "" && rctx == nil {
		h.logger.Warn("undecodable reminder context", "call_sid", callID)
		h.speak(w, new(twiml.Response).Say(dialog.ReminderBroken).Hangup())
		return
	}

	state, err := h.states.Load(r.Context(), callID)
	if err != nil {
		h.logger.Error("state load failed", "call_sid", callID, "err", err)
		h.apology(w, false)
		return
	}

	turn, err := h.ctrl.StartCall(r.Context(), state, rctx)
	if err != nil {
		h.logger.Error("call start failed", "call_sid", callID, "err", err)
		h.apology(w, false)
		return
	}

	if err := h.states.Save(r.Context(), callID, state); err != nil {
		h.logger.Error("state save failed", "call_sid", callID, "err", err)
	}

	action := h.inputAction(token)
	resp := new(twiml.Response).SpeechGather(action, turn.FollowUp)
	resp.Redirect(action)
	h.speak(w, resp)
}

// HandleInput processes every turn after the first.
func (h *Webhooks) HandleInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.apology(w, true)
		return
	}

	callID := r.PostForm.Get("CallSid")
	caller := r.PostForm.Get("From")
	utterance := r.PostForm.Get("SpeechResult")
	token := r.URL.Query().Get(remindctx.QueryParam)
	rctx := remindctx.Decode(token)

	state, err := h.states.Load(r.Context(), callID)
	if err != nil {
		h.logger.Error("state load failed", "call_sid", callID, "err", err)
		h.apology(w, true)
		return
	}

	turn, err := h.ctrl.HandleTurn(r.Context(), state, rctx, utterance, callerPhone(caller), callID)
	if err != nil {
		h.logger.Error("turn failed", "call_sid", callID, "err", err)
		h.apology(w, true)
		return
	}

	if turn.End {
		if err := h.states.Delete(r.Context(), callID); err != nil {
			h.logger.Error("state delete failed", "call_sid", callID, "err", err)
		}
	} else if err := h.states.Save(r.Context(), callID, state); err != nil {
		h.logger.Error("state save failed", "call_sid", callID, "err", err)
	}

	resp := new(twiml.Response)
	for _, s := range turn.Say {
		resp.Say(s)
	}
	if turn.End {
		resp.Hangup()
		h.speak(w, resp)
		return
	}

	resp.SpeechGather(h.inputAction(token), gatherPrompts(turn)...)
	if turn.Fallback != "" {
		resp.Say(turn.Fallback)
	}
	resp.Hangup()
	h.speak(w, resp)
}

// SMS handles one text message statelessly: each message is a fresh
// single-turn conversation supporting check, book and end directives.
func (h *Webhooks) SMS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.speak(w, new(twiml.Response).Message(apologyPhrase))
		return
	}

	from := r.PostForm.Get("From")
	body := strings.TrimSpace(r.PostForm.Get("Body"))
	messageID := r.PostForm.Get("MessageSid")

	reply, err := h.chat.Complete(r.Context(), nil, body)
	if err != nil {
		h.logger.Error("sms completion failed", "err", err)
		h.speak(w, new(twiml.Response).Message(apologyPhrase))
		return
	}

	d := directive.Parse(reply)
	switch d.Kind {
	case directive.KindCheckAppointments:
		h.speak(w, new(twiml.Response).Message(h.smsAppointments(r.Context(), d.Name)))

	case directive.KindAppointmentBooked:
		appt, err := h.appts.Book(r.Context(), d.Name, d.AppointmentTime, d.Notes, callerPhone(from), messageID)
		if err != nil {
			h.logger.Error("sms booking failed", "err", err)
			h.speak(w, new(twiml.Response).Message(apologyPhrase))
			return
		}
		h.logger.Info("appointment booked via sms", "appointment_id", appt.ID)
		confirmation := fmt.Sprintf("Thank you %s. Your appointment for %s has been confirmed and saved. Is there anything else I can help you with today?",
			firstWord(d.Name), d.AppointmentTime)
		h.speak(w, new(twiml.Response).Message(confirmation))

	case directive.KindConversationEnded:
		h.speak(w, new(twiml.Response).Message(smsFarewell))

	default:
		h.speak(w, new(twiml.Response).Message(reply))
	}
}

func (h *Webhooks) smsAppointments(ctx context.Context, name string) string {
	appts, err := h.appts.FindByName(ctx, name)
	if err != nil {
		h.logger.Error("sms appointment lookup failed", "name", name, "err", err)
		appts = nil
	}

	if len(appts) == 0 {
		return fmt.Sprintf("I couldn't find any appointments for %s. Would you like to schedule one now?", name)
	}
	if len(appts) == 1 {
		info := fmt.Sprintf("I found one appointment for %s. You're scheduled for %s.", name, appts[0].AppointmentTime)
		if appts[0].Notes != "" {
			info += fmt.Sprintf(" Notes: %s.", appts[0].Notes)
		}
		return info
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d appointments for %s:\n", len(appts), name)
	for i, appt := range appts {
		fmt.Fprintf(&b, "%d. %s", i+1, appt.AppointmentTime)
		if appt.Notes != "" {
			fmt.Fprintf(&b, " - %s", appt.Notes)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (h *Webhooks) inputAction(token string) string {
	if token == "" {
		return "/handle-input"
	}
	return "/handle-input?" + remindctx.QueryParam + "=" + url.QueryEscape(token)
}

// apology plays the standard failure message. The input path hangs up; the
// greeting path lets the provider end the call on its own.
func (h *Webhooks) apology(w http.ResponseWriter, hangup bool) {
	resp := new(twiml.Response).Say(apologyPhrase)
	if hangup {
		resp.Hangup()
	}
	h.speak(w, resp)
}

func (h *Webhooks) speak(w http.ResponseWriter, resp *twiml.Response) {
	out, err := twiml.Render(resp)
	if err != nil {
		h.logger.Error("twiml render failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

func gatherPrompts(turn dialog.Turn) []string {
	if turn.FollowUp == "" {
		return nil
	}
	return []string{turn.FollowUp}
}

func firstWord(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return name
	}
	return fields[0]
}

func callerPhone(from string) string {
	if strings.TrimSpace(from) == "" {
		return model.UnknownPhone
	}
	return from
}
