// Package dialog drives one conversation turn at a time: it frames the
// caller's utterance for the assistant model, executes whatever directive the
// model emits, and decides what gets spoken next. It produces plain phrases;
// the transport layer turns them into telephony responses.
package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/convstate"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/directive"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/model"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/remindctx"
	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/timewindow"
)

const (
	Greeting       = "Hello, thanks for calling. How can I help you today?"
	RepromptPhrase = "I'm sorry, I didn't catch that. Could you please repeat?"
	SilenceHangup  = "I haven't heard from you. I'll end the call now. Feel free to call back later."
	Farewell       = "Thank you for calling. Have a great day!"
	FollowUpPhrase = "Is there anything else I can help you with?"
	GoodbyePhrase  = "Thank you for your time. Feel free to call again if you need any assistance. Goodbye!"
	ReminderBroken = "Hello, this is your appointment reminder. I'm having trouble accessing your appointment details. Please call us back for assistance."
)

// Conversation state markers.
const (
	intentBooking           = "booking"
	intentCheckAppointments = "check_appointments"
	intentBookingComplete   = "booking_complete"
	intentCancelComplete    = "cancellation_complete"
	intentRescheduleDone    = "reschedule_complete"
	intentConfirmComplete   = "confirmation_complete"

	stageNeedName  = "need_name"
	stageNeedTime  = "need_time"
	stageNeedNotes = "need_notes"
	stageComplete  = "complete"
)

// Chat produces the assistant's next reply given the transcript so far.
type Chat interface {
	Complete(ctx context.Context, history []convstate.Message, userText string) (string, error)
}

// Appointments is the booking surface a conversation can reach.
type Appointments interface {
	Book(ctx context.Context, name, appointmentTime, notes, phone, bookingKey string) (model.Appointment, error)
	Cancel(ctx context.Context, id int64) (model.Appointment, error)
	Confirm(ctx context.Context, id int64) (model.Appointment, error)
	Reschedule(ctx context.Context, id int64, newTime string) (model.Appointment, error)
	FindByName(ctx context.Context, name string) ([]model.Appointment, error)
}

// Turn is what the caller hears next. Say is spoken first; FollowUp is the
// prompt inside the next speech gather; Fallback is spoken before hanging up
// if the caller stays silent. End means hang up after Say with no gather.
type Turn struct {
	Say      []string
	FollowUp string
	Fallback string
	End      bool
}

type Controller struct {
	chat   Chat
	appts  Appointments
	logger *slog.Logger
}

func NewController(chat Chat, appts Appointments, logger *slog.Logger) *Controller {
	return &Controller{chat: chat, appts: appts, logger: logger}
}

// StartCall produces the opening turn. For inbound calls the model rephrases
// the standard greeting; for outbound reminder calls it opens with the
// reminder script for the window that triggered the call.
func (c *Controller) StartCall(ctx context.Context, state *convstate.State, rctx *remindctx.Context) (Turn, error) {
	prompt := Greeting
	if rctx != nil {
		prompt = reminderOpener(rctx)
	}

	reply, err := c.chat.Complete(ctx, state.History, prompt)
	if err != nil {
		return Turn{}, err
	}

	state.Append("user", prompt)
	state.Append("assistant", reply)
	return Turn{FollowUp: reply}, nil
}

// HandleTurn processes one caller utterance. An empty utterance re-prompts
// once and ends the call the second time.
func (c *Controller) HandleTurn(ctx context.Context, state *convstate.State, rctx *remindctx.Context, utterance, callerPhone, bookingKey string) (Turn, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		if state.Reprompted {
			return Turn{Say: []string{SilenceHangup}, End: true}, nil
		}
		state.Reprompted = true
		return Turn{FollowUp: RepromptPhrase, Fallback: SilenceHangup}, nil
	}
	state.Reprompted = false

	// The previous turn's question tells us what this utterance answers.
	switch state.BookingStage {
	case stageNeedName:
		state.Collect("name", utterance)
	case stageNeedTime:
		state.Collect("time", utterance)
	case stageNeedNotes:
		state.Collect("notes", utterance)
	}

	if state.Intent == "" && strings.Contains(strings.ToLower(utterance), "book") {
		state.Intent = intentBooking
		state.BookingStage = stageNeedName
	}

	prompt := utterance
	if rctx != nil {
		prompt = fmt.Sprintf("OUTBOUND_REMINDER_CALL: The user %s responded to our reminder about their appointment at %s with: %s",
			rctx.FirstName(), rctx.AppointmentTime, utterance)
	}

	reply, err := c.chat.Complete(ctx, state.History, prompt)
	if err != nil {
		return Turn{}, err
	}
	state.Append("user", prompt)
	state.Append("assistant", reply)

	d := directive.Parse(reply)
	needFollowUp := true
	var say []string

	switch d.Kind {
	case directive.KindCheckAppointments:
		state.Intent = intentCheckAppointments
		say = append(say, c.checkAppointments(ctx, d.Name))

	case directive.KindAppointmentBooked:
		state.Intent = intentBookingComplete
		state.BookingStage = stageComplete
		key := bookingKey
		if key != "" {
			// Replays of the same call with the same details dedupe; a second
			// distinct booking on one call still goes through.
			key = fmt.Sprintf("%s|%s|%s", bookingKey, d.Name, d.AppointmentTime)
		}
		appt, err := c.appts.Book(ctx, d.Name, d.AppointmentTime, d.Notes, callerPhone, key)
		if err != nil {
			return Turn{}, err
		}
		c.logger.Info("appointment booked",
			"appointment_id", appt.ID,
			"name", appt.Name,
			"appointment_time", appt.AppointmentTime,
		)
		say = append(say, fmt.Sprintf("Thank you %s. Your appointment for %s has been confirmed and saved. Is there anything else I can help you with today?",
			firstName(d.Name), d.AppointmentTime))
		needFollowUp = false

	case directive.KindCancelAppointment:
		if rctx == nil {
			say = append(say, reply)
			break
		}
		state.Intent = intentCancelComplete
		if _, err := c.appts.Cancel(ctx, rctx.AppointmentID); err != nil {
			c.logger.Error("cancel failed", "appointment_id", rctx.AppointmentID, "err", err)
		}
		say = append(say, fmt.Sprintf("I understand you'd like to cancel your appointment, %s. I've noted your cancellation. Is there anything else I can help you with today?", d.Name))
		needFollowUp = false

	case directive.KindRescheduleAppointment:
		if rctx == nil {
			say = append(say, reply)
			break
		}
		state.Intent = intentRescheduleDone
		if _, err := c.appts.Reschedule(ctx, rctx.AppointmentID, d.AppointmentTime); err != nil {
			c.logger.Error("reschedule failed", "appointment_id", rctx.AppointmentID, "err", err)
		}
		say = append(say, fmt.Sprintf("Thank you %s. I've rescheduled your appointment for %s. We look forward to seeing you then. Is there anything else I can help you with?", d.Name, d.AppointmentTime))
		needFollowUp = false

	case directive.KindAppointmentConfirmed:
		if rctx == nil {
			say = append(say, reply)
			break
		}
		state.Intent = intentConfirmComplete
		if _, err := c.appts.Confirm(ctx, rctx.AppointmentID); err != nil {
			c.logger.Error("confirm failed", "appointment_id", rctx.AppointmentID, "err", err)
		}
		say = append(say, fmt.Sprintf("Perfect, %s. Your appointment for %s is confirmed. We look forward to seeing you. Is there anything else I can help you with today?", d.Name, rctx.AppointmentTime))
		needFollowUp = false

	case directive.KindConversationEnded:
		return Turn{Say: []string{Farewell}, End: true}, nil

	default:
		if state.Intent == intentBooking {
			if stage := detectBookingStage(reply); stage != "" {
				state.BookingStage = stage
			}
			if state.BookingStage != stageComplete {
				needFollowUp = false
			}
		}
		say = append(say, reply)
	}

	turn := Turn{Say: say, Fallback: GoodbyePhrase}
	if needFollowUp && state.BookingStage == stageComplete {
		turn.FollowUp = FollowUpPhrase
	}
	return turn, nil
}

func (c *Controller) checkAppointments(ctx context.Context, name string) string {
	appts, err := c.appts.FindByName(ctx, name)
	if err != nil {
		c.logger.Error("appointment lookup failed", "name", name, "err", err)
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
	fmt.Fprintf(&b, "I found %d appointments for %s. ", len(appts), name)
	for i, appt := range appts {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "Appointment %d: %s. ", i+1, appt.AppointmentTime)
	}
	if len(appts) > 3 {
		fmt.Fprintf(&b, "And %d more. ", len(appts)-3)
	}
	return b.String()
}

// reminderOpener builds the scripted opener the model elaborates on, keyed by
// the reminder window that triggered the call.
func reminderOpener(rctx *remindctx.Context) string {
	first := rctx.FirstName()
	switch rctx.ReminderType {
	case timewindow.ReminderFarBefore:
		return fmt.Sprintf("OUTBOUND_REMINDER_CALL: Hi %s, this is a friendly reminder about your appointment scheduled for %s. I'm calling to confirm that this time still works for you?",
			first, rctx.AppointmentTime)
	case timewindow.ReminderNearBefore:
		return fmt.Sprintf("OUTBOUND_REMINDER_CALL: Hi %s, your appointment is coming up in about 30 minutes at %s. I'm just calling to make sure you're on your way or if you need any assistance?",
			first, rctx.AppointmentTime)
	default:
		notesMention := ""
		if rctx.Notes != "" {
			notesMention = fmt.Sprintf(" Your notes mention: %s.", rctx.Notes)
		}
		return fmt.Sprintf("OUTBOUND_REMINDER_CALL: Hello %s, this is a reminder call about your appointment scheduled for %s.%s I'm calling to confirm if you're still planning to attend, or if you need to reschedule or cancel?",
			first, rctx.AppointmentTime, notesMention)
	}
}

var (
	nameIndicators  = []string{"what is your name", "may i have your name", "could i get your name"}
	timeIndicators  = []string{"what time", "which day", "when would", "prefer to come"}
	notesIndicators = []string{"any notes", "special requests", "anything else we should know"}
)

// detectBookingStage infers which piece of booking info the assistant just
// asked for. Empty when the reply matches no known question.
func detectBookingStage(reply string) string {
	lower := strings.ToLower(reply)
	for _, ind := range nameIndicators {
		if strings.Contains(lower, ind) {
			return stageNeedName
		}
	}
	for _, ind := range timeIndicators {
		if strings.Contains(lower, ind) {
			return stageNeedTime
		}
	}
	for _, ind := range notesIndicators {
		if strings.Contains(lower, ind) {
			return stageNeedNotes
		}
	}
	return ""
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return name
	}
	return fields[0]
}
