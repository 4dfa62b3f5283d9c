package outbox

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted for appointment lifecycle changes.
const (
	EventBooked      = "appointment.booked.v1"
	EventCancelled   = "appointment.cancelled.v1"
	EventRescheduled = "appointment.rescheduled.v1"
	EventConfirmed   = "appointment.confirmed.v1"
)

type appointmentPayload struct {
	AppointmentID   int64  `json:"appointment_id"`
	Name            string `json:"name"`
	AppointmentTime string `json:"appointment_time"`
	Notes           string `json:"notes,omitempty"`
	PhoneNumber     string `json:"phone_number"`
	Status          string `json:"status"`
	OccurredAt      string `json:"occurred_at"`
}

// AppointmentEvent builds the envelope for an appointment lifecycle event.
func AppointmentEvent(eventType string, appt model.Appointment, now time.Time) (Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID:   appt.ID,
		Name:            appt.Name,
		AppointmentTime: appt.AppointmentTime,
		Notes:           appt.Notes,
		PhoneNumber:     appt.PhoneNumber,
		Status:          appt.Status,
		OccurredAt:      now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   strconv.FormatInt(appt.ID, 10),
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
