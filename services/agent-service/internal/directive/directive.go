// Package directive recognizes the sentinel-prefixed command strings the
// assistant model emits in place of conversational text when a side effect
// is required. Matching is substring-based over the raw model reply, so the
// priority order below is what keeps a reply containing several sentinels
// deterministic: the first kind that matches wins and the rest are ignored.
package directive

import "strings"

type Kind int

const (
	KindNone Kind = iota
	KindCheckAppointments
	KindAppointmentBooked
	KindCancelAppointment
	KindRescheduleAppointment
	KindAppointmentConfirmed
	KindConversationEnded
)

const (
	sentinelCheck      = "CHECK_APPOINTMENTS:"
	sentinelBooked     = "APPOINTMENT_BOOKED:"
	sentinelCancel     = "CANCEL_APPOINTMENT:"
	sentinelReschedule = "RESCHEDULE_APPOINTMENT:"
	sentinelConfirmed  = "APPOINTMENT_CONFIRMED:"
	sentinelEnded      = "CONVERSATION_ENDED"
)

// PlaceholderTime is substituted when a reschedule directive omits the new time.
const PlaceholderTime = "a new time"

// Directive is the parse result for one model reply. Text always carries the
// raw reply so a non-directive turn can be spoken verbatim.
type Directive struct {
	Kind Kind
	Text string

	Name            string
	AppointmentTime string
	Notes           string
}

// Parse scans reply for the highest-priority sentinel. Malformed payloads
// degrade field by field (missing pipe-separated fields become empty strings);
// Parse never fails.
func Parse(reply string) Directive {
	d := Directive{Kind: KindNone, Text: reply}

	switch {
	case strings.Contains(reply, sentinelCheck):
		d.Kind = KindCheckAppointments
		d.Name = payload(reply, sentinelCheck)
	case strings.Contains(reply, sentinelBooked):
		d.Kind = KindAppointmentBooked
		fields := splitFields(payload(reply, sentinelBooked), 3)
		d.Name, d.AppointmentTime, d.Notes = fields[0], fields[1], fields[2]
	case strings.Contains(reply, sentinelCancel):
		d.Kind = KindCancelAppointment
		d.Name = payload(reply, sentinelCancel)
	case strings.Contains(reply, sentinelReschedule):
		d.Kind = KindRescheduleAppointment
		fields := splitFields(payload(reply, sentinelReschedule), 2)
		d.Name = fields[0]
		d.AppointmentTime = fields[1]
		if d.AppointmentTime == "" {
			d.AppointmentTime = PlaceholderTime
		}
	case strings.Contains(reply, sentinelConfirmed):
		d.Kind = KindAppointmentConfirmed
		d.Name = payload(reply, sentinelConfirmed)
	case strings.Contains(reply, sentinelEnded):
		d.Kind = KindConversationEnded
	}

	return d
}

// payload returns everything after the first occurrence of the sentinel,
// trimmed. The model sometimes wraps directives in prose, so anything before
// the sentinel is discarded.
func payload(reply, sentinel string) string {
	_, rest, _ := strings.Cut(reply, sentinel)
	return strings.TrimSpace(rest)
}

func splitFields(raw string, n int) []string {
	parts := strings.SplitN(raw, "|", n)
	fields := make([]string, n)
	for i := range fields {
		if i < len(parts) {
			fields[i] = strings.TrimSpace(parts[i])
		}
	}
	return fields
}
