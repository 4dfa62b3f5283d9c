package directive

import "testing"

func TestParseCheckAppointments(t *testing.T) {
	d := Parse("CHECK_APPOINTMENTS: Jane Doe")
	if d.Kind != KindCheckAppointments {
		t.Fatalf("expected check kind, got %v", d.Kind)
	}
	if d.Name != "Jane Doe" {
		t.Fatalf("expected trimmed name, got %q", d.Name)
	}
}

func TestParseBookedFullPayload(t *testing.T) {
	d := Parse("APPOINTMENT_BOOKED: John Smith|Tuesday at 10:00|Bring ID")
	if d.Kind != KindAppointmentBooked {
		t.Fatalf("expected booked kind, got %v", d.Kind)
	}
	if d.Name != "John Smith" || d.AppointmentTime != "Tuesday at 10:00" || d.Notes != "Bring ID" {
		t.Fatalf("unexpected fields: %+v", d)
	}
}

func TestParseBookedEmptyNotes(t *testing.T) {
	d := Parse("APPOINTMENT_BOOKED: John Smith|Tuesday at 10:00|")
	if d.Notes != "" {
		t.Fatalf("expected empty notes, got %q", d.Notes)
	}
}

func TestParseBookedMissingFields(t *testing.T) {
	d := Parse("APPOINTMENT_BOOKED: John Smith")
	if d.Kind != KindAppointmentBooked {
		t.Fatalf("expected booked kind, got %v", d.Kind)
	}
	if d.Name != "John Smith" || d.AppointmentTime != "" || d.Notes != "" {
		t.Fatalf("expected degraded fields, got %+v", d)
	}
}

func TestParseRescheduleWithoutNewTime(t *testing.T) {
	d := Parse("RESCHEDULE_APPOINTMENT: Jane Doe")
	if d.Kind != KindRescheduleAppointment {
		t.Fatalf("expected reschedule kind, got %v", d.Kind)
	}
	if d.AppointmentTime != PlaceholderTime {
		t.Fatalf("expected placeholder time, got %q", d.AppointmentTime)
	}
}

func TestParseRescheduleWithNewTime(t *testing.T) {
	d := Parse("Sure! RESCHEDULE_APPOINTMENT: Jane Doe|Friday at 2 PM")
	if d.Name != "Jane Doe" || d.AppointmentTime != "Friday at 2 PM" {
		t.Fatalf("unexpected fields: %+v", d)
	}
}

func TestParsePriorityOrder(t *testing.T) {
	// A reply containing several sentinels must act on exactly one,
	// resolved by the fixed priority order.
	d := Parse("CHECK_APPOINTMENTS: Jane CONVERSATION_ENDED")
	if d.Kind != KindCheckAppointments {
		t.Fatalf("expected check to win, got %v", d.Kind)
	}

	d = Parse("CANCEL_APPOINTMENT: Jane CONVERSATION_ENDED")
	if d.Kind != KindCancelAppointment {
		t.Fatalf("expected cancel to win, got %v", d.Kind)
	}
}

func TestParseConversationEnded(t *testing.T) {
	d := Parse("CONVERSATION_ENDED")
	if d.Kind != KindConversationEnded {
		t.Fatalf("expected ended kind, got %v", d.Kind)
	}
}

func TestParsePlainText(t *testing.T) {
	d := Parse("Our business hours are 9 to 5, Monday through Friday.")
	if d.Kind != KindNone {
		t.Fatalf("expected plain text, got %v", d.Kind)
	}
	if d.Text == "" {
		t.Fatal("plain text reply must be preserved")
	}
}
