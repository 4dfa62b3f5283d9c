package timewindow

import (
	"testing"
	"time"
)

// Wednesday, January 28 2026, 12:00 UTC.
var wednesdayNoon = time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)

func TestNextOccurrence24Hour(t *testing.T) {
	at, err := NextOccurrence("Tuesday at 14:00", wednesdayNoon)
	if err != nil {
		t.Fatalf("NextOccurrence failed: %v", err)
	}
	if at.Weekday() != time.Tuesday {
		t.Fatalf("expected Tuesday, got %s", at.Weekday())
	}
	if at.Hour() != 14 || at.Minute() != 0 {
		t.Fatalf("expected 14:00, got %02d:%02d", at.Hour(), at.Minute())
	}
	if !at.After(wednesdayNoon) {
		t.Fatalf("occurrence %s is not in the future", at)
	}
}

func TestNextOccurrencePM(t *testing.T) {
	at, err := NextOccurrence("Wednesday at 4 PM", wednesdayNoon)
	if err != nil {
		t.Fatalf("NextOccurrence failed: %v", err)
	}
	if at.Hour() != 16 {
		t.Fatalf("expected 16:00, got %02d:%02d", at.Hour(), at.Minute())
	}
	// Same day, later time: must stay on today.
	if !at.Equal(time.Date(2026, 1, 28, 16, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected same-day occurrence, got %s", at)
	}
}

func TestNextOccurrenceSameDayPassedRollsForward(t *testing.T) {
	at, err := NextOccurrence("Wednesday at 9:00", wednesdayNoon)
	if err != nil {
		t.Fatalf("NextOccurrence failed: %v", err)
	}
	if !at.Equal(time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected next week, got %s", at)
	}
}

func TestNextOccurrenceExactlyNowRollsForward(t *testing.T) {
	at, err := NextOccurrence("Wednesday at 12:00", wednesdayNoon)
	if err != nil {
		t.Fatalf("NextOccurrence failed: %v", err)
	}
	if !at.After(wednesdayNoon) {
		t.Fatalf("occurrence %s must be strictly after now", at)
	}
}

func TestNextOccurrenceCaseInsensitiveWeekday(t *testing.T) {
	if _, err := NextOccurrence("friday AT 10:00", wednesdayNoon); err != nil {
		t.Fatalf("expected case-insensitive parse, got %v", err)
	}
}

func TestNextOccurrenceUnparseable(t *testing.T) {
	for _, s := range []string{
		"tomorrow at 10:00",
		"Tuesday 14:00",
		"Tuesday at sometime",
		"",
	} {
		if _, err := NextOccurrence(s, wednesdayNoon); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func TestNextOccurrenceLengthChangingRunes(t *testing.T) {
	// Lowercasing can change a string's byte length (U+023A grows from two
	// bytes to three); splitting must not index past the end of the input.
	for _, s := range []string{
		"ȺȺ at 5",
		"İ at 10:00",
		"ȺȺȺȺ",
	} {
		if _, err := NextOccurrence(s, wednesdayNoon); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
	if got := ClassifyString("ȺȺ at 5", wednesdayNoon); got != ReminderNone {
		t.Fatalf("expected none, got %q", got)
	}
}

func TestClassifyFarWindow(t *testing.T) {
	appt := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC) // Monday 09:00

	now := appt.Add(-36*time.Hour - 10*time.Minute)
	if got := Classify(appt, now); got != ReminderFarBefore {
		t.Fatalf("36h10m ahead: expected far_before, got %q", got)
	}

	now = appt.Add(-36*time.Hour - 20*time.Minute)
	if got := Classify(appt, now); got != ReminderNone {
		t.Fatalf("outside band: expected none, got %q", got)
	}
}

func TestClassifyNearWindow(t *testing.T) {
	appt := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)

	now := appt.Add(-30 * time.Minute)
	if got := Classify(appt, now); got != ReminderNearBefore {
		t.Fatalf("30m ahead: expected near_before, got %q", got)
	}

	now = appt.Add(-2 * time.Hour)
	if got := Classify(appt, now); got != ReminderNone {
		t.Fatalf("2h ahead: expected none, got %q", got)
	}
}

func TestClassifyIsPure(t *testing.T) {
	appt := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)
	now := appt.Add(-34 * time.Minute)
	if Classify(appt, now) != Classify(appt, now) {
		t.Fatal("classification must be deterministic for identical inputs")
	}
}

func TestClassifyStringUnparseableNeverDue(t *testing.T) {
	if got := ClassifyString("whenever works", wednesdayNoon); got != ReminderNone {
		t.Fatalf("expected none for unparseable time, got %q", got)
	}
}
