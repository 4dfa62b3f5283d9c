// Package timewindow resolves the informal "<Weekday> at <time>" schedule
// grammar into concrete timestamps and decides whether an appointment is due
// a reminder call. Everything here is a pure function of its inputs so the
// sweeper can re-evaluate the same appointment on every pass.
package timewindow

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ReminderType classifies which reminder window "now" falls into.
type ReminderType string

const (
	// ReminderFarBefore triggers in a band centered 36 hours ahead of the
	// appointment (±15 minutes).
	ReminderFarBefore ReminderType = "far_before"
	// ReminderNearBefore triggers in a band centered 30 minutes ahead
	// (±5 minutes).
	ReminderNearBefore ReminderType = "near_before"
	// ReminderGeneral is used for manually triggered reminder calls; the
	// classifier never returns it.
	ReminderGeneral ReminderType = "general"
	// ReminderNone means no reminder is due.
	ReminderNone ReminderType = ""
)

var ErrUnparseable = errors.New("unparseable appointment time")

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// NextOccurrence parses s ("Tuesday at 14:00", "Wednesday at 4 PM") and
// returns the next occurrence of that weekday/time strictly after now. If the
// weekday is today but the time of day has already passed (or is exactly
// now), the occurrence rolls forward a full week.
func NextOccurrence(s string, now time.Time) (time.Time, error) {
	dayToken, timeToken, ok := cutSeparator(s)
	if !ok {
		return time.Time{}, ErrUnparseable
	}

	weekday, ok := weekdays[strings.ToLower(strings.TrimSpace(dayToken))]
	if !ok {
		return time.Time{}, ErrUnparseable
	}

	hour, minute, err := parseTimeToken(timeToken)
	if err != nil {
		return time.Time{}, err
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, ErrUnparseable
	}

	daysUntil := (int(weekday) - int(now.Weekday()) + 7) % 7
	if daysUntil == 0 && (hour < now.Hour() || (hour == now.Hour() && minute <= now.Minute())) {
		daysUntil = 7
	}

	day := now.AddDate(0, 0, daysUntil)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location()), nil
}

// Classify reports which reminder window now falls into for an appointment at
// appointmentAt. When the horizon is short enough for both bands to overlap,
// the far-ahead classification wins.
func Classify(appointmentAt, now time.Time) ReminderType {
	until := appointmentAt.Sub(now)

	farCenter := 36 * time.Hour
	if until >= farCenter-15*time.Minute && until <= farCenter+15*time.Minute {
		return ReminderFarBefore
	}

	nearCenter := 30 * time.Minute
	if until >= nearCenter-5*time.Minute && until <= nearCenter+5*time.Minute {
		return ReminderNearBefore
	}

	return ReminderNone
}

// ClassifyString combines parsing and classification; unparseable schedule
// strings are simply never due a reminder.
func ClassifyString(s string, now time.Time) ReminderType {
	at, err := NextOccurrence(s, now)
	if err != nil {
		return ReminderNone
	}
	return Classify(at, now)
}

// cutSeparator splits on the literal " at " separator, case-insensitively.
// Matching is done byte-window by byte-window; lowercasing the whole string
// first can change its byte length and produce out-of-range indexes.
func cutSeparator(s string) (day, rest string, ok bool) {
	const sep = " at "
	for i := 0; i+len(sep) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sep)], sep) {
			return s[:i], s[i+len(sep):], true
		}
	}
	return "", "", false
}

func parseTimeToken(token string) (hour, minute int, err error) {
	token = strings.TrimSpace(token)

	if h, m, ok := strings.Cut(token, ":"); ok && allDigits(m) {
		hour, err = strconv.Atoi(strings.TrimSpace(h))
		if err != nil {
			return 0, 0, ErrUnparseable
		}
		minute, err = strconv.Atoi(m)
		if err != nil {
			return 0, 0, ErrUnparseable
		}
		return hour, minute, nil
	}

	// Bare hour, optionally suffixed with an AM/PM marker. A colon whose
	// minutes part is not purely numeric ("4:30 PM") degrades to the hour.
	lower := strings.ToLower(token)
	hourPart := lower
	if h, _, ok := strings.Cut(lower, ":"); ok {
		hourPart = h
	}
	digits := strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(hourPart, "am"), "pm"))
	hour, err = strconv.Atoi(digits)
	if err != nil {
		return 0, 0, ErrUnparseable
	}
	if strings.Contains(lower, "pm") && hour < 12 {
		hour += 12
	}
	return hour, 0, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
