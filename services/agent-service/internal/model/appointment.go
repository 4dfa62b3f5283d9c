package model

import "time"

// Appointment statuses. An appointment starts as StatusPending and is only
// ever overwritten, never versioned.
const (
	StatusPending     = "pending"
	StatusConfirmed   = "confirmed"
	StatusCancelled   = "cancelled"
	StatusRescheduled = "rescheduled"
)

// UnknownPhone is stored when the caller identity is not available.
const UnknownPhone = "Unknown"

type Appointment struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	AppointmentTime string    `json:"appointment_time"` // informal "<Weekday> at <time>" grammar, parsed on demand
	Notes           string    `json:"notes"`
	PhoneNumber     string    `json:"phone_number"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
