// Package remindctx carries outbound reminder-call metadata through the
// telephony callback URL as an opaque token. Decoding fails closed: a
// malformed token means "not a reminder call", never an error the webhook
// surfaces to the caller.
package remindctx

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/timewindow"
)

// QueryParam is the callback URL query parameter carrying the encoded context.
const QueryParam = "reminder_context"

type Context struct {
	AppointmentID   int64                   `json:"appointment_id"`
	ClientName      string                  `json:"client_name"`
	AppointmentTime string                  `json:"appointment_time"`
	Notes           string                  `json:"notes,omitempty"`
	ReminderType    timewindow.ReminderType `json:"reminder_type"`
	IsReminderCall  bool                    `json:"is_reminder_call"`
}

// FirstName returns the first whitespace-separated token of the client name,
// falling back to a generic address.
func (c *Context) FirstName() string {
	fields := strings.Fields(c.ClientName)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func Encode(c Context) string {
	c.IsReminderCall = true
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(raw)
}

// Decode returns nil for empty or malformed tokens.
func Decode(token string) *Context {
	if token == "" {
		return nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil
	}
	var c Context
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil
	}
	if !c.IsReminderCall {
		return nil
	}
	if c.ReminderType == "" {
		c.ReminderType = timewindow.ReminderGeneral
	}
	return &c
}
