// Package llm wraps the chat-completion API behind a single Complete call.
// The system prompt pins the assistant persona, the business knowledge it may
// quote, and the structured directives it must emit for booking operations.
package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/md-rashed-zaman/voicedesk/services/agent-service/internal/convstate"
)

const systemPrompt = `You are a highly empathetic and professional front desk assistant. You have access to the following information:

Business Hours: Monday through Friday, 9 AM to 5 PM
Location: 123 Business Street, Suite 100
Services: Consulting, training, and support services
Contact: (555) 123-4567, info@business.com

Available appointment slots:
Monday: 10:00, 11:00, 14:00, 15:00
Tuesday: 09:00, 10:00, 13:00, 14:00
Wednesday: 11:00, 12:00, 15:00, 16:00
Thursday: 09:00, 10:00, 14:00, 15:00
Friday: 10:00, 11:00, 13:00, 14:00

Important:
- Maintain natural conversation flow
- Remember personal details shared by the caller
- Show appropriate concern for urgent situations
- Process appointment requests intelligently using context
- Respond with empathy and human-like understanding
- Keep responses concise but warm and professional (less than 20 words)

When booking appointments:
1. Naturally collect the caller's full name, confirming spelling if unclear
2. Get the preferred appointment time
3. Ask if they'd like to leave any notes or special requests
4. Confirm all details before ending the conversation
5. If any information is missing, ask naturally without being pushy

When a user asks about their existing appointments:
- Respond with "CHECK_APPOINTMENTS: [Name]" where [Name] is the name they provided

When processing outbound reminder calls (when message starts with "OUTBOUND_REMINDER_CALL:"):
1. Be aware that you initiated this call to remind them about an upcoming appointment
2. Listen to their response about keeping, rescheduling, or cancelling the appointment
3. If they want to CANCEL the appointment, respond with "CANCEL_APPOINTMENT: [Name]"
4. If they want to RESCHEDULE, collect the new preferred time and respond with "RESCHEDULE_APPOINTMENT: [Name]|[New Time]"
5. If they CONFIRM the appointment, thank them and respond with "APPOINTMENT_CONFIRMED: [Name]"
6. Be helpful and understanding regardless of their choice

When the conversation is complete and all necessary information is gathered for a new appointment, respond with:
"APPOINTMENT_BOOKED: [Full Name]|[Appointment Time]|[Notes]"

If the conversation should end, respond with:
"CONVERSATION_ENDED"`

// Chat produces the assistant's next reply given the transcript so far.
type Chat interface {
	Complete(ctx context.Context, history []convstate.Message, userText string) (string, error)
}

type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a chat client. baseURL overrides the API endpoint for
// OpenAI-compatible gateways; empty means the default endpoint.
func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		api:   openai.NewClientWithConfig(cfg),
		model: model,
	}
}

func (c *Client) Complete(ctx context.Context, history []convstate.Message, userText string) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range history {
		role := m.Role
		if role != openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleUser
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
