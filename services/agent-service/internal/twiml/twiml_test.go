package twiml

import (
	"strings"
	"testing"
)

func TestRenderSayHangup(t *testing.T) {
	r := new(Response).Say("Thank you for calling. Have a great day!").Hangup()

	out, err := Render(r)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.HasPrefix(out, "<?xml") {
		t.Fatalf("missing XML declaration: %q", out)
	}
	for _, want := range []string{
		`<Say voice="alice">Thank you for calling. Have a great day!</Say>`,
		"<Hangup></Hangup>",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderGatherNestsPrompts(t *testing.T) {
	r := new(Response).SpeechGather("/handle-input", "Hello.", "How can I help?")

	out, err := Render(r)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, `<Gather input="speech" action="/handle-input" method="POST" timeout="5" speechTimeout="auto">`) {
		t.Fatalf("unexpected gather attributes:\n%s", out)
	}
	gather := out[strings.Index(out, "<Gather"):strings.Index(out, "</Gather>")]
	if !strings.Contains(gather, "Hello.") || !strings.Contains(gather, "How can I help?") {
		t.Fatalf("prompts not nested inside gather:\n%s", out)
	}
}

func TestRenderPreservesVerbOrder(t *testing.T) {
	r := new(Response).Say("first").Redirect("/voice")

	out, err := Render(r)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Index(out, "<Say") > strings.Index(out, "<Redirect") {
		t.Fatalf("verbs rendered out of order:\n%s", out)
	}
	if !strings.Contains(out, `<Redirect method="POST">/voice</Redirect>`) {
		t.Fatalf("unexpected redirect rendering:\n%s", out)
	}
}

func TestRenderMessage(t *testing.T) {
	out, err := Render(new(Response).Message("You're booked for Tuesday at 14:00."))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, "<Message>You&#39;re booked for Tuesday at 14:00.</Message>") {
		t.Fatalf("unexpected message rendering:\n%s", out)
	}
}
