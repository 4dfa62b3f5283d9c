package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTwilioSenderSend(t *testing.T) {
	var gotPath, gotTo, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("unexpected basic auth: %q %q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotTo = r.PostFormValue("To")
		gotBody = r.PostFormValue("Body")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC123", "secret", "+15550001111")
	sender.baseURL = srv.URL

	if err := sender.Send(context.Background(), "+15552223333", "see you soon"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotTo != "+15552223333" || gotBody != "see you soon" {
		t.Errorf("form To=%q Body=%q", gotTo, gotBody)
	}
}

func TestTwilioSenderMissingCredentials(t *testing.T) {
	sender := NewTwilioSender("", "", "")
	if err := sender.Send(context.Background(), "+15552223333", "hi"); err == nil {
		t.Fatal("expected error with missing credentials")
	}
}

func TestTwilioSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid number"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC123", "secret", "+15550001111")
	sender.baseURL = srv.URL

	if err := sender.Send(context.Background(), "bogus", "hi"); err == nil {
		t.Fatal("expected error on 400 response")
	}
}

func TestWebhookSenderSend(t *testing.T) {
	var got map[string]string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "tok")
	if err := sender.Send(context.Background(), "+15552223333", "reminder text"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if got["to"] != "+15552223333" || got["body"] != "reminder text" {
		t.Errorf("payload = %v", got)
	}
}

func TestWebhookSenderMissingURL(t *testing.T) {
	sender := NewWebhookSender("", "")
	if err := sender.Send(context.Background(), "+15552223333", "hi"); err == nil {
		t.Fatal("expected error with empty url")
	}
}
