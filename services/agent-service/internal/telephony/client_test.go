package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateCallPostsForm(t *testing.T) {
	var gotPath, gotTo, gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm failed: %v", err)
		}
		gotTo = r.PostForm.Get("To")
		gotURL = r.PostForm.Get("Url")
		if u, p, ok := r.BasicAuth(); !ok || u != "AC123" || p != "secret" {
			t.Fatalf("unexpected basic auth %q %q", u, p)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA42"}`))
	}))
	defer srv.Close()

	c := NewClient("AC123", "secret", "+15550001111", WithBaseURL(srv.URL))
	sid, err := c.CreateCall(context.Background(), "+15552223333", "https://agent.example.com/voice?reminder_context=abc")
	if err != nil {
		t.Fatalf("CreateCall failed: %v", err)
	}
	if sid != "CA42" {
		t.Fatalf("expected sid CA42, got %q", sid)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Calls.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotTo != "+15552223333" {
		t.Fatalf("unexpected To %q", gotTo)
	}
	if gotURL != "https://agent.example.com/voice?reminder_context=abc" {
		t.Fatalf("unexpected Url %q", gotURL)
	}
}

func TestCreateCallNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("AC123", "secret", "+15550001111", WithBaseURL(srv.URL))
	if _, err := c.CreateCall(context.Background(), "+15552223333", "https://example.com/voice"); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestCreateCallWithoutCredentials(t *testing.T) {
	c := NewClient("", "", "+15550001111")
	if _, err := c.CreateCall(context.Background(), "+15552223333", "https://example.com/voice"); err == nil {
		t.Fatal("expected error when credentials missing")
	}
}

func TestRecentCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("PageSize") != "5" {
			t.Fatalf("unexpected page size %q", r.URL.Query().Get("PageSize"))
		}
		w.Write([]byte(`{"calls":[{"sid":"CA1","to":"+15552223333","status":"completed"}]}`))
	}))
	defer srv.Close()

	c := NewClient("AC123", "secret", "+15550001111", WithBaseURL(srv.URL))
	calls, err := c.RecentCalls(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentCalls failed: %v", err)
	}
	if len(calls) != 1 || calls[0].SID != "CA1" || calls[0].Status != "completed" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}
