// Package telephony is a minimal REST client for the telephony provider. It
// covers the three calls the services need: placing an outbound call, sending
// an SMS, and listing recent calls for the dashboard.
package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Caller places outbound reminder calls.
type Caller interface {
	CreateCall(ctx context.Context, to string, callbackURL string) (string, error)
}

type Client struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	http       *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the provider API endpoint, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func NewClient(accountSID, authToken, fromNumber string, opts ...Option) *Client {
	c := &Client{
		accountSID: strings.TrimSpace(accountSID),
		authToken:  strings.TrimSpace(authToken),
		fromNumber: strings.TrimSpace(fromNumber),
		baseURL:    "https://api.twilio.com",
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call is the subset of the provider's call resource the dashboard shows.
type Call struct {
	SID       string `json:"sid"`
	To        string `json:"to"`
	From      string `json:"from"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
	StartTime string `json:"start_time"`
	Duration  string `json:"duration"`
}

// CreateCall dials to and points the call at callbackURL for instructions.
// It returns the provider call SID.
func (c *Client) CreateCall(ctx context.Context, to string, callbackURL string) (string, error) {
	if c.accountSID == "" || c.authToken == "" {
		return "", errors.New("telephony credentials not configured")
	}
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.fromNumber)
	form.Set("Url", callbackURL)

	var out struct {
		SID string `json:"sid"`
	}
	if err := c.post(ctx, "/Calls.json", form, &out); err != nil {
		return "", err
	}
	return out.SID, nil
}

func (c *Client) SendSMS(ctx context.Context, to string, body string) error {
	if c.accountSID == "" || c.authToken == "" {
		return errors.New("telephony credentials not configured")
	}
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)
	return c.post(ctx, "/Messages.json", form, nil)
}

// RecentCalls lists up to limit of the most recent calls on the account.
func (c *Client) RecentCalls(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 20
	}
	endpoint := c.accountURL("/Calls.json") + "?PageSize=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telephony api returned status %d", resp.StatusCode)
	}

	var out struct {
		Calls []Call `json:"calls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Calls, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountURL(path), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telephony api returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) accountURL(path string) string {
	return c.baseURL + "/2010-04-01/Accounts/" + c.accountSID + path
}

// NoopCaller satisfies Caller without dialing anything; used when the sweeper
// runs without provider credentials.
type NoopCaller struct{}

func (NoopCaller) CreateCall(_ context.Context, _ string, _ string) (string, error) {
	return "noop", nil
}
