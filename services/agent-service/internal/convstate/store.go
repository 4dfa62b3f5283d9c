// Package convstate keeps per-call conversation state in Redis, keyed by the
// provider call SID. State lives only as long as a call plausibly does; the
// TTL is refreshed on every save and the webhook deletes the key when the
// call ends.
package convstate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "conv:"
	ttl       = time.Hour

	// maxHistory bounds the transcript we replay to the language model.
	maxHistory = 20
)

// Message is one turn of the transcript, in chat-completion roles.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type State struct {
	Intent        string            `json:"intent,omitempty"`
	BookingStage  string            `json:"booking_stage,omitempty"`
	CollectedInfo map[string]string `json:"collected_info,omitempty"`
	Reprompted    bool              `json:"reprompted,omitempty"`
	History       []Message         `json:"history,omitempty"`
}

// Append records one transcript turn, trimming the oldest turns past the cap.
func (s *State) Append(role, content string) {
	s.History = append(s.History, Message{Role: role, Content: content})
	if len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
}

// Collect stores a piece of booking info under key.
func (s *State) Collect(key, value string) {
	if s.CollectedInfo == nil {
		s.CollectedInfo = map[string]string{}
	}
	s.CollectedInfo[key] = value
}

type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Load returns the state for callID, or a fresh zero state when none exists.
func (s *Store) Load(ctx context.Context, callID string) (*State, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+callID).Bytes()
	if errors.Is(err, redis.Nil) {
		return &State{}, nil
	}
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		// A corrupt value is unrecoverable; start the conversation over.
		return &State{}, nil
	}
	return &st, nil
}

func (s *Store) Save(ctx context.Context, callID string, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyPrefix+callID, raw, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, callID string) error {
	return s.rdb.Del(ctx, keyPrefix+callID).Err()
}
