// Package chat holds the consultation transcript with the virtual patient.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/medsim/osce/internal/model"
)

var (
	ErrNotStarted     = errors.New("no consultation in progress")
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrBusy           = errors.New("waiting for the previous answer")
	ErrStationChanged = errors.New("consultation was reset while waiting for the answer")
)

// Responder produces the virtual patient's answer to one turn.
type Responder interface {
	Reply(ctx context.Context, caseNumber model.CaseNumber, history []model.ChatMessage, text string) (string, error)
}

// Transcript is an ordered list of role-tagged messages. It is safe for concurrent use.
type Transcript struct {
	clock clockwork.Clock
	mu    sync.Mutex
	msgs  []model.ChatMessage
}

// NewTranscript creates an empty transcript stamping messages with clock.
func NewTranscript(clock clockwork.Clock) *Transcript {
	return &Transcript{clock: clock}
}

// Append adds a message and returns it.
func (t *Transcript) Append(role model.Role, content string) model.ChatMessage {
	m := model.ChatMessage{Role: role, Content: content, At: t.clock.Now()}
	t.mu.Lock()
	t.msgs = append(t.msgs, m)
	t.mu.Unlock()
	return m
}

// Messages returns a copy of the messages.
func (t *Transcript) Messages() []model.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.ChatMessage, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// Clear removes every message.
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.msgs = nil
	t.mu.Unlock()
}

func (t *Transcript) truncate(n int) {
	t.mu.Lock()
	if n < len(t.msgs) {
		t.msgs = t.msgs[:n]
	}
	t.mu.Unlock()
}

// Session is one consultation: a case number, its transcript and the
// responder that plays the patient.
type Session struct {
	responder  Responder
	transcript *Transcript

	mu         sync.Mutex
	caseNumber model.CaseNumber
	epoch      int
	sending    bool
}

// NewSession creates a session that is not started yet.
func NewSession(r Responder, clock clockwork.Clock) *Session {
	return &Session{responder: r, transcript: NewTranscript(clock)}
}

// Start resets the transcript for caseNumber and posts greeting as a system
// message when it is not empty.
func (s *Session) Start(caseNumber model.CaseNumber, greeting string) {
	s.mu.Lock()
	s.caseNumber = caseNumber
	s.epoch++
	s.sending = false
	s.mu.Unlock()

	s.transcript.Clear()
	if greeting != "" {
		s.transcript.Append(model.RoleSystem, greeting)
	}
}

// Reset drops the consultation entirely.
func (s *Session) Reset() {
	s.mu.Lock()
	s.caseNumber = ""
	s.epoch++
	s.sending = false
	s.mu.Unlock()
	s.transcript.Clear()
}

// CaseNumber returns the case being consulted, or "" when not started.
func (s *Session) CaseNumber() model.CaseNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caseNumber
}

// Transcript returns the session transcript.
func (s *Session) Transcript() *Transcript { return s.transcript }

// Send posts the student's message and waits for the patient's answer. On
// failure the user turn is rolled back so the caller can retry with the same text.
func (s *Session) Send(ctx context.Context, text string) (model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ChatMessage{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.caseNumber == "" {
		s.mu.Unlock()
		return model.ChatMessage{}, ErrNotStarted
	}
	if s.sending {
		s.mu.Unlock()
		return model.ChatMessage{}, ErrBusy
	}
	s.sending = true
	caseNumber, epoch := s.caseNumber, s.epoch
	s.mu.Unlock()

	history := s.transcript.Messages()
	before := len(history)
	s.transcript.Append(model.RoleUser, text)

	reply, err := s.responder.Reply(ctx, caseNumber, history, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return model.ChatMessage{}, ErrStationChanged
	}
	s.sending = false
	if err != nil {
		s.transcript.truncate(before)
		return model.ChatMessage{}, fmt.Errorf("send message: %w", err)
	}
	return s.transcript.Append(model.RoleAssistant, reply), nil
}
