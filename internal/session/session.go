// Package session implements the per-conversation state machine the
// gateway threads a channel's inbound messages through: lifecycle
// transitions, the append-only message log, the steering queue an
// engine run borrows from, and the monotonic stats counters every run
// updates.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

// ErrInvalidTransition is returned by a lifecycle method called from a
// state the transition table forbids it in.
var ErrInvalidTransition = errors.New("session: invalid state transition")

func isTerminal(s models.SessionState) bool {
	return s == models.SessionCompleted || s == models.SessionFailed
}

// Session is the runtime vessel a channel's inbound messages flow
// through between session-manager lookups. It exclusively owns its
// message log and steering queue; an engine run only ever borrows the
// queue for the duration of one run.
type Session struct {
	mu sync.Mutex

	id        string
	channelID string
	userID    string
	groupID   string

	state  models.SessionState
	config models.SessionConfig

	messageLog []models.Message
	steering   *SteeringQueue
	stats      models.SessionStats

	createdAt    time.Time
	lastActiveAt time.Time
	endedAt      *time.Time
}

// New creates a Session in the created state. groupID is empty for a
// direct-message conversation.
func New(id, channelID, userID, groupID string, config models.SessionConfig) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		channelID:    channelID,
		userID:       userID,
		groupID:      groupID,
		state:        models.SessionCreated,
		config:       config,
		steering:     NewSteeringQueue(),
		createdAt:    now,
		lastActiveAt: now,
	}
}

func (s *Session) ID() string                     { return s.id }
func (s *Session) ChannelID() string               { return s.channelID }
func (s *Session) UserID() string                  { return s.userID }
func (s *Session) GroupID() string                 { return s.groupID }
func (s *Session) Config() models.SessionConfig     { return s.config }
func (s *Session) Steering() *SteeringQueue         { return s.steering }

// State returns the session's current lifecycle state.
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a copy of the session's monotonic counters.
func (s *Session) Stats() models.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// CreatedAt, LastActiveAt, and EndedAt report the session's lifecycle
// timestamps. EndedAt is nil until a terminal transition occurs.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) LastActiveAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveAt
}

func (s *Session) EndedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// Touch refreshes LastActiveAt, called by the session manager whenever
// a message or steer arrives for this session.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
}

// Activate moves the session to active. Forbidden only from a
// terminal state; idempotent from created or an already-active
// session, and usable in place of Resume from paused.
func (s *Session) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isTerminal(s.state) {
		return ErrInvalidTransition
	}
	s.state = models.SessionActive
	return nil
}

// Pause moves an active session to paused.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.SessionActive {
		return ErrInvalidTransition
	}
	s.state = models.SessionPaused
	return nil
}

// Resume moves a paused session back to active.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.SessionPaused {
		return ErrInvalidTransition
	}
	s.state = models.SessionActive
	return nil
}

// Complete terminates the session successfully. Forbidden from
// created: a session must have been activated at least once.
func (s *Session) Complete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == models.SessionCreated || isTerminal(s.state) {
		return ErrInvalidTransition
	}
	s.state = models.SessionCompleted
	s.terminalizeLocked()
	return nil
}

// Fail terminates the session with an error, from any state. The
// failure message is appended to the stats error log.
func (s *Session) Fail(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cause != nil {
		s.stats.Errors = append(s.stats.Errors, cause.Error())
	}
	s.state = models.SessionFailed
	s.terminalizeLocked()
}

// terminalizeLocked stamps EndedAt (once) and empties the steering
// queue, per the terminal-transition invariant. Caller holds s.mu.
func (s *Session) terminalizeLocked() {
	if s.endedAt == nil {
		now := time.Now()
		s.endedAt = &now
	}
	s.steering.Clear()
}

// Dispose clears the message log and steering queue, retaining only
// the session's system prompt in its config.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageLog = nil
	s.steering.Clear()
	s.config = models.SessionConfig{SystemPrompt: s.config.SystemPrompt}
}

// AppendMessage adds msg to the session's message log.
func (s *Session) AppendMessage(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageLog = append(s.messageLog, msg)
}

// Messages returns a copy of the session's message log.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messageLog...)
}

// RecordIteration, RecordToolInvocation, and RecordLLMCall bump the
// session's monotonic stats counters; an engine run calls these as it
// progresses through a turn.
func (s *Session) RecordIteration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Iterations++
}

func (s *Session) RecordToolInvocation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ToolInvocations++
}

func (s *Session) RecordLLMCall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.LLMCalls++
}

// Summary returns the cheap list-view projection of this session.
func (s *Session) Summary() models.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SessionSummary{
		SessionID:    s.id,
		ChannelID:    s.channelID,
		UserID:       s.userID,
		Status:       s.state,
		CreatedAt:    s.createdAt,
		LastActiveAt: s.lastActiveAt,
	}
}
