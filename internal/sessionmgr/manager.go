// Package sessionmgr keeps the registry of live sessions a gateway's
// channel adapters dispatch into, keyed by conversation, and sweeps
// idle ones out on a timer.
package sessionmgr

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridianlabs/agentgateway/internal/session"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// ContextKey builds the registry key for a conversation: channelId,
// userId, and an optional groupId for group/thread conversations.
// Generalizes the teacher's SessionKey(agentID, channel, channelID)
// helper to this gateway's per-conversation (not per-agent) scoping.
func ContextKey(channelID, userID, groupID string) string {
	if groupID == "" {
		return channelID + ":" + userID
	}
	return channelID + ":" + userID + ":" + groupID
}

// Config governs default session construction and idle eviction.
type Config struct {
	DefaultModel        string
	DefaultProvider     string
	DefaultAutonomy     models.AutonomyLevel
	DefaultSystemPrompt string
	IdleTTL             time.Duration
	SweepInterval       time.Duration

	// OnEvict, when set, is called with a session's ID once it leaves
	// the registry for good (explicit End, or idle/terminal sweep), so
	// per-session state kept elsewhere (e.g. a canvas graph) can be
	// dropped too.
	OnEvict func(sessionID string)
}

func (c *Config) setDefaults() {
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.DefaultAutonomy == "" {
		c.DefaultAutonomy = models.AutonomySupervised
	}
}

// Manager is the in-memory session registry. One Manager is shared by
// every channel adapter and the control plane in a running gateway.
type Manager struct {
	mu       sync.RWMutex
	byKey    map[string]*session.Session
	byID     map[string]*session.Session
	config   Config
	logger   *slog.Logger

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New builds a Manager and starts its background idle-eviction sweep.
// Call Close to stop the sweep goroutine.
func New(config Config, logger *slog.Logger) *Manager {
	config.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		byKey:     make(map[string]*session.Session),
		byID:      make(map[string]*session.Session),
		config:    config,
		logger:    logger,
		stopSweep: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// GetOrCreate returns the session for this conversation, creating one
// in the created state if none exists yet, and refreshes its
// last-active timestamp either way.
func (m *Manager) GetOrCreate(channelID, userID, groupID string) *session.Session {
	key := ContextKey(channelID, userID, groupID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.byKey[key]; ok && !isTerminalState(s.State()) {
		s.Touch()
		return s
	}

	s := session.New(uuid.NewString(), channelID, userID, groupID, models.SessionConfig{
		Model:         m.config.DefaultModel,
		Provider:      m.config.DefaultProvider,
		AutonomyLevel: m.config.DefaultAutonomy,
		SystemPrompt:  m.config.DefaultSystemPrompt,
	})
	m.byKey[key] = s
	m.byID[s.ID()] = s
	return s
}

func isTerminalState(s models.SessionState) bool {
	return s == models.SessionCompleted || s == models.SessionFailed
}

// Get looks a session up by ID.
func (m *Manager) Get(id string) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	return s, ok
}

// List returns a summary of every registered session.
func (m *Manager) List() []models.SessionSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.SessionSummary, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s.Summary())
	}
	return out
}

// Touch refreshes a session's last-active timestamp, called whenever a
// channel adapter routes an inbound message or steer to it.
func (m *Manager) Touch(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("sessionmgr: session %q not found", id)
	}
	s.Touch()
	return nil
}

// End transitions a session to completed and removes it from the
// registry's key index so a fresh conversation on the same key starts
// a new session; the session object itself remains reachable by ID
// until the next sweep evicts it.
func (m *Manager) End(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("sessionmgr: session %q not found", id)
	}
	if err := s.Complete(); err != nil {
		s.Fail(err)
	}
	m.unkey(s)
	if m.config.OnEvict != nil {
		m.config.OnEvict(s.ID())
	}
	return nil
}

func (m *Manager) unkey(s *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ContextKey(s.ChannelID(), s.UserID(), s.GroupID())
	if m.byKey[key] == s {
		delete(m.byKey, key)
	}
}

// Close stops the background sweep goroutine. Safe to call more than
// once.
func (m *Manager) Close() {
	m.sweepOnce.Do(func() {
		close(m.stopSweep)
	})
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

// sweepIdle disposes and evicts sessions that have sat idle longer
// than IdleTTL, and drops terminal sessions from both indices
// entirely. Generalizes the teacher's SessionExpiry/CheckExpiry sweep
// to a single idle-TTL rule, since this gateway's session contract has
// no daily-reset or per-conversation-type reset matrix to honor.
func (m *Manager) sweepIdle() {
	now := time.Now()

	m.mu.Lock()
	var toEvict []*session.Session
	for _, s := range m.byID {
		idle := now.Sub(s.LastActiveAt())
		switch {
		case isTerminalState(s.State()):
			toEvict = append(toEvict, s)
		case idle >= m.config.IdleTTL:
			toEvict = append(toEvict, s)
		}
	}
	m.mu.Unlock()

	for _, s := range toEvict {
		if !isTerminalState(s.State()) {
			s.Dispose()
			if err := s.Complete(); err != nil {
				s.Fail(err)
			}
			m.logger.Info("session evicted for idleness", "session_id", s.ID())
		}
		m.unkey(s)
		m.mu.Lock()
		delete(m.byID, s.ID())
		m.mu.Unlock()
		if m.config.OnEvict != nil {
			m.config.OnEvict(s.ID())
		}
	}
}
