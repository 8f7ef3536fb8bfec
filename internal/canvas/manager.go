package canvas

import "sync"

// Manager hands out one Graph per session, creating it on first
// access. A session's graph lives as long as the session itself; the
// gateway removes it when the session is evicted.
type Manager struct {
	broadcaster Broadcaster

	mu     sync.Mutex
	graphs map[string]*Graph
}

// NewManager creates a Manager. broadcaster is attached to every graph
// it creates; pass nil for a manager whose graphs never stream changes
// anywhere (e.g. in tests).
func NewManager(broadcaster Broadcaster) *Manager {
	return &Manager{
		broadcaster: broadcaster,
		graphs:      make(map[string]*Graph),
	}
}

// GraphFor returns sessionID's graph, creating an empty one on first
// call.
func (m *Manager) GraphFor(sessionID string) *Graph {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.graphs[sessionID]; ok {
		return g
	}
	g := NewGraph(sessionID, m.broadcaster)
	m.graphs[sessionID] = g
	return g
}

// Snapshot returns sessionID's current state, or false if the session
// has no graph yet (nothing has been rendered to it).
func (m *Manager) Snapshot(sessionID string) (*State, bool) {
	m.mu.Lock()
	g, ok := m.graphs[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return g.State(), true
}

// Remove drops sessionID's graph, e.g. when its session is evicted.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	delete(m.graphs, sessionID)
	m.mu.Unlock()
}
