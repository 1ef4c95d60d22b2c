package transport

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gdoct/apexsim-sub001/internal/model"
)

// Manager tracks every live reliable connection so the scheduler's
// housekeep step can run heartbeat timeouts and graceful shutdown
// without the listener itself needing to own connection lifecycle
// bookkeeping (§4.7, §4.8 step 4).
type Manager struct {
	mu   sync.RWMutex
	byID map[model.ConnectionID]*Connection
	log  zerolog.Logger
}

func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		byID: make(map[model.ConnectionID]*Connection),
		log:  logger.With().Str("component", "transport-manager").Logger(),
	}
}

func (m *Manager) Add(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.ID] = c
}

func (m *Manager) Remove(id model.ConnectionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

func (m *Manager) Get(id model.ConnectionID) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	return c, ok
}

// All returns a snapshot of every tracked connection.
func (m *Manager) All() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out
}

// CheckTimeouts returns the connections whose last-seen tick is older
// than the timeout, relative to currentTick and the configured tick
// period (§4.7: "a housekeeping pass once per second disconnects any
// connection whose last_seen_tick is older than the configured
// timeout").
func (m *Manager) CheckTimeouts(currentTick int64, tickPeriodMs float64, timeout time.Duration) []*Connection {
	staleAfterTicks := int64(timeout.Milliseconds()) / int64(tickPeriodMs)
	if staleAfterTicks <= 0 {
		staleAfterTicks = 1
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var stale []*Connection
	for _, c := range m.byID {
		if currentTick-c.LastSeenTick() > staleAfterTicks {
			stale = append(stale, c)
		}
	}
	return stale
}

// SlowConnections returns connections that tripped the non-droppable
// deadline and should be scheduled for disconnect (§4.7).
func (m *Manager) SlowConnections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var slow []*Connection
	for _, c := range m.byID {
		if c.IsSlow() {
			slow = append(slow, c)
		}
	}
	return slow
}
