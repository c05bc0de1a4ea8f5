// Package sessions maps session identity onto live agent sessions.
package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Circle-Cat/edu-agent/internal/agent"
)

// Key identifies one agent session for the lifetime of the process.
type Key struct {
	AppName   string
	UserID    string
	SessionID string
}

func (k Key) String() string {
	return k.AppName + ":" + k.UserID + ":" + k.SessionID
}

type entry struct {
	sess     *agent.Session
	lastUsed time.Time
}

// Factory builds a not-yet-set-up session for a never-seen key.
type Factory func(key Key) *agent.Session

// Manager is the process-wide session registry. Creation and insert for a
// key are atomic: concurrent first requests for the same key share one
// fully set-up session. Constructed once at startup and injected into the
// HTTP layer; never a package global.
type Manager struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	factory Factory
	group   singleflight.Group

	// maxIdle > 0 enables the idle sweep; zero keeps the observed
	// process-lifetime retention.
	maxIdle time.Duration
}

func NewManager(factory Factory, maxIdle time.Duration) *Manager {
	return &Manager{
		entries: make(map[Key]*entry),
		factory: factory,
		maxIdle: maxIdle,
	}
}

// GetOrCreate returns the session for key, creating and setting it up on
// first sight. Setup runs inside the singleflight call, so losers of the
// creation race block until the winner's session is ready and then share it.
func (m *Manager) GetOrCreate(ctx context.Context, key Key) (*agent.Session, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if ok {
		m.touch(key)
		slog.Debug("session retrieved", "session", key.SessionID)
		return e.sess, nil
	}

	v, err, _ := m.group.Do(key.String(), func() (any, error) {
		// Re-check: an earlier flight may have inserted between the
		// read above and this call.
		m.mu.RLock()
		e, ok := m.entries[key]
		m.mu.RUnlock()
		if ok {
			return e.sess, nil
		}

		sess := m.factory(key)
		if err := sess.Setup(ctx); err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.entries[key] = &entry{sess: sess, lastUsed: time.Now()}
		m.mu.Unlock()
		slog.Info("session created", "app", key.AppName, "user", key.UserID, "session", key.SessionID)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	m.touch(key)
	return v.(*agent.Session), nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Start launches the idle-eviction sweep when maxIdle is configured. It
// returns immediately; the sweep stops when ctx is done.
func (m *Manager) Start(ctx context.Context) {
	if m.maxIdle <= 0 {
		return
	}
	interval := m.maxIdle / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep(time.Now())
			}
		}
	}()
}

func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if now.Sub(e.lastUsed) > m.maxIdle {
			delete(m.entries, key)
			slog.Info("session evicted", "session", key.SessionID, "idle", now.Sub(e.lastUsed).Round(time.Second))
		}
	}
}

func (m *Manager) touch(key Key) {
	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		e.lastUsed = time.Now()
	}
	m.mu.Unlock()
}
