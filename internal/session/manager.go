// Package session tracks the live sessions of one crust process and
// persists conversations as transcripts.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/samcharles93/crust/internal/inference"
	"github.com/samcharles93/crust/internal/logger"
)

// Config controls manager eviction.
type Config struct {
	// IdleTTL is how long a session may go untouched before it is evicted
	// and its engine context closed. Non-positive disables idle expiry.
	IdleTTL time.Duration

	// MaxSessions caps the number of live sessions; adding past the cap
	// evicts the least recently used one. Non-positive means no cap.
	MaxSessions int
}

// Manager owns the live sessions of one process, keyed by session id.
// Get extends a session's idle deadline; sessions left untouched past the
// configured TTL are evicted and their engine contexts closed. All methods
// are safe for concurrent use.
type Manager struct {
	cache *ttlcache.Cache[string, *inference.Session]
	log   logger.Logger
	unsub func()
	stop  sync.Once
}

// NewManager creates a manager and starts its expiry loop. A nil log
// silences eviction logging.
func NewManager(cfg Config, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	var opts []ttlcache.Option[string, *inference.Session]
	if cfg.IdleTTL > 0 {
		opts = append(opts, ttlcache.WithTTL[string, *inference.Session](cfg.IdleTTL))
	}
	if cfg.MaxSessions > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, *inference.Session](uint64(cfg.MaxSessions)))
	}

	m := &Manager{
		cache: ttlcache.New[string, *inference.Session](opts...),
		log:   log,
	}
	m.unsub = m.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *inference.Session]) {
		m.log.Info("session evicted", "session", item.Key(), "reason", evictionReason(reason))
		if err := item.Value().Close(); err != nil {
			m.log.Warn("closing evicted session", "session", item.Key(), "error", err)
		}
	})
	go m.cache.Start()
	return m
}

// Add registers a live session under its id.
func (m *Manager) Add(sess *inference.Session) {
	m.cache.Set(sess.ID(), sess, ttlcache.DefaultTTL)
	m.log.Debug("session added", "session", sess.ID())
}

// Get returns the session with the given id, extending its idle deadline.
func (m *Manager) Get(id string) (*inference.Session, bool) {
	item := m.cache.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Remove evicts the session with the given id, closing its engine context.
// It reports whether a session was found.
func (m *Manager) Remove(id string) bool {
	if !m.cache.Has(id) {
		return false
	}
	m.cache.Delete(id)
	return true
}

// List returns the live sessions sorted by id. Idle deadlines are not
// extended.
func (m *Manager) List() []*inference.Session {
	items := m.cache.Items()
	out := make([]*inference.Session, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.cache.Len()
}

// Close stops the expiry loop and closes every remaining session. Eviction
// handlers run on their own goroutines; unsubscribing waits for them, so
// all sessions are closed when Close returns. Safe to call more than once.
func (m *Manager) Close() {
	m.stop.Do(func() {
		m.cache.Stop()
		m.cache.DeleteAll()
		m.unsub()
	})
}

func evictionReason(r ttlcache.EvictionReason) string {
	switch r {
	case ttlcache.EvictionReasonExpired:
		return "idle"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	case ttlcache.EvictionReasonDeleted:
		return "removed"
	}
	return "unknown"
}
