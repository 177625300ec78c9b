// Package sessions provides the in-memory session store: per-session
// message logs with retention rewriting, context bags, and idle eviction.
package sessions

import (
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/mcphost/internal/metrics"
	"github.com/haasonsaas/mcphost/pkg/models"
)

// Defaults for retention and eviction.
const (
	DefaultMaxMessages     = 50
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// Config bounds the store. Zero values take the defaults above.
type Config struct {
	MaxMessages     int
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

func (c Config) sanitized() Config {
	if c.MaxMessages <= 0 {
		c.MaxMessages = DefaultMaxMessages
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	return c
}

// Store is an in-memory session store safe for concurrent use. Reads hand
// out snapshots; sessions are created on first reference.
type Store struct {
	config Config
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*models.Session

	// nowFunc is swappable so eviction is testable with a fixed clock.
	nowFunc func() time.Time
}

// NewStore creates a store with the given bounds.
func NewStore(config Config, logger *slog.Logger) *Store {
	return &Store{
		config:   config.sanitized(),
		logger:   logger.With("component", "sessions"),
		sessions: make(map[string]*models.Session),
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (s *Store) SetNowFunc(now func() time.Time) { s.nowFunc = now }

// GetOrCreate returns the session for id, creating it on first reference,
// and bumps last_access.
func (s *Store) GetOrCreate(id string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(id)
}

func (s *Store) getOrCreateLocked(id string) *models.Session {
	now := s.nowFunc()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &models.Session{
			ID:         id,
			Context:    make(map[string]any),
			CreatedAt:  now,
			LastAccess: now,
		}
		s.sessions[id] = sess
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
		s.logger.Info("session created", "session", id)
		return sess
	}
	sess.LastAccess = now
	return sess
}

// AppendUser appends a user message.
func (s *Store) AppendUser(id, content string) models.Message {
	return s.append(id, models.RoleUser, content, nil)
}

// AppendAssistant appends an assistant message with optional metadata.
func (s *Store) AppendAssistant(id, content string, metadata map[string]any) models.Message {
	return s.append(id, models.RoleAssistant, content, metadata)
}

func (s *Store) append(id string, role models.Role, content string, metadata map[string]any) models.Message {
	msg := models.Message{
		Role:      role,
		Content:   content,
		Timestamp: s.nowFunc(),
		Metadata:  metadata,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	sess.Messages = append(sess.Messages, msg)
	sess.Messages = retain(sess.Messages, s.config.MaxMessages)
	return msg
}

// retain bounds a message log: past max, keep the first message (the
// originating user intent) plus a tail window of min(10, max/2) entries.
// Idempotent: applying it to an already-bounded log is a no-op.
func retain(messages []models.Message, max int) []models.Message {
	if len(messages) <= max {
		return messages
	}
	k := max / 2
	if k > 10 {
		k = 10
	}
	kept := make([]models.Message, 0, 1+k)
	kept = append(kept, messages[0])
	kept = append(kept, messages[len(messages)-k:]...)
	return kept
}

// History returns up to limit most recent entries as a snapshot rendered
// for LLM context. limit <= 0 means everything.
func (s *Store) History(id string, limit int) []models.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	msgs := sess.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.HistoryEntry, len(msgs))
	for i, m := range msgs {
		out[i] = models.HistoryEntry{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		}
	}
	return out
}

// Messages returns a snapshot copy of the full message log.
func (s *Store) Messages(id string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	out := make([]models.Message, len(sess.Messages))
	copy(out, sess.Messages)
	return out
}

// UpdateContext merges a patch into the session's context bag.
func (s *Store) UpdateContext(id string, patch map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	for k, v := range patch {
		sess.Context[k] = v
	}
}

// Context returns a snapshot copy of the context bag.
func (s *Store) Context(id string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(sess.Context))
	for k, v := range sess.Context {
		out[k] = v
	}
	return out
}

// Delete removes a session. Reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.logger.Info("session deleted", "session", id)
	return true
}

// ActiveCount returns the number of live sessions.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CleanupExpired deletes sessions idle past the configured timeout and
// returns how many were removed.
func (s *Store) CleanupExpired() int {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastAccess) > s.config.IdleTimeout {
			delete(s.sessions, id)
			removed++
			s.logger.Info("idle session evicted", "session", id)
		}
	}
	if removed > 0 {
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
	return removed
}
