package sessions

import (
	"context"
	"time"
)

// RunJanitor sweeps idle sessions on the store's cleanup interval until
// the context is cancelled.
func (s *Store) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()
	s.logger.Info("session janitor started",
		"idle_timeout", s.config.IdleTimeout,
		"interval", s.config.CleanupInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session janitor stopped")
			return
		case <-ticker.C:
			if n := s.CleanupExpired(); n > 0 {
				s.logger.Info("expired sessions cleaned", "count", n)
			}
		}
	}
}
