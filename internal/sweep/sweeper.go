package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/castorp/soulforge/internal/interview"
	"github.com/castorp/soulforge/internal/storage"
)

// SessionLister finds sessions eligible for an idle sweep.
type SessionLister interface {
	ListIdleSessions(status string, before time.Time) ([]storage.Session, error)
}

// Pauser flips one session to resumable_unsaved.
type Pauser interface {
	Pause(sessionID string) (*interview.State, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Sweeper periodically pauses capturing sessions that have gone idle, so an
// abandoned browser tab or dropped chat still leaves a cleanly resumable
// session instead of a stuck one.
type Sweeper struct {
	store     SessionLister
	pauser    Pauser
	idleAfter time.Duration
	poll      time.Duration
	clock     Clock
	logger    *slog.Logger
}

// NewSweeper creates a Sweeper with the given dependencies.
// If idleAfter is <= 0 it defaults to 30 minutes; if pollInterval is <= 0
// it defaults to one minute.
func NewSweeper(store SessionLister, pauser Pauser, idleAfter, pollInterval time.Duration) *Sweeper {
	if idleAfter <= 0 {
		idleAfter = 30 * time.Minute
	}
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Sweeper{
		store:     store,
		pauser:    pauser,
		idleAfter: idleAfter,
		poll:      pollInterval,
		clock:     realClock{},
		logger:    slog.Default(),
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(); err != nil {
				s.logger.Error("sweep iteration failed", "error", err)
			}
		}
	}
}

// RunOnce pauses every capturing session idle past the threshold and
// returns how many were paused. One failing session does not stop the
// sweep.
func (s *Sweeper) RunOnce() (int, error) {
	cutoff := s.clock.Now().UTC().Add(-s.idleAfter)
	sessions, err := s.store.ListIdleSessions(string(interview.StatusCapturing), cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing idle sessions: %w", err)
	}

	paused := 0
	for _, sess := range sessions {
		if _, err := s.pauser.Pause(sess.ID); err != nil {
			s.logger.Warn("pausing idle session failed", "session_id", sess.ID, "error", err)
			continue
		}
		paused++
		s.logger.Info("idle session paused", "session_id", sess.ID,
			"idle_since", sess.LastActivityAt.Format(time.RFC3339))
	}
	return paused, nil
}
