package tcstatus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Store is the shared negotiation status. Writers are serialized; each
// update is published as a new immutable snapshot that readers load
// without locking.
type Store struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Status]
}

// New returns a store with all indices unset and an empty catalog.
func New() *Store {
	s := &Store{}
	st := &Status{}
	st.Reset()
	s.current.Store(st)
	return s
}

// Update runs f with exclusive write access to a copy of the current status
// and publishes the result. f must not block.
func (s *Store) Update(f func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := *s.current.Load()
	f(&st)
	s.current.Store(&st)
}

// Snapshot returns the current status.
func (s *Store) Snapshot() Status {
	return *s.current.Load()
}

// View runs f on the current status. All fields seen by f belong to the
// same update.
func (s *Store) View(f func(Status)) {
	f(*s.current.Load())
}

// Reset resets the status to its initial state.
func (s *Store) Reset() {
	s.Update((*Status).Reset)
}

// Report logs the status every interval until ctx is done: at info level
// when it changed since the previous report and at debug otherwise.
func (s *Store) Report(ctx context.Context, log *slog.Logger, every time.Duration) {
	if log == nil {
		log = slog.Default()
	}
	t := time.NewTicker(every)
	defer t.Stop()

	var last Status
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		st := s.Snapshot()
		level := slog.LevelDebug
		if first || !st.Equal(last) {
			level = slog.LevelInfo
		}
		log.Log(ctx, level, "pdo state",
			"accepted", st.Accepted,
			"ready", st.Ready,
			"requested", st.Requested,
			"rejected", st.Rejected,
			"profiles", st.Profiles.Len(),
		)
		last, first = st, false
	}
}
