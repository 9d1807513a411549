package tcstatus

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxplot/go-pdsink/pdmsg"
)

func TestStoreInitial(t *testing.T) {
	s := New()
	st := s.Snapshot()
	assert.Equal(t, None, st.Requested)
	assert.Equal(t, None, st.Accepted)
	assert.Equal(t, None, st.Ready)
	assert.Equal(t, None, st.Rejected)
	assert.Zero(t, st.Profiles.Len())
}

func TestStoreUpdate(t *testing.T) {
	s := New()
	old := s.Snapshot()

	s.Update(func(st *Status) {
		st.Profiles.Push(pdmsg.PDO(7))
		st.Requested = 0
	})

	assert.Equal(t, None, old.Requested, "earlier snapshots are unaffected")
	st := s.Snapshot()
	assert.Equal(t, Index(0), st.Requested)
	assert.Equal(t, []pdmsg.PDO{7}, st.Profiles.PDOs())
	assert.Equal(t, 1, s.Snapshot().Profiles.Len())
	assert.Equal(t, pdmsg.PDO(7), s.Snapshot().Profiles.At(0))

	s.Reset()
	assert.True(t, s.Snapshot().Equal(old))
}

// Readers must never see a snapshot that mixes two updates. Each update
// writes the same value to every field, so a torn read shows up as fields
// that disagree.
func TestStoreSnapshotsAreConsistent(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for i := 0; i < 10000; i++ {
			v := Index(i % 100)
			s.Update(func(st *Status) {
				st.Profiles.Clear()
				for j := 0; j < int(v)%Capacity+1; j++ {
					st.Profiles.Push(pdmsg.PDO(v))
				}
				st.Requested, st.Accepted, st.Ready, st.Rejected = v, v, v, v
			})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				s.View(func(st Status) {
					v := st.Requested
					if st.Accepted != v || st.Ready != v || st.Rejected != v {
						t.Errorf("torn snapshot: %+v", st)
					}
					if !v.Valid() {
						return
					}
					if st.Profiles.Len() != int(v)%Capacity+1 {
						t.Errorf("torn catalog: %d profiles for %d", st.Profiles.Len(), v)
					}
					for _, p := range st.Profiles.PDOs() {
						if p != pdmsg.PDO(v) {
							t.Errorf("torn catalog: %v for %d", p, v)
						}
					}
				})
			}
		}()
	}
	wg.Wait()
}

func TestStoreReport(t *testing.T) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	log := slog.New(slog.NewTextHandler(&lockedWriter{mu: &mu, w: &buf}, &slog.HandlerOptions{Level: slog.LevelInfo}))

	s := New()
	s.Update(func(st *Status) { st.Requested = 1 })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Report(ctx, log, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return strings.Contains(buf.String(), "requested=1")
	}, time.Second, time.Millisecond)

	// Unchanged status is only reported at debug level.
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	n := strings.Count(buf.String(), "pdo state")
	mu.Unlock()
	assert.Equal(t, 1, n)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Report did not return after cancel")
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
