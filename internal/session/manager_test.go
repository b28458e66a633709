// ABOUTME: Tests for the session manager.
// ABOUTME: Covers id assignment, idempotent close, fan-out, pruning and concurrency.

package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	event string
	data  string
}

// recordingStream captures frames; failing makes every Send return an error.
type recordingStream struct {
	mu      sync.Mutex
	frames  []frame
	closed  int
	failing bool
}

func (s *recordingStream) Send(event string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("broken pipe")
	}
	if s.closed > 0 {
		return ErrClosed
	}
	s.frames = append(s.frames, frame{event: event, data: string(data)})
	return nil
}

func (s *recordingStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *recordingStream) snapshot() []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame(nil), s.frames...)
}

func TestManager_OpenAssignsMonotonicIDs(t *testing.T) {
	m := NewManager(nil, nil)

	for i := 0; i < 5; i++ {
		id := m.Open(&recordingStream{})
		assert.Equal(t, strconv.Itoa(i), id)
	}
	assert.Equal(t, 5, m.Len())
}

func TestManager_IDsAreNotReusedAfterClose(t *testing.T) {
	m := NewManager(nil, nil)

	first := m.Open(&recordingStream{})
	require.True(t, m.Close(first))

	second := m.Open(&recordingStream{})
	assert.NotEqual(t, first, second)
	assert.Equal(t, "1", second)
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	m := NewManager(nil, nil)
	s := &recordingStream{}
	id := m.Open(s)

	assert.True(t, m.Close(id))
	assert.False(t, m.Close(id))
	assert.False(t, m.Close("does-not-exist"))
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 1, s.closed, "stream closed exactly once")
}

func TestManager_CloseUnknownLeavesStateUntouched(t *testing.T) {
	m := NewManager(nil, nil)
	m.Open(&recordingStream{})

	assert.False(t, m.Close("42"))
	assert.Equal(t, 1, m.Len())
}

func TestManager_BroadcastReachesAllSessions(t *testing.T) {
	m := NewManager(nil, nil)
	s1, s2 := &recordingStream{}, &recordingStream{}
	m.Open(s1)
	m.Open(s2)

	n := m.Broadcast(context.Background(), "tool_response", map[string]any{"id": "c-1", "result": "ok"})
	assert.Equal(t, 2, n)

	for _, s := range []*recordingStream{s1, s2} {
		frames := s.snapshot()
		require.Len(t, frames, 1)
		assert.Equal(t, "tool_response", frames[0].event)
		assert.JSONEq(t, `{"id":"c-1","result":"ok"}`, frames[0].data)
	}
}

func TestManager_BroadcastWithNoSessions(t *testing.T) {
	m := NewManager(nil, nil)
	assert.Equal(t, 0, m.Broadcast(context.Background(), "tool_response", map[string]any{}))
}

func TestManager_BroadcastPrunesFailedSessions(t *testing.T) {
	m := NewManager(nil, nil)
	healthy := &recordingStream{}
	broken := &recordingStream{failing: true}
	m.Open(healthy)
	brokenID := m.Open(broken)

	n := m.Broadcast(context.Background(), "tool_response", "payload")
	assert.Equal(t, 1, n)
	assert.Len(t, healthy.snapshot(), 1)

	assert.Equal(t, 1, m.Len())
	assert.NotContains(t, m.IDs(), brokenID)
	assert.Equal(t, 1, broken.closed)

	// Subsequent broadcasts no longer touch the pruned session.
	assert.Equal(t, 1, m.Broadcast(context.Background(), "tool_response", "again"))
}

func TestManager_BroadcastUnencodablePayload(t *testing.T) {
	m := NewManager(nil, nil)
	s := &recordingStream{}
	m.Open(s)

	n := m.Broadcast(context.Background(), "bad", map[string]any{"ch": make(chan int)})
	assert.Equal(t, 0, n)
	assert.Empty(t, s.snapshot())
	assert.Equal(t, 1, m.Len(), "encoding failures do not prune sessions")
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager(nil, nil)
	streams := []*recordingStream{{}, {}, {}}
	for _, s := range streams {
		m.Open(s)
	}

	m.CloseAll()
	assert.Equal(t, 0, m.Len())
	for _, s := range streams {
		assert.Equal(t, 1, s.closed)
	}
}

func TestManager_ConcurrentOpenCloseBroadcast(t *testing.T) {
	m := NewManager(nil, nil)
	var wg sync.WaitGroup

	ids := make(chan string, 100)
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			ids <- m.Open(&recordingStream{})
		}()
		go func() {
			defer wg.Done()
			m.Broadcast(context.Background(), "tick", i)
		}()
		go func() {
			defer wg.Done()
			select {
			case id := <-ids:
				m.Close(id)
			default:
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for _, id := range m.IDs() {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.LessOrEqual(t, m.Len(), 50)
}
