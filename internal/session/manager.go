// ABOUTME: Session manager tracking live push-stream subscribers by monotonic id.
// ABOUTME: Broadcast fans one frame out to a snapshot of sessions and prunes failed writers.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/2389/membank/internal/observe"
)

// ErrClosed is returned by streams that have been closed.
var ErrClosed = errors.New("session closed")

// maxParallelWrites bounds the number of concurrent writes per broadcast.
const maxParallelWrites = 32

// Stream is the output handle of one subscriber.
type Stream interface {
	// Send writes one framed event. It must be safe for concurrent use.
	Send(event string, data []byte) error

	// Close releases the stream and signals its owner to stop. Must be idempotent.
	Close() error
}

// Manager owns the set of open sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]Stream
	nextID   uint64
	logger   *slog.Logger
	metrics  *observe.Metrics
}

// NewManager creates an empty manager. Pass nil logger for default; metrics
// may be nil.
func NewManager(logger *slog.Logger, metrics *observe.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]Stream),
		logger:   logger,
		metrics:  metrics,
	}
}

// Open registers stream and returns its session id. Ids are assigned from a
// counter starting at 0 and are never reused within the manager's lifetime.
func (m *Manager) Open(stream Stream) string {
	m.mu.Lock()
	id := strconv.FormatUint(m.nextID, 10)
	m.nextID++
	m.sessions[id] = stream
	total := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SessionOpened(context.Background())
	m.logger.Info("session opened", "session_id", id, "total_sessions", total)
	return id
}

// Close removes the session and closes its stream. Closing an unknown or
// already-closed id is a no-op. Returns true if a session was removed.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	stream, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	total := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}

	if err := stream.Close(); err != nil {
		m.logger.Debug("closing session stream", "session_id", id, "error", err)
	}
	m.metrics.SessionClosed(context.Background())
	m.logger.Info("session closed", "session_id", id, "total_sessions", total)
	return true
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the ids of all open sessions.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast encodes payload as JSON and sends it as event to every open
// session. Sessions whose write fails are closed. A failure on one session
// never affects delivery to the others and is never reported to the caller.
// Returns the number of sessions the frame was delivered to.
func (m *Manager) Broadcast(ctx context.Context, event string, payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("encoding broadcast payload", "event", event, "error", err)
		return 0
	}

	// Snapshot handles so concurrent Open/Close cannot disturb the fan-out.
	type target struct {
		id     string
		stream Stream
	}
	m.mu.RLock()
	targets := make([]target, 0, len(m.sessions))
	for id, s := range m.sessions {
		targets = append(targets, target{id: id, stream: s})
	}
	m.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}

	var (
		resMu     sync.Mutex
		delivered int
		failed    []string
	)

	var g errgroup.Group
	g.SetLimit(maxParallelWrites)
	for _, t := range targets {
		g.Go(func() error {
			if err := t.stream.Send(event, data); err != nil {
				m.logger.Warn("dropping session after failed write",
					"session_id", t.id,
					"event", event,
					"error", err,
				)
				resMu.Lock()
				failed = append(failed, t.id)
				resMu.Unlock()
				return nil
			}
			resMu.Lock()
			delivered++
			resMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range failed {
		m.Close(id)
	}

	m.metrics.RecordBroadcast(ctx, event, delivered, len(failed))
	m.logger.Debug("broadcast complete",
		"event", event,
		"delivered", delivered,
		"pruned", len(failed),
	)
	return delivered
}

// CloseAll closes every open session. Used during shutdown.
func (m *Manager) CloseAll() {
	for _, id := range m.IDs() {
		m.Close(id)
	}
}
