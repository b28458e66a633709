// ABOUTME: Push-stream endpoint: announces server_info, then relays broadcasts.
// ABOUTME: sseStream adapts an http.ResponseWriter to the session.Stream interface.

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/2389/membank/internal/session"
)

// sseStream writes SSE frames to one response. Writes are serialized and
// each carries a deadline so a stalled peer fails instead of blocking.
type sseStream struct {
	mu           sync.Mutex
	w            io.Writer
	rc           *http.ResponseController
	writeTimeout time.Duration
	closed       bool

	done      chan struct{}
	closeOnce sync.Once
}

func newSSEStream(w http.ResponseWriter, writeTimeout time.Duration) *sseStream {
	return &sseStream{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// Send writes one event frame.
func (s *sseStream) Send(event string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(event, data)
}

func (s *sseStream) sendLocked(event string, data []byte) error {
	return s.writeLocked(func() error {
		_, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
		return err
	})
}

// ping writes a heartbeat comment.
func (s *sseStream) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(func() error {
		_, err := io.WriteString(s.w, ": ping\n\n")
		return err
	})
}

func (s *sseStream) writeLocked(write func() error) error {
	if s.closed {
		return session.ErrClosed
	}
	// Recorders and some wrappers cannot set deadlines; the write still proceeds.
	_ = s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := write(); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Close marks the stream unusable and wakes the owning handler.
func (s *sseStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		s.writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	info, err := json.Marshal(s.serverInfo())
	if err != nil {
		s.logger.Error("encoding server info", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := newSSEStream(w, s.writeTimeout)

	// Hold the stream lock across registration so no broadcast can be
	// written ahead of server_info.
	stream.mu.Lock()
	id := s.sessions.Open(stream)
	err = stream.sendLocked(EventServerInfo, info)
	stream.mu.Unlock()

	defer func() {
		s.sessions.Close(id)
		_ = stream.Close()
	}()

	logger := s.logger.With("session_id", id)
	if err != nil {
		logger.Warn("sending server info", "error", err)
		return
	}
	logger.Debug("stream opened", "remote_addr", r.RemoteAddr)

	var tick <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("client disconnected")
			return
		case <-stream.done:
			logger.Debug("stream closed by server")
			return
		case <-tick:
			if err := stream.ping(); err != nil {
				logger.Debug("heartbeat failed", "error", err)
				return
			}
		}
	}
}
