package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/jpalmerr/scorepulse/internal/metrics"
	"github.com/jpalmerr/scorepulse/internal/registry"
	"github.com/jpalmerr/scorepulse/internal/snapshot"
)

const (
	// streamWriteTimeout is the maximum time allowed for a single stream
	// write. Must be <= shutdown timeout to ensure clean shutdown.
	streamWriteTimeout = 5 * time.Second

	// sinkBuffer is how many undelivered snapshots a stream may lag behind
	// before it is treated as dead.
	sinkBuffer = 16
)

var (
	errSinkClosed = errors.New("stream closed")
	errSinkFull   = errors.New("stream buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamSink queues payloads for the handler goroutine that owns the
// connection. Send never blocks; a stream that falls sinkBuffer payloads
// behind is reported as failed so the broadcaster drops it, and done is
// closed so the handler ends the connection and the client reconnects.
type streamSink struct {
	mu     sync.Mutex
	ch     chan []byte
	done   chan struct{}
	closed bool
}

func newStreamSink() *streamSink {
	return &streamSink{
		ch:   make(chan []byte, sinkBuffer),
		done: make(chan struct{}),
	}
}

func (s *streamSink) Send(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSinkClosed
	}
	select {
	case s.ch <- payload:
		return nil
	default:
		s.closeLocked()
		return errSinkFull
	}
}

func (s *streamSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *streamSink) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// subscribe parses the key, admits the stream and registers a subscriber.
// The returned cleanup must run when the stream ends.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) (*registry.Subscriber, *streamSink, func(), bool) {
	key, err := snapshot.ParseWatchKey(chi.URLParam(r, "leagueId"), chi.URLParam(r, "week"))
	if err != nil {
		metrics.StreamRejectionsTotal.WithLabelValues("bad_key").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, nil, false
	}

	release, ok := s.admitStream(w, r)
	if !ok {
		return nil, nil, nil, false
	}

	sink := newStreamSink()
	sub := s.registry.Add(key, sink)
	s.logger.Info("subscriber connected", "key", key.String(), "subscriber", sub.ID.String())

	cleanup := func() {
		sink.close()
		s.registry.Remove(sub.ID)
		release()
		s.logger.Info("subscriber disconnected", "key", key.String(), "subscriber", sub.ID.String())
	}
	return sub, sink, cleanup, true
}

// handleSSE streams snapshots for one key via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients
// are slow or disconnected. Without deadlines, a blocked write would prevent
// the handler from noticing context cancellation.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub, sink, cleanup, ok := s.subscribe(w, r)
	if !ok {
		return
	}
	defer cleanup()

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	write := func(frame string) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprint(w, frame); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	if err := s.broadcaster.Attach(r.Context(), sub); err != nil {
		s.logger.Warn("initial snapshot not delivered", "subscriber", sub.ID.String(), "error", err.Error())
		return
	}

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			// request context derives from the server context via
			// BaseContext, so this fires on disconnect and on shutdown
			return
		case <-sink.done:
			s.logger.Info("stream dropped after falling behind", "subscriber", sub.ID.String())
			return
		case payload := <-sink.ch:
			if err := write("data: " + string(payload) + "\n\n"); err != nil {
				return
			}
		case <-ping.C:
			if err := write(": ping\n\n"); err != nil {
				return
			}
		}
	}
}

// handleWebSocket streams snapshots for one key as websocket text frames.
// Client messages are read only to notice the close.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sub, sink, cleanup, ok := s.subscribe(w, r)
	if !ok {
		return
	}
	defer cleanup()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.broadcaster.Attach(ctx, sub); err != nil {
		s.logger.Warn("initial snapshot not delivered", "subscriber", sub.ID.String(), "error", err.Error())
		return
	}

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
			return
		case <-sink.done:
			s.logger.Info("stream dropped after falling behind", "subscriber", sub.ID.String())
			deadline := time.Now().Add(time.Second)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"), deadline)
			return
		case payload := <-sink.ch:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
		}
	}
}
