package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/watchdog"
)

// StatusBroadcaster fans watchdog status updates out to WebSocket
// subscribers. Slow subscribers lose updates instead of blocking the
// watchdog loop.
type StatusBroadcaster struct {
	log zerolog.Logger

	mu          sync.Mutex
	subscribers map[chan watchdog.Status]struct{}
	last        *watchdog.Status
	closed      bool
}

// NewStatusBroadcaster creates an empty broadcaster
func NewStatusBroadcaster(log zerolog.Logger) *StatusBroadcaster {
	return &StatusBroadcaster{
		log:         log.With().Str("component", "status_ws").Logger(),
		subscribers: make(map[chan watchdog.Status]struct{}),
	}
}

// Broadcast delivers a status update to every subscriber without blocking
func (b *StatusBroadcaster) Broadcast(status watchdog.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = &status
	for ch := range b.subscribers {
		select {
		case ch <- status:
		default:
			// Subscriber is not keeping up; it will catch up on the
			// next update.
		}
	}
}

func (b *StatusBroadcaster) subscribe() (chan watchdog.Status, *watchdog.Status, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, false
	}

	ch := make(chan watchdog.Status, 8)
	b.subscribers[ch] = struct{}{}
	return ch, b.last, true
}

func (b *StatusBroadcaster) unsubscribe(ch chan watchdog.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, ch)
}

// CloseAll drops all subscribers; used during shutdown
func (b *StatusBroadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
	}
}

// ServeHTTP handles GET /ws/status. Each connection immediately receives the
// last known status, then every update as it happens.
func (b *StatusBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		b.log.Debug().Err(err).Msg("WebSocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	ch, last, ok := b.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer b.unsubscribe(ch)

	b.log.Debug().Str("remote", r.RemoteAddr).Msg("Status subscriber connected")

	ctx := r.Context()
	if last != nil {
		if err := writeStatus(ctx, conn, *last); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case status := <-ch:
			if err := writeStatus(ctx, conn, status); err != nil {
				b.log.Debug().Err(err).Msg("Status subscriber dropped")
				return
			}
		}
	}
}

func writeStatus(ctx context.Context, conn *websocket.Conn, status watchdog.Status) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, status)
}
