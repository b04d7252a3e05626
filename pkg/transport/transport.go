// Package transport implements the client's single long-lived,
// full-duplex event channel to one server: named-event emit/dispatch
// over a websocket connection, optional TLS with a verify opt-out, and
// automatic reconnection with bounded retries and backoff.
//
// The reconnect-worker shape (a dedicated goroutine, mutually excluded
// by a lock, retried with a growing delay) mirrors the heartbeat/
// reconnect loops a worker-to-manager client runs against a single
// upstream endpoint.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hsyst/hps-cli/pkg/hpserr"
	"github.com/Hsyst/hps-cli/pkg/log"
)

const (
	maxReconnectAttempts = 5
	reconnectDelayMin    = 1 * time.Second
	reconnectDelayMax    = 5 * time.Second
)

// Event is the wire frame exchanged over the duplex channel:
// {"event": "<name>", "data": {...}}.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Handler processes one received event's data payload.
type Handler func(data json.RawMessage)

// Transport owns one websocket connection to one server address.
type Transport struct {
	addr          string
	tlsSkipVerify bool

	writeMu sync.Mutex
	connMu  sync.RWMutex
	conn    *websocket.Conn

	handlersMu sync.RWMutex
	handlers   map[string][]Handler

	reconnectMu sync.Mutex
	reconnecting bool

	onDisconnect func(err error)
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// New returns a Transport that is not yet connected; call Connect.
func New(addr string, tlsSkipVerify bool) *Transport {
	return &Transport{
		addr:          addr,
		tlsSkipVerify: tlsSkipVerify,
		handlers:      make(map[string][]Handler),
		stopCh:        make(chan struct{}),
	}
}

// On registers a handler for a named event. Multiple handlers for the
// same name are all invoked, in registration order.
func (t *Transport) On(event string, h Handler) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[event] = append(t.handlers[event], h)
}

// OnDisconnect registers the callback invoked whenever the read loop
// observes the connection drop, before a reconnect attempt begins.
func (t *Transport) OnDisconnect(fn func(err error)) {
	t.onDisconnect = fn
}

// Connect dials the server and starts the read loop. It is safe to call
// again after a permanent disconnect to retry manually.
func (t *Transport) Connect(ctx context.Context) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	go t.readLoop()
	return nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(t.addr)
	if err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	dialer := websocket.DefaultDialer
	if t.tlsSkipVerify {
		clone := *websocket.DefaultDialer
		clone.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-out, see §4.4
		dialer = &clone
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.addr, err)
	}
	return conn, nil
}

// Emit sends a named event with a JSON-marshalable payload.
func (t *Transport) Emit(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", name, err)
	}
	ev := Event{Name: name, Data: data}

	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()
	if conn == nil {
		return hpserr.New(hpserr.NotConnected, "cannot emit %s", name)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(ev)
}

func (t *Transport) readLoop() {
	for {
		t.connMu.RLock()
		conn := t.conn
		t.connMu.RUnlock()
		if conn == nil {
			return
		}

		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			log.WithComponent("transport").Warn().Err(err).Msg("connection lost")
			t.connMu.Lock()
			if t.conn == conn {
				t.conn = nil
				_ = conn.Close()
			}
			t.connMu.Unlock()
			if t.onDisconnect != nil {
				t.onDisconnect(err)
			}
			t.scheduleReconnect()
			return
		}

		t.dispatch(ev)
	}
}

func (t *Transport) dispatch(ev Event) {
	t.handlersMu.RLock()
	hs := append([]Handler{}, t.handlers[ev.Name]...)
	t.handlersMu.RUnlock()

	for _, h := range hs {
		h(ev.Data)
	}
}

func (t *Transport) scheduleReconnect() {
	t.reconnectMu.Lock()
	if t.reconnecting {
		t.reconnectMu.Unlock()
		return
	}
	t.reconnecting = true
	t.reconnectMu.Unlock()

	go func() {
		defer func() {
			t.reconnectMu.Lock()
			t.reconnecting = false
			t.reconnectMu.Unlock()
		}()

		delay := reconnectDelayMin
		for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
			select {
			case <-t.stopCh:
				return
			case <-time.After(delay):
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			conn, err := t.dial(ctx)
			cancel()
			if err == nil {
				t.connMu.Lock()
				t.conn = conn
				t.connMu.Unlock()
				go t.readLoop()
				log.WithComponent("transport").Info().Int("attempt", attempt).Msg("reconnected")
				return
			}

			log.WithComponent("transport").Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			delay *= 2
			if delay > reconnectDelayMax {
				delay = reconnectDelayMax
			}
		}
		log.WithComponent("transport").Error().Msg("exhausted reconnect attempts, giving up")
	}()
}

// Connected reports whether a connection is currently established.
func (t *Transport) Connected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn != nil
}

// Close terminates the connection and stops any reconnect attempts.
func (t *Transport) Close() error {
	t.stopOnce.Do(func() { close(t.stopCh) })

	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
