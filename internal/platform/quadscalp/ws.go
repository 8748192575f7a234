package quadscalp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed between inbound frames before the
	// connection is considered dead.
	pongWait = 60 * time.Second

	// pingPeriod sends application pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultReconnectDelay is the fixed pause between a closure and the
	// next connection attempt.
	DefaultReconnectDelay = 3 * time.Second

	handshakeTimeout = 15 * time.Second
	maxFrameSize     = 1 << 20
)

// ConnState is the push transport's connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// EventHandler receives decoded events in arrival order.
type EventHandler func(Event)

// StateHandler is called on every connection state transition.
type StateHandler func(ConnState)

// WSOption configures a WSClient.
type WSOption func(*WSClient)

// WithReconnectDelay overrides the fixed reconnect delay.
func WithReconnectDelay(d time.Duration) WSOption {
	return func(w *WSClient) {
		if d > 0 {
			w.reconnectDelay = d
		}
	}
}

// WithPingInterval overrides how often a {"type":"ping"} frame is sent.
func WithPingInterval(d time.Duration) WSOption {
	return func(w *WSClient) {
		if d > 0 {
			w.pingInterval = d
		}
	}
}

// WithStateHandler registers a callback for connection state transitions.
func WithStateHandler(h StateHandler) WSOption {
	return func(w *WSClient) { w.onState = h }
}

// WSClient keeps one logical connection to the backend push channel. It
// reconnects after a fixed delay whenever the server closes the connection
// or the transport fails, and stops for good once Close is called.
type WSClient struct {
	wsURL          string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	handler        EventHandler
	onState        StateHandler
	logger         *slog.Logger

	state atomic.Int32

	mu     sync.Mutex
	conn   *liveConn
	closed bool

	// done is closed when the client is shut down.
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSClient creates a push channel client. handler must not block.
func NewWSClient(wsURL string, handler EventHandler, logger *slog.Logger, opts ...WSOption) *WSClient {
	w := &WSClient{
		wsURL:          wsURL,
		reconnectDelay: DefaultReconnectDelay,
		pingInterval:   pingPeriod,
		handler:        handler,
		logger:         logger.With(slog.String("component", "quadscalp_ws")),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// PushURL derives the push channel URL from an HTTP origin by swapping the
// scheme (http→ws, https→wss) and setting path.
func PushURL(origin, path string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("quadscalp/ws: parse origin: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("quadscalp/ws: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("quadscalp/ws: origin %q has no host", origin)
	}
	u.Path = path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// State returns the current connection state.
func (w *WSClient) State() ConnState {
	return ConnState(w.state.Load())
}

// Run connects and keeps reconnecting until ctx is cancelled or Close is
// called. It returns ctx.Err() on cancellation and nil after Close.
func (w *WSClient) Run(ctx context.Context) error {
	for {
		if w.isClosed() {
			return nil
		}

		w.setState(StateConnecting)
		err := w.runConnection(ctx)
		w.setState(StateDisconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if w.isClosed() {
			return nil
		}
		if err != nil {
			w.logger.Warn("push channel disconnected, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("delay", w.reconnectDelay),
			)
		}

		timer := time.NewTimer(w.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-w.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Close stops the client. A pending reconnect is cancelled and an open
// connection is closed with a normal closure frame. Safe to call repeatedly.
func (w *WSClient) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		conn := w.conn
		w.mu.Unlock()

		close(w.done)
		if conn != nil {
			conn.shutdown(true)
		}
	})
	return nil
}

// Send writes v as a JSON text frame on the current connection.
func (w *WSClient) Send(v any) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("quadscalp/ws: %w", domain.ErrWSDisconnect)
	}
	return conn.writeJSON(v)
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func (w *WSClient) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *WSClient) setState(s ConnState) {
	if ConnState(w.state.Swap(int32(s))) == s {
		return
	}
	w.logger.Debug("push channel state", slog.String("state", s.String()))
	if w.onState != nil {
		w.onState(s)
	}
}

// runConnection dials, then reads until the connection ends. It returns
// the error that ended the connection.
func (w *WSClient) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	raw, _, err := dialer.DialContext(dialCtx, w.wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("quadscalp/ws: connect: %w", err)
	}

	conn := &liveConn{Conn: raw}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		conn.shutdown(false)
		return nil
	}
	w.conn = conn
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		if w.conn == conn {
			w.conn = nil
		}
		w.mu.Unlock()
		conn.shutdown(false)
	}()

	w.setState(StateConnected)
	w.logger.Info("push channel connected", slog.String("url", w.wsURL))

	connDone := make(chan struct{})
	defer close(connDone)

	// Unblock ReadMessage on cancellation.
	go func() {
		select {
		case <-ctx.Done():
			conn.shutdown(true)
		case <-connDone:
		}
	}()
	go w.pingLoop(conn, connDone)

	raw.SetReadLimit(maxFrameSize)
	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("quadscalp/ws: closed by server: %w", domain.ErrWSDisconnect)
			}
			return fmt.Errorf("quadscalp/ws: read: %w", err)
		}
		_ = raw.SetReadDeadline(time.Now().Add(pongWait))
		w.dispatch(message)
	}
}

// pingLoop sends periodic application pings so the server sees a live peer.
func (w *WSClient) pingLoop(conn *liveConn, connDone <-chan struct{}) {
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-connDone:
			return
		case <-ticker.C:
			if err := conn.writeJSON(map[string]string{"type": FramePing}); err != nil {
				return
			}
		}
	}
}

// dispatch decodes one frame and hands it to the handler. Malformed and
// unknown frames are logged and dropped.
func (w *WSClient) dispatch(raw []byte) {
	ev, err := DecodeEvent(raw)
	if err != nil {
		w.logger.Warn("dropping malformed frame", slog.String("error", err.Error()))
		return
	}

	switch e := ev.(type) {
	case PongEvent:
		return
	case UnknownEvent:
		w.logger.Debug("dropping unknown frame", slog.String("type", e.Type))
		return
	}

	if w.handler != nil {
		w.handler(ev)
	}
}

// liveConn serializes writes on one connection and closes it exactly once.
type liveConn struct {
	*websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *liveConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(websocket.TextMessage, data)
}

// shutdown closes the connection, optionally sending a normal closure
// frame first. Only the first call has any effect.
func (c *liveConn) shutdown(graceful bool) {
	c.closeOnce.Do(func() {
		if graceful {
			c.writeMu.Lock()
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			c.writeMu.Unlock()
		}
		_ = c.Conn.Close()
	})
}
