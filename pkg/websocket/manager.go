// Package websocket maintains a reconnecting subscription to the CLOB market channel.
package websocket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FewZ2372/polymarket-bot/pkg/types"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("websocket manager closed")

// Config holds WebSocket manager configuration.
type Config struct {
	URL          string
	DialTimeout  time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration
	BufferSize   int
	Reconnect    ReconnectConfig
	Logger       *zap.Logger
}

// Manager owns one market-channel connection. A single supervisor goroutine reads until the
// connection breaks, then reconnects with backoff and replays every subscription.
type Manager struct {
	url          string
	dialer       *websocket.Dialer
	pingInterval time.Duration
	pongTimeout  time.Duration
	backoff      *Backoff
	logger       *zap.Logger

	messages chan types.StreamMessage

	mu          sync.Mutex
	conn        *websocket.Conn
	assets      map[string]struct{}
	initialized bool // first subscription on a connection uses the initial message format
	closed      bool

	writeMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a WebSocket manager. Start must be called before messages flow.
func New(cfg Config) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.URL == "" {
		return nil, errors.New("url cannot be empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 3 * cfg.PingInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}

	return &Manager{
		url:          cfg.URL,
		dialer:       &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		backoff:      NewBackoff(cfg.Reconnect),
		logger:       cfg.Logger,
		messages:     make(chan types.StreamMessage, cfg.BufferSize),
		assets:       make(map[string]struct{}),
	}, nil
}

// Start dials the first connection and launches the supervisor.
func (m *Manager) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	conn, err := m.dial(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("initial connection: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		_ = conn.Close()
		return ErrClosed
	}
	m.cancel = cancel
	m.mu.Unlock()

	if err := m.attach(conn); err != nil {
		m.logger.Warn("websocket-resubscribe-failed", zap.Error(err))
	}

	m.wg.Add(2)
	go m.supervise(ctx)
	go m.pingLoop(ctx)

	m.logger.Info("websocket-started", zap.String("url", m.url))
	return nil
}

// Messages delivers decoded market-channel messages. It is closed by Close.
func (m *Manager) Messages() <-chan types.StreamMessage {
	return m.messages
}

// Subscribe adds asset ids to the subscription. Ids already subscribed are ignored.
func (m *Manager) Subscribe(assetIDs []string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	var fresh []string
	for _, id := range assetIDs {
		if _, ok := m.assets[id]; ok || id == "" {
			continue
		}
		m.assets[id] = struct{}{}
		fresh = append(fresh, id)
	}
	SubscriptionCount.Set(float64(len(m.assets)))
	conn := m.conn
	initial := !m.initialized
	if conn != nil && len(fresh) > 0 {
		m.initialized = true
	}
	m.mu.Unlock()

	if conn == nil || len(fresh) == 0 {
		return nil
	}
	return m.sendSubscription(conn, fresh, initial)
}

// Connected reports whether a connection is currently attached.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := m.dialer.DialContext(ctx, m.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", m.url, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(m.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.pongTimeout))
	})
	return conn, nil
}

// attach installs conn as the live connection and replays the subscription set.
func (m *Manager) attach(conn *websocket.Conn) error {
	m.mu.Lock()
	m.conn = conn
	assets := m.sortedAssetsLocked()
	m.initialized = len(assets) > 0
	m.mu.Unlock()

	ActiveConnections.Set(1)
	if len(assets) == 0 {
		return nil
	}
	return m.sendSubscription(conn, assets, true)
}

func (m *Manager) sortedAssetsLocked() []string {
	out := make([]string, 0, len(m.assets))
	for id := range m.assets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) sendSubscription(conn *websocket.Conn, assets []string, initial bool) error {
	var msg interface{}
	if initial {
		msg = types.SubscriptionMessage{AssetsIDs: assets, Type: "market"}
	} else {
		msg = types.SubscriptionMessage{AssetsIDs: assets, Operation: "subscribe"}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write subscription: %w", err)
	}

	m.logger.Debug("websocket-subscribed", zap.Int("assets", len(assets)), zap.Bool("initial", initial))
	return nil
}

func (m *Manager) supervise(ctx context.Context) {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()

		connectedAt := time.Now()
		err := m.readUntilError(ctx, conn)
		ConnectionDuration.Observe(time.Since(connectedAt).Seconds())

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		ActiveConnections.Set(0)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("websocket-disconnected", zap.Error(err))

		if !m.reconnect(ctx) {
			return
		}
	}
}

func (m *Manager) reconnect(ctx context.Context) bool {
	for attempt := 1; ; attempt++ {
		if err := m.backoff.Wait(ctx); err != nil {
			return false
		}
		ReconnectAttemptsTotal.Inc()

		conn, err := m.dial(ctx)
		if err != nil {
			ReconnectFailuresTotal.Inc()
			m.logger.Warn("websocket-reconnect-failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		if err := m.attach(conn); err != nil {
			ReconnectFailuresTotal.Inc()
			m.logger.Warn("websocket-resubscribe-failed", zap.Int("attempt", attempt), zap.Error(err))
			m.mu.Lock()
			m.conn = nil
			m.mu.Unlock()
			_ = conn.Close()
			continue
		}

		m.backoff.Reset()
		m.logger.Info("websocket-reconnected", zap.Int("attempt", attempt))
		return true
	}
}

func (m *Manager) readUntilError(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(m.pongTimeout))
		m.dispatch(data)
	}
}

// dispatch decodes a frame. The server sends either one object or an array of them, plus bare
// text such as "PONG".
func (m *Manager) dispatch(data []byte) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return
	}

	var batch []types.StreamMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &batch); err != nil {
			MessagesDroppedTotal.WithLabelValues("decode").Inc()
			m.logger.Debug("websocket-decode-failed", zap.Error(err))
			return
		}
	case '{':
		var msg types.StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			MessagesDroppedTotal.WithLabelValues("decode").Inc()
			m.logger.Debug("websocket-decode-failed", zap.Error(err))
			return
		}
		batch = append(batch, msg)
	default:
		return
	}

	for i := range batch {
		MessagesReceivedTotal.WithLabelValues(batch[i].EventType).Inc()
		select {
		case m.messages <- batch[i]:
		default:
			MessagesDroppedTotal.WithLabelValues("buffer_full").Inc()
		}
	}
}

func (m *Manager) pingLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			conn := m.conn
			m.mu.Unlock()
			if conn == nil {
				continue
			}
			m.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			m.writeMu.Unlock()
			if err != nil {
				m.logger.Debug("websocket-ping-failed", zap.Error(err))
			}
		}
	}
}

// Close stops the supervisor, closes the connection and the message channel.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.cancel
	conn := m.conn
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		m.writeMu.Unlock()
		_ = conn.Close()
	}

	m.wg.Wait()
	close(m.messages)
	ActiveConnections.Set(0)
	m.logger.Info("websocket-closed")
	return nil
}
