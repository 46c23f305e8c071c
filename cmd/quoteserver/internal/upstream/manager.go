// Package upstream owns the single websocket connection to the market-data
// feed: dialing, heartbeats, subscription replay and reconnection.
package upstream

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/instrumentation"
	"github.com/shubham-shewale/quote-relay/pkg/feed"
)

const (
	defaultWriteTimeout = 5 * time.Second
	eventBuffer         = 256
)

type Options struct {
	URL               string
	Token             string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	WriteTimeout      time.Duration
}

type eventKind int

const (
	evConnect eventKind = iota
	evOpened
	evDialFailed
	evFrame
	evClosed
	evSync
)

type event struct {
	kind eventKind
	gen  uint64
	conn Conn
	data []byte
	err  error
}

// Manager keeps exactly one live upstream connection. All connection state
// is owned by the Run goroutine; other goroutines talk to it through events.
type Manager struct {
	opts     Options
	url      string
	dialer   Dialer
	registry *Registry
	handler  TickHandler
	logger   *zap.Logger
	metrics  *instrumentation.Metrics

	state   atomic.Int32
	events  chan event
	done    chan struct{}
	started atomic.Bool
}

func NewManager(opts Options, dialer Dialer, registry *Registry, handler TickHandler, logger *zap.Logger, metrics *instrumentation.Metrics) (*Manager, error) {
	target, err := buildURL(opts.URL, opts.Token)
	if err != nil {
		return nil, err
	}
	if opts.HeartbeatInterval <= 0 || opts.ReconnectDelay <= 0 {
		return nil, fmt.Errorf("upstream: heartbeat interval and reconnect delay must be positive")
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if metrics == nil {
		metrics = instrumentation.NewNopMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		opts:     opts,
		url:      target,
		dialer:   dialer,
		registry: registry,
		handler:  handler,
		logger:   logger,
		metrics:  metrics,
		events:   make(chan event, eventBuffer),
		done:     make(chan struct{}),
	}, nil
}

func buildURL(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("upstream: invalid url %q: %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("upstream: url %q must use ws or wss", raw)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// State is safe to call from any goroutine.
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) ConnectionStatus() string { return m.State().String() }

// Connect asks the manager to dial. It is a no-op while a connection is open
// or being established.
func (m *Manager) Connect() { m.send(event{kind: evConnect}) }

// Subscribe adds symbols and, if connected, pushes the full resulting set.
func (m *Manager) Subscribe(symbols []string) []string {
	if m.registry.Add(symbols) {
		m.send(event{kind: evSync})
	}
	return m.registry.Symbols()
}

// Unsubscribe removes symbols and pushes the resulting set, which may be empty.
func (m *Manager) Unsubscribe(symbols []string) []string {
	if m.registry.Remove(symbols) {
		m.send(event{kind: evSync})
	}
	return m.registry.Symbols()
}

func (m *Manager) Symbols() []string { return m.registry.Symbols() }

// Done is closed once Run has returned and the connection is released.
func (m *Manager) Done() <-chan struct{} { return m.done }

func (m *Manager) send(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

// connState is the dispatcher's private view of the current connection.
type connState struct {
	conn      Conn
	gen       uint64
	heartbeat *time.Ticker
	reconnect *time.Timer
}

func (c *connState) heartbeatC() <-chan time.Time {
	if c.heartbeat == nil {
		return nil
	}
	return c.heartbeat.C
}

func (c *connState) reconnectC() <-chan time.Time {
	if c.reconnect == nil {
		return nil
	}
	return c.reconnect.C
}

func (c *connState) stopHeartbeat() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
}

func (c *connState) stopReconnect() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

// Run is the dispatcher loop. It returns when ctx is cancelled, after closing
// the connection without scheduling a reconnect.
func (m *Manager) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return fmt.Errorf("upstream: manager already running")
	}
	defer close(m.done)

	cs := &connState{}
	for {
		select {
		case <-ctx.Done():
			m.shutdown(cs)
			return nil

		case ev := <-m.events:
			m.handleEvent(ctx, cs, ev)

		case <-cs.heartbeatC():
			frame, err := feed.HeartbeatFrame(time.Now())
			if err != nil {
				m.logger.Error("Failed to build heartbeat", zap.Error(err))
				continue
			}
			m.write(cs, frame)

		case <-cs.reconnectC():
			cs.reconnect = nil
			m.metrics.Reconnects.Inc()
			m.logger.Info("Reconnecting to upstream feed")
			m.dial(ctx, cs)
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, cs *connState, ev event) {
	switch ev.kind {
	case evConnect:
		switch m.State() {
		case StateOpen, StateConnecting, StateClosing:
			m.logger.Debug("Connect ignored", zap.String("state", m.State().String()))
			return
		}
		cs.stopReconnect()
		m.dial(ctx, cs)

	case evOpened:
		if ev.gen != cs.gen {
			_ = ev.conn.Close()
			return
		}
		cs.conn = ev.conn
		m.setState(StateOpen)
		m.logger.Info("Upstream feed connected", zap.String("url", m.opts.URL))

		cs.heartbeat = time.NewTicker(m.opts.HeartbeatInterval)
		go m.read(ev.gen, ev.conn)

		if symbols := m.registry.Symbols(); len(symbols) > 0 {
			m.sendSubscription(cs, symbols)
		}

	case evDialFailed:
		if ev.gen != cs.gen {
			return
		}
		m.setState(StateClosed)
		m.logger.Warn("Upstream dial failed", zap.Error(ev.err), zap.Duration("retry_in", m.opts.ReconnectDelay))
		m.scheduleReconnect(cs)

	case evFrame:
		if ev.gen != cs.gen {
			return
		}
		m.dispatch(ev.data)

	case evClosed:
		if ev.gen != cs.gen || cs.conn == nil {
			return
		}
		cs.stopHeartbeat()
		_ = cs.conn.Close()
		cs.conn = nil
		m.setState(StateClosed)
		m.logger.Warn("Upstream connection lost", zap.Error(ev.err), zap.Duration("retry_in", m.opts.ReconnectDelay))
		m.scheduleReconnect(cs)

	case evSync:
		if m.State() != StateOpen {
			return
		}
		m.sendSubscription(cs, m.registry.Symbols())
	}
}

// dial starts a new connection attempt in the background. Each attempt gets
// a fresh generation so late results from older attempts are discarded.
func (m *Manager) dial(ctx context.Context, cs *connState) {
	cs.gen++
	gen := cs.gen
	m.setState(StateConnecting)

	go func() {
		conn, err := m.dialer.Dial(ctx, m.url)
		if err != nil {
			m.send(event{kind: evDialFailed, gen: gen, err: err})
			return
		}
		if !m.send(event{kind: evOpened, gen: gen, conn: conn}) {
			_ = conn.Close()
		}
	}()
}

func (m *Manager) scheduleReconnect(cs *connState) {
	if cs.reconnect != nil {
		return
	}
	cs.reconnect = time.NewTimer(m.opts.ReconnectDelay)
}

// read pumps frames into the dispatcher until the connection fails.
func (m *Manager) read(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.send(event{kind: evClosed, gen: gen, err: err})
			return
		}
		if !m.send(event{kind: evFrame, gen: gen, data: data}) {
			return
		}
	}
}

func (m *Manager) dispatch(raw []byte) {
	env, err := feed.Decode(raw)
	if err != nil {
		m.logger.Warn("Dropping malformed upstream frame", zap.Error(err), zap.ByteString("frame", truncate(raw)))
		return
	}

	switch env.CmdID {
	case feed.CmdHeartbeatResponse:
		m.logger.Debug("Heartbeat acknowledged", zap.String("trace", env.Trace))

	case feed.CmdBatchSubscribe, feed.CmdSubscribeResponse:
		if env.Ret == feed.RetOK {
			m.logger.Info("Subscription acknowledged", zap.String("trace", env.Trace))
		} else {
			m.logger.Warn("Subscription rejected", zap.Int("ret", env.Ret), zap.String("msg", env.Msg))
		}

	case feed.CmdTickPush:
		tick, err := feed.DecodeTick(env)
		if err != nil {
			m.logger.Warn("Dropping malformed tick", zap.Error(err))
			return
		}
		m.metrics.TicksReceived.Inc()
		m.handler.HandleTick(tick, raw)

	default:
		m.logger.Debug("Ignoring upstream command", zap.Int("cmd_id", env.CmdID))
	}
}

func (m *Manager) sendSubscription(cs *connState, symbols []string) {
	frame, err := feed.SubscribeFrame(symbols, time.Now())
	if err != nil {
		m.logger.Error("Failed to build subscribe frame", zap.Error(err))
		return
	}
	if m.write(cs, frame) {
		m.logger.Info("Subscription sent", zap.Strings("symbols", symbols))
	}
}

// write sends on the current connection. A failed write closes the
// connection; the reader then reports the close and a reconnect follows.
func (m *Manager) write(cs *connState, payload []byte) bool {
	if cs.conn == nil {
		return false
	}
	_ = cs.conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout))
	if err := cs.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		m.logger.Warn("Upstream write failed", zap.Error(err))
		_ = cs.conn.Close()
		return false
	}
	return true
}

func (m *Manager) shutdown(cs *connState) {
	m.setState(StateClosing)
	cs.stopHeartbeat()
	cs.stopReconnect()
	// Invalidate in-flight dials and readers.
	cs.gen++

	if cs.conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown")
		_ = cs.conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout))
		_ = cs.conn.WriteMessage(websocket.CloseMessage, msg)
		_ = cs.conn.Close()
		cs.conn = nil
	}
	m.drainEvents()
	m.setState(StateClosed)
	m.logger.Info("Upstream connection manager stopped")
}

// drainEvents releases connections from dials that completed during shutdown.
func (m *Manager) drainEvents() {
	for {
		select {
		case ev := <-m.events:
			if ev.conn != nil {
				_ = ev.conn.Close()
			}
		default:
			return
		}
	}
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	if s == StateOpen {
		m.metrics.ConnectionState.Set(1)
	} else {
		m.metrics.ConnectionState.Set(0)
	}
}

func truncate(b []byte) []byte {
	const limit = 256
	if len(b) > limit {
		return b[:limit]
	}
	return b
}
