package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/upstream"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

var ErrConnClosed = errors.New("mock conn closed")

// MockConn is an in-memory upstream connection. Frames pushed with Push are
// returned by ReadMessage; everything written is recorded.
type MockConn struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	Mu         sync.Mutex
	Written    [][]byte
	Controls   []int // message types of non-text writes
	FailWrites bool
}

func NewMockConn() *MockConn {
	return &MockConn{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (c *MockConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.inbound:
		return websocket.TextMessage, b, nil
	case <-c.closed:
		return 0, nil, ErrConnClosed
	}
}

func (c *MockConn) WriteMessage(messageType int, data []byte) error {
	c.Mu.Lock()
	defer c.Mu.Unlock()

	if c.FailWrites || c.IsClosed() {
		return ErrConnClosed
	}
	if messageType == websocket.TextMessage {
		c.Written = append(c.Written, append([]byte(nil), data...))
	} else {
		c.Controls = append(c.Controls, messageType)
	}
	return nil
}

func (c *MockConn) SetWriteDeadline(time.Time) error { return nil }

func (c *MockConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Push delivers a frame as if sent by the upstream.
func (c *MockConn) Push(frame []byte) { c.inbound <- frame }

// Drop simulates the upstream closing the connection.
func (c *MockConn) Drop() { _ = c.Close() }

func (c *MockConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *MockConn) Frames() [][]byte {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return append([][]byte(nil), c.Written...)
}

func (c *MockConn) ControlFrames() []int {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return append([]int(nil), c.Controls...)
}

// MockDialer hands out a fresh MockConn per Dial, or fails while Fail is set.
type MockDialer struct {
	Mu    sync.Mutex
	Conns []*MockConn
	URLs  []string
	Fail  int // number of upcoming dials to fail
	dials chan *MockConn
}

func NewMockDialer() *MockDialer {
	return &MockDialer{dials: make(chan *MockConn, 16)}
}

func (d *MockDialer) Dial(ctx context.Context, url string) (upstream.Conn, error) {
	d.Mu.Lock()
	defer d.Mu.Unlock()

	d.URLs = append(d.URLs, url)
	if d.Fail > 0 {
		d.Fail--
		return nil, errors.New("dial refused")
	}
	c := NewMockConn()
	d.Conns = append(d.Conns, c)
	d.dials <- c
	return c, nil
}

// Next waits for the next successful dial.
func (d *MockDialer) Next(timeout time.Duration) (*MockConn, bool) {
	select {
	case c := <-d.dials:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}

func (d *MockDialer) Attempts() int {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	return len(d.URLs)
}

// MockTickHandler collects forwarded ticks.
type MockTickHandler struct {
	Ticks chan models.Tick
}

func NewMockTickHandler() *MockTickHandler {
	return &MockTickHandler{Ticks: make(chan models.Tick, 64)}
}

func (h *MockTickHandler) HandleTick(tick models.Tick, raw []byte) {
	select {
	case h.Ticks <- tick:
	default:
	}
}

// WaitFor polls cond until it holds or the timeout passes.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
