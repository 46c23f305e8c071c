package upstream

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shubham-shewale/quote-relay/pkg/models"
)

// State of the upstream connection.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Conn is the subset of *websocket.Conn the manager uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// TickHandler receives decoded tick pushes. It must not block.
type TickHandler interface {
	HandleTick(tick models.Tick, raw []byte)
}

// TickHandlerFunc adapts a function to TickHandler.
type TickHandlerFunc func(tick models.Tick, raw []byte)

func (f TickHandlerFunc) HandleTick(tick models.Tick, raw []byte) { f(tick, raw) }

// GorillaDialer adapts *websocket.Dialer to Dialer
type GorillaDialer struct{ *websocket.Dialer }

func NewGorillaDialer(handshakeTimeout time.Duration) *GorillaDialer {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = handshakeTimeout
	return &GorillaDialer{Dialer: &d}
}

func (d *GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := d.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
