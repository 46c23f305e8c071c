package gateway

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/hub"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/protocol"
)

const (
	maxMessageSize = 512 * 1024
	sendBuffer     = 256
)

type ClientAdapter struct {
	id     string
	conn   net.Conn
	hub    *hub.Hub
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(conn net.Conn, h *hub.Hub, logger *zap.Logger) *ClientAdapter {
	id := uuid.NewString()
	return &ClientAdapter{
		id:         id,
		conn:       conn,
		hub:        h,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		logger:     logger.With(zap.String("client_id", id)),
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

// Handler upgrades requests to websocket clients of h.
func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Debug("Websocket upgrade failed", zap.Error(err))
			return
		}
		NewClient(conn, h, logger).Start()
	}
}

func (c *ClientAdapter) Start() {
	go c.writePump()
	c.hub.Register(c)
	go c.readPump()
}

func (c *ClientAdapter) ID() string { return c.id }

// Close stops the write pump, which sends a close frame and releases the conn.
func (c *ClientAdapter) Close() { c.once.Do(func() { close(c.done) }) }

func (c *ClientAdapter) SendJSON(v interface{}) bool {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return false
	}
	return c.SendBytes(b)
}

// SendBytes never blocks. A full buffer drops the message.
func (c *ClientAdapter) SendBytes(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			return
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Message too big", zap.Int64("size", header.Length))
			return
		}
		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)")
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return
		}
		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPong:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
			continue
		case ws.OpPing:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
			continue
		case ws.OpText:
		default:
			continue
		}

		var req protocol.WSRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			c.SendJSON(protocol.WSResponse{Event: protocol.EventError, Data: protocol.ErrorMessage{Message: "Invalid JSON"}})
			continue
		}

		symbols := req.Data.Symbols[:0]
		for _, s := range req.Data.Symbols {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
		req.Data.Symbols = symbols

		c.hub.HandleCommand(c, req)
	}
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.conn.Write(ws.CompiledClose)
			return
		}
	}
}
