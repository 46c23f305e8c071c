// Package hub fans accepted quotes out to every connected downstream client
// and routes client subscription commands to the upstream registry.
package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/instrumentation"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/protocol"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

type ClientInterface interface {
	ID() string
	SendJSON(v interface{}) bool
	SendBytes(b []byte) bool
	Close()
}

// Subscriptions is the upstream side a client command ends up at.
type Subscriptions interface {
	Subscribe(symbols []string) []string
	Unsubscribe(symbols []string) []string
	Symbols() []string
	ConnectionStatus() string
}

type Hub struct {
	clients map[ClientInterface]bool
	subs    Subscriptions
	logger  *zap.Logger
	metrics *instrumentation.Metrics
	mu      sync.RWMutex
	closed  bool
}

func NewHub(subs Subscriptions, logger *zap.Logger, metrics *instrumentation.Metrics) *Hub {
	if metrics == nil {
		metrics = instrumentation.NewNopMetrics()
	}
	return &Hub{
		clients: make(map[ClientInterface]bool),
		subs:    subs,
		logger:  logger.With(zap.String("component", "hub")),
		metrics: metrics,
	}
}

// Register adds a client and greets it with the connection status.
func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		client.Close()
		return
	}
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.Clients.Set(float64(n))
	h.logger.Info("Client connected", zap.String("client_id", client.ID()))

	client.SendJSON(protocol.WSResponse{
		Event: protocol.EventConnectionStatus,
		Data: protocol.ConnectionStatus{
			Status:    "connected",
			Message:   "connected",
			Timestamp: time.Now().UTC(),
		},
	})
}

func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	h.metrics.Clients.Set(float64(len(h.clients)))
	client.Close()
	h.logger.Info("Client disconnected", zap.String("client_id", client.ID()))
}

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest) {
	switch req.Event {
	case protocol.EventSubscribe:
		h.handleSubscribe(client, req)
	case protocol.EventUnsubscribe:
		h.handleUnsubscribe(client, req)
	case protocol.EventGetStatus:
		client.SendJSON(protocol.WSResponse{Event: protocol.EventStatusInfo, Data: h.Status()})
	default:
		h.sendError(client, "Unknown event: "+req.Event)
	}
}

func (h *Hub) handleSubscribe(client ClientInterface, req protocol.WSRequest) {
	symbols := req.Data.Symbols
	if len(symbols) == 0 {
		h.sendError(client, "symbols are required to subscribe")
		return
	}

	h.logger.Info("Client subscribe",
		zap.String("client_id", client.ID()),
		zap.Strings("symbols", symbols),
		zap.Int("depth_level", req.Data.DepthLevel),
	)
	h.subs.Subscribe(symbols)

	client.SendJSON(protocol.WSResponse{
		Event: protocol.EventSubscribeSuccess,
		Data: protocol.SubscriptionResult{
			Message: fmt.Sprintf("Subscribed to %d symbols", len(symbols)),
			Symbols: symbols,
		},
	})
}

func (h *Hub) handleUnsubscribe(client ClientInterface, req protocol.WSRequest) {
	symbols := req.Data.Symbols
	if len(symbols) == 0 {
		h.sendError(client, "symbols are required to unsubscribe")
		return
	}

	h.logger.Info("Client unsubscribe", zap.String("client_id", client.ID()), zap.Strings("symbols", symbols))
	h.subs.Unsubscribe(symbols)

	client.SendJSON(protocol.WSResponse{
		Event: protocol.EventUnsubscribeSuccess,
		Data: protocol.SubscriptionResult{
			Message: fmt.Sprintf("Unsubscribed from %d symbols", len(symbols)),
			Symbols: symbols,
		},
	})
}

// Status is answered from memory, never from the upstream.
func (h *Hub) Status() protocol.StatusInfo {
	return protocol.StatusInfo{
		ConnectionStatus:  h.subs.ConnectionStatus(),
		SubscribedSymbols: h.subs.Symbols(),
		Timestamp:         time.Now().UTC(),
	}
}

// Publish sends a quote update to every connected client. raw is the upstream
// frame and is forwarded as-is; without it the snapshot is sent instead.
// Slow clients lose the message rather than stall ingestion.
func (h *Hub) Publish(quote *models.QuoteSnapshot, raw []byte) {
	var data interface{} = quote
	if len(raw) > 0 && json.Valid(raw) {
		data = json.RawMessage(raw)
	}
	msg, err := json.Marshal(protocol.WSResponse{Event: protocol.EventQuoteData, Data: data})
	if err != nil {
		h.logger.Error("Failed to encode quote-data", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.SendBytes(msg) {
			h.metrics.BroadcastDrops.Inc()
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
	h.metrics.Clients.Set(0)
}

func (h *Hub) sendError(c ClientInterface, msg string) {
	c.SendJSON(protocol.WSResponse{Event: protocol.EventError, Data: protocol.ErrorMessage{Message: msg}})
}
