package protocol

import "time"

// Inbound events.
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventGetStatus   = "get-status"
)

// Outbound events.
const (
	EventConnectionStatus   = "connection-status"
	EventQuoteData          = "quote-data"
	EventSubscribeSuccess   = "subscribe-success"
	EventUnsubscribeSuccess = "unsubscribe-success"
	EventStatusInfo         = "status-info"
	EventError              = "error"
)

type WSRequest struct {
	Event string         `json:"event"`
	Data  RequestPayload `json:"data"`
}

type RequestPayload struct {
	Symbols    []string `json:"symbols"`
	DepthLevel int      `json:"depthLevel,omitempty"`
}

type WSResponse struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type ConnectionStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type SubscriptionResult struct {
	Message string   `json:"message"`
	Symbols []string `json:"symbols"`
}

// StatusInfo is shared by the websocket status-info event and the HTTP
// connection status endpoint.
type StatusInfo struct {
	ConnectionStatus  string    `json:"connectionStatus"`
	SubscribedSymbols []string  `json:"subscribedSymbols"`
	Timestamp         time.Time `json:"timestamp"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}
