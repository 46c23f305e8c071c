package testutils

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/protocol"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.WSResponse // decoded SendJSON calls
	RawBytes []string
	Full     bool // when set, SendBytes reports a full buffer
	Closed   bool
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, Messages: make([]protocol.WSResponse, 0)}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if resp, ok := v.(protocol.WSResponse); ok {
		m.Messages = append(m.Messages, resp)
	}
	return true
}

func (m *MockClient) SendBytes(b []byte) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Full {
		return false
	}
	m.RawBytes = append(m.RawBytes, string(b))
	return true
}

func (m *MockClient) LastEvent() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return ""
	}
	return m.Messages[len(m.Messages)-1].Event
}

func (m *MockClient) Last() protocol.WSResponse {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return protocol.WSResponse{}
	}
	return m.Messages[len(m.Messages)-1]
}

// Broadcasts decodes every raw message received.
func (m *MockClient) Broadcasts() []map[string]json.RawMessage {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([]map[string]json.RawMessage, 0, len(m.RawBytes))
	for _, raw := range m.RawBytes {
		var v map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// MockSubscriptions is an in-memory hub.Subscriptions.
type MockSubscriptions struct {
	Mu     sync.Mutex
	Set    map[string]bool
	Status string
}

func NewMockSubscriptions(symbols ...string) *MockSubscriptions {
	m := &MockSubscriptions{Set: make(map[string]bool), Status: "OPEN"}
	for _, s := range symbols {
		m.Set[s] = true
	}
	return m
}

func (m *MockSubscriptions) Subscribe(symbols []string) []string {
	m.Mu.Lock()
	for _, s := range symbols {
		m.Set[s] = true
	}
	m.Mu.Unlock()
	return m.Symbols()
}

func (m *MockSubscriptions) Unsubscribe(symbols []string) []string {
	m.Mu.Lock()
	for _, s := range symbols {
		delete(m.Set, s)
	}
	m.Mu.Unlock()
	return m.Symbols()
}

func (m *MockSubscriptions) Symbols() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([]string, 0, len(m.Set))
	for s := range m.Set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (m *MockSubscriptions) ConnectionStatus() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Status
}
