package hub_test

import (
	"encoding/json"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/hub"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/instrumentation"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/protocol"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/testutils"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

func setup() (*hub.Hub, *testutils.MockSubscriptions, *instrumentation.Metrics) {
	subs := testutils.NewMockSubscriptions("AAPL.US")
	metrics := instrumentation.NewNopMetrics()
	return hub.NewHub(subs, zap.NewNop(), metrics), subs, metrics
}

func TestHub_RegisterSendsConnectionStatus(t *testing.T) {
	h, _, metrics := setup()
	client := testutils.NewMockClient("c1")

	h.Register(client)

	if client.LastEvent() != protocol.EventConnectionStatus {
		t.Errorf("Expected connection-status, got %s", client.LastEvent())
	}
	if got := promtest.ToFloat64(metrics.Clients); got != 1 {
		t.Errorf("Expected 1 connected client, got %v", got)
	}
}

func TestHub_Subscribe(t *testing.T) {
	h, subs, _ := setup()
	client := testutils.NewMockClient("c1")

	h.HandleCommand(client, protocol.WSRequest{
		Event: protocol.EventSubscribe,
		Data:  protocol.RequestPayload{Symbols: []string{"TSLA.US"}, DepthLevel: 5},
	})

	if client.LastEvent() != protocol.EventSubscribeSuccess {
		t.Fatalf("Expected subscribe-success, got %s", client.LastEvent())
	}
	res := client.Last().Data.(protocol.SubscriptionResult)
	if len(res.Symbols) != 1 || res.Symbols[0] != "TSLA.US" {
		t.Errorf("Unexpected ack symbols %v", res.Symbols)
	}
	if !subs.Set["TSLA.US"] {
		t.Error("Subscription not delegated to registry")
	}
}

func TestHub_EmptySymbolsIsError(t *testing.T) {
	h, _, _ := setup()
	client := testutils.NewMockClient("c1")

	h.HandleCommand(client, protocol.WSRequest{Event: protocol.EventSubscribe})
	if client.LastEvent() != protocol.EventError {
		t.Errorf("Expected error for empty subscribe, got %s", client.LastEvent())
	}

	h.HandleCommand(client, protocol.WSRequest{Event: protocol.EventUnsubscribe})
	if client.LastEvent() != protocol.EventError {
		t.Errorf("Expected error for empty unsubscribe, got %s", client.LastEvent())
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h, subs, _ := setup()
	client := testutils.NewMockClient("c1")

	h.HandleCommand(client, protocol.WSRequest{
		Event: protocol.EventUnsubscribe,
		Data:  protocol.RequestPayload{Symbols: []string{"AAPL.US"}},
	})

	if client.LastEvent() != protocol.EventUnsubscribeSuccess {
		t.Errorf("Expected unsubscribe-success, got %s", client.LastEvent())
	}
	if len(subs.Symbols()) != 0 {
		t.Errorf("Expected empty registry, got %v", subs.Symbols())
	}
}

func TestHub_GetStatus(t *testing.T) {
	h, _, _ := setup()
	client := testutils.NewMockClient("c1")

	h.HandleCommand(client, protocol.WSRequest{Event: protocol.EventGetStatus})

	if client.LastEvent() != protocol.EventStatusInfo {
		t.Fatalf("Expected status-info, got %s", client.LastEvent())
	}
	info := client.Last().Data.(protocol.StatusInfo)
	if info.ConnectionStatus != "OPEN" || len(info.SubscribedSymbols) != 1 {
		t.Errorf("Unexpected status %+v", info)
	}
}

func TestHub_UnknownEvent(t *testing.T) {
	h, _, _ := setup()
	client := testutils.NewMockClient("c1")

	h.HandleCommand(client, protocol.WSRequest{Event: "dance"})
	if client.LastEvent() != protocol.EventError {
		t.Errorf("Expected error, got %s", client.LastEvent())
	}
}

func TestHub_PublishReachesEveryClient(t *testing.T) {
	h, _, metrics := setup()
	a := testutils.NewMockClient("a")
	b := testutils.NewMockClient("b")
	slow := testutils.NewMockClient("slow")
	slow.Full = true
	h.Register(a)
	h.Register(b)
	h.Register(slow)

	raw := []byte(`{"cmd_id":22998,"data":{"code":"NVDA.US","price":"145.67"}}`)
	h.Publish(&models.QuoteSnapshot{Symbol: "NVDA.US", BuyPrice: decimal.RequireFromString("145.87")}, raw)

	for _, c := range []*testutils.MockClient{a, b} {
		msgs := c.Broadcasts()
		if len(msgs) != 1 {
			t.Fatalf("Client %s expected 1 broadcast, got %d", c.ID(), len(msgs))
		}
		var event string
		json.Unmarshal(msgs[0]["event"], &event)
		if event != protocol.EventQuoteData {
			t.Errorf("Expected quote-data, got %s", event)
		}
		if string(msgs[0]["data"]) != string(raw) {
			t.Errorf("Expected raw upstream payload, got %s", msgs[0]["data"])
		}
	}
	if got := promtest.ToFloat64(metrics.BroadcastDrops); got != 1 {
		t.Errorf("Expected one dropped broadcast, got %v", got)
	}
}

func TestHub_PublishWithoutRawSendsSnapshot(t *testing.T) {
	h, _, _ := setup()
	a := testutils.NewMockClient("a")
	h.Register(a)

	h.Publish(&models.QuoteSnapshot{Symbol: "NVDA.US"}, nil)

	msgs := a.Broadcasts()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 broadcast, got %d", len(msgs))
	}
	var snap models.QuoteSnapshot
	if err := json.Unmarshal(msgs[0]["data"], &snap); err != nil || snap.Symbol != "NVDA.US" {
		t.Errorf("Expected snapshot payload, got %s", msgs[0]["data"])
	}
}

func TestHub_UnregisterAndShutdown(t *testing.T) {
	h, _, _ := setup()
	a := testutils.NewMockClient("a")
	b := testutils.NewMockClient("b")
	h.Register(a)
	h.Register(b)

	h.Unregister(a)
	if !a.Closed || h.Len() != 1 {
		t.Errorf("Expected a closed and 1 client left, got closed=%v len=%d", a.Closed, h.Len())
	}

	h.Shutdown()
	if !b.Closed || h.Len() != 0 {
		t.Error("Shutdown should close every client")
	}

	late := testutils.NewMockClient("late")
	h.Register(late)
	if !late.Closed || h.Len() != 0 {
		t.Error("Clients registering after shutdown should be refused")
	}
}
