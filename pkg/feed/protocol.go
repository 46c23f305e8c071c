// Package feed is the wire codec for the upstream quote feed.
//
// Every frame is a JSON envelope {cmd_id, seq_id, trace, data}. Responses
// additionally carry ret (200 on success) and msg.
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shubham-shewale/quote-relay/pkg/models"
)

const (
	CmdHeartbeat         = 22000
	CmdHeartbeatResponse = 22001
	CmdBatchSubscribe    = 22004
	CmdSubscribeResponse = 22005
	CmdTickPush          = 22998

	RetOK = 200
)

// Envelope is the common frame shape in both directions.
type Envelope struct {
	CmdID int             `json:"cmd_id"`
	SeqID int64           `json:"seq_id,omitempty"`
	Trace string          `json:"trace,omitempty"`
	Ret   int             `json:"ret,omitempty"`
	Msg   string          `json:"msg,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TickPayload is the data of a 22998 push. The upstream is not consistent
// about quoting numbers, so every field accepts both forms.
type TickPayload struct {
	Code           FlexString `json:"code"`
	Seq            FlexString `json:"seq"`
	TickTime       FlexString `json:"tick_time"`
	Price          FlexString `json:"price"`
	Volume         FlexString `json:"volume"`
	Turnover       FlexString `json:"turnover"`
	TradeDirection FlexString `json:"trade_direction"`
}

// Tick converts the payload into the pipeline model.
func (p TickPayload) Tick() models.Tick {
	dir, _ := strconv.Atoi(string(p.TradeDirection))
	return models.Tick{
		Symbol:    string(p.Code),
		Sequence:  string(p.Seq),
		TickTime:  string(p.TickTime),
		Price:     string(p.Price),
		Volume:    string(p.Volume),
		Turnover:  string(p.Turnover),
		Direction: models.Direction(dir),
	}
}

type SymbolEntry struct {
	Code       string `json:"code"`
	DepthLevel int    `json:"depth_level,omitempty"`
}

type SubscribeData struct {
	SymbolList []SymbolEntry `json:"symbol_list"`
}

// FlexString decodes a JSON string, number or null into its textual form.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("feed: expected string or number, got %s", b)
	}
	*f = FlexString(n.String())
	return nil
}

// Decode parses a raw frame into its envelope.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.CmdID == 0 {
		return nil, fmt.Errorf("decode envelope: missing cmd_id")
	}
	return &env, nil
}

// DecodeTick parses the data of a tick push.
func DecodeTick(env *Envelope) (models.Tick, error) {
	var p TickPayload
	if len(env.Data) == 0 {
		return models.Tick{}, fmt.Errorf("decode tick: empty data")
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return models.Tick{}, fmt.Errorf("decode tick: %w", err)
	}
	if p.Code == "" {
		return models.Tick{}, fmt.Errorf("decode tick: missing code")
	}
	return p.Tick(), nil
}

// DecodeSubscribe parses the data of a 22004 request.
func DecodeSubscribe(env *Envelope) (SubscribeData, error) {
	var d SubscribeData
	if len(env.Data) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return d, fmt.Errorf("decode subscribe: %w", err)
	}
	return d, nil
}

// HeartbeatFrame builds a 22000 request tagged with a fresh correlation token.
func HeartbeatFrame(now time.Time) ([]byte, error) {
	return json.Marshal(Envelope{
		CmdID: CmdHeartbeat,
		SeqID: now.UnixMilli(),
		Trace: uuid.NewString(),
	})
}

// SubscribeFrame builds a 22004 request. The upstream replaces its whole
// subscription with the list, so an empty list unsubscribes everything.
func SubscribeFrame(symbols []string, now time.Time) ([]byte, error) {
	list := make([]SymbolEntry, 0, len(symbols))
	for _, s := range symbols {
		list = append(list, SymbolEntry{Code: s})
	}
	data, err := json.Marshal(SubscribeData{SymbolList: list})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		CmdID: CmdBatchSubscribe,
		SeqID: now.UnixMilli(),
		Trace: uuid.NewString(),
		Data:  data,
	})
}

// TickFrame builds a 22998 push. Used by the feed simulator and tests.
func TickFrame(p TickPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{CmdID: CmdTickPush, Data: data})
}

// ResponseFrame builds an ack for a request envelope.
func ResponseFrame(req *Envelope, cmdID, ret int, msg string) ([]byte, error) {
	return json.Marshal(Envelope{
		CmdID: cmdID,
		SeqID: req.SeqID,
		Trace: req.Trace,
		Ret:   ret,
		Msg:   msg,
		Data:  json.RawMessage(`{}`),
	})
}
