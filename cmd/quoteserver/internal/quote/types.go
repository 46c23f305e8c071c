package quote

import (
	"context"
	"errors"
	"time"

	"github.com/shubham-shewale/quote-relay/pkg/models"
)

// ErrSpreadNotFound is returned by a SpreadProvider for unconfigured symbols.
var ErrSpreadNotFound = errors.New("spread setting not found")

// SpreadProvider is the reference-data lookup for spread configuration.
type SpreadProvider interface {
	GetBySymbol(ctx context.Context, symbol string) (*models.SpreadSetting, error)
}

// Sink receives durable records. Implementations must not block and must
// handle their own failures.
type Sink interface {
	AppendTick(rec models.TickRecord)
	AppendPriceChange(rec models.PriceChangeRecord)
}

// Broadcaster fans an accepted quote out to live subscribers. raw is the
// upstream frame the quote was derived from, nil when unavailable.
type Broadcaster interface {
	Publish(quote *models.QuoteSnapshot, raw []byte)
}

// SymbolSource lists the symbols whose quotes make up the aggregate view.
type SymbolSource interface {
	Symbols() []string
}

// Clock for deterministic testing
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

type NopSink struct{}

func (NopSink) AppendTick(models.TickRecord)               {}
func (NopSink) AppendPriceChange(models.PriceChangeRecord) {}

type NopBroadcaster struct{}

func (NopBroadcaster) Publish(*models.QuoteSnapshot, []byte) {}
