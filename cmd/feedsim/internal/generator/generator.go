// Package generator produces synthetic ticks in the upstream feed format.
package generator

import (
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/quote-relay/pkg/feed"
)

var defaultBasePrice = decimal.NewFromInt(100)

type TickGenerator struct {
	mu          sync.Mutex
	basePrices  map[string]decimal.Decimal
	rand        Rand
	clock       Clock
	seqCounters map[string]int64
}

func NewTickGenerator(basePrices map[string]decimal.Decimal, rnd Rand, clock Clock) *TickGenerator {
	return &TickGenerator{
		basePrices:  basePrices,
		rand:        rnd,
		clock:       clock,
		seqCounters: make(map[string]int64),
	}
}

// Next builds a tick for one of symbols, picked at random. Prices wander
// within ±5 of the symbol's base price.
func (g *TickGenerator) Next(symbols []string) (feed.TickPayload, bool) {
	if len(symbols) == 0 {
		return feed.TickPayload{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	symbol := symbols[g.rand.Intn(len(symbols))]
	base, ok := g.basePrices[symbol]
	if !ok {
		base = defaultBasePrice
	}
	fluctuation := decimal.NewFromFloat((g.rand.Float64() * 10) - 5)
	price := base.Add(fluctuation).Round(2)
	volume := 1 + g.rand.Intn(1000)
	g.seqCounters[symbol]++

	direction := "1"
	if g.rand.Intn(2) == 1 {
		direction = "2"
	}

	return feed.TickPayload{
		Code:           feed.FlexString(symbol),
		Seq:            feed.FlexString(strconv.FormatInt(g.seqCounters[symbol], 10)),
		TickTime:       feed.FlexString(strconv.FormatInt(g.clock.Now().UnixMilli(), 10)),
		Price:          feed.FlexString(price.String()),
		Volume:         feed.FlexString(strconv.Itoa(volume)),
		Turnover:       feed.FlexString(price.Mul(decimal.NewFromInt(int64(volume))).String()),
		TradeDirection: feed.FlexString(direction),
	}, true
}
