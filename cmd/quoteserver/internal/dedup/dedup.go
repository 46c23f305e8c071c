// Package dedup suppresses redelivered upstream ticks within a short window.
package dedup

import (
	"time"

	"github.com/shubham-shewale/quote-relay/pkg/models"
)

type key struct {
	symbol   string
	price    string
	tickTime string
}

// Deduplicator is not safe for concurrent use. Each ingest worker owns one,
// and symbol sharding guarantees a key only ever reaches a single worker.
type Deduplicator struct {
	window  time.Duration
	entries map[key]time.Time // key -> expiry
}

func New(window time.Duration) *Deduplicator {
	return &Deduplicator{
		window:  window,
		entries: make(map[key]time.Time),
	}
}

// Accept reports whether the tick is new within the window and records it if so.
func (d *Deduplicator) Accept(t models.Tick, now time.Time) bool {
	k := key{symbol: t.Symbol, price: t.Price, tickTime: t.TickTime}

	if exp, ok := d.entries[k]; ok && now.Before(exp) {
		return false
	}

	d.sweep(now)
	d.entries[k] = now.Add(d.window)
	return true
}

// Len is the number of tracked entries, expired or not.
func (d *Deduplicator) Len() int { return len(d.entries) }

func (d *Deduplicator) sweep(now time.Time) {
	for k, exp := range d.entries {
		if !now.Before(exp) {
			delete(d.entries, k)
		}
	}
}
