package upstream

import (
	"sort"
	"strings"
	"sync"
)

// Registry is the logical set of symbols to stream, independent of the
// connection. Downstream clients mutate it from their own goroutines.
type Registry struct {
	mu      sync.RWMutex
	symbols map[string]struct{}
}

func NewRegistry(initial ...string) *Registry {
	r := &Registry{symbols: make(map[string]struct{})}
	r.Add(initial)
	return r
}

// Add returns true when the set changed.
func (r *Registry) Add(symbols []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, s := range symbols {
		s = normalize(s)
		if s == "" {
			continue
		}
		if _, ok := r.symbols[s]; !ok {
			r.symbols[s] = struct{}{}
			changed = true
		}
	}
	return changed
}

// Remove returns true when the set changed.
func (r *Registry) Remove(symbols []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, s := range symbols {
		s = normalize(s)
		if _, ok := r.symbols[s]; ok {
			delete(r.symbols, s)
			changed = true
		}
	}
	return changed
}

// Symbols returns a sorted copy of the set.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.symbols)
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
