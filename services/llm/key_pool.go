package llm

import (
	"strings"
	"sync"
)

// KeyPool is a rotating set of API credentials shared by every caller of a client.
// The pool only remembers which key is current; each call keeps its own attempt
// budget, so concurrent callers never exhaust one another's retries.
type KeyPool struct {
	mu      sync.Mutex
	keys    []string
	current int
}

// NewKeyPool builds a pool from keys, ignoring blanks
func NewKeyPool(keys ...string) *KeyPool {
	pool := &KeyPool{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			pool.keys = append(pool.keys, k)
		}
	}
	return pool
}

// ParseKeyPool builds a pool from a comma-separated list such as LLM_API_KEYS
func ParseKeyPool(csv string) *KeyPool {
	return NewKeyPool(strings.Split(csv, ",")...)
}

// Len returns the number of usable keys
func (p *KeyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Current returns the active key, or "" for an empty pool
func (p *KeyPool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return ""
	}
	return p.keys[p.current]
}

// Rotate reports that failed was rejected. The pool advances only while failed
// is still the current key, so callers that saw the same rejection move it once
// between them. It returns false when there is no other key to try.
func (p *KeyPool) Rotate(failed string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) <= 1 {
		return false
	}
	if p.keys[p.current] == failed {
		p.current = (p.current + 1) % len(p.keys)
	}
	return true
}
