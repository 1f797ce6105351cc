package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/ggoodman/tdsession-go/td"
)

// HijackFunc receives every event of a hijacked type. It runs on the receive
// loop.
type HijackFunc func(ctx context.Context, ev td.Event)

type hijackTable struct {
	mu      sync.RWMutex
	entries map[string]HijackFunc
}

func (t *hijackTable) lookup(typ string) HijackFunc {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[typ]
}

// Hijack routes every event of type typ to fn, bypassing all other routes,
// until Unhijack is called. There is at most one hijack per type; installing
// a new one replaces the previous handler.
func (s *Session) Hijack(typ string, fn HijackFunc) error {
	if typ == "" || fn == nil {
		return fmt.Errorf("%w: hijack requires a type and a handler", ErrInvalidCallback)
	}
	s.hijacks.mu.Lock()
	s.hijacks.entries[typ] = fn
	s.hijacks.mu.Unlock()
	return nil
}

// Unhijack removes the hijack for typ; its events resume normal routing.
func (s *Session) Unhijack(typ string) {
	s.hijacks.mu.Lock()
	delete(s.hijacks.entries, typ)
	s.hijacks.mu.Unlock()
}
