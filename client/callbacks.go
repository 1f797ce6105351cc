package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggoodman/tdsession-go/input"
	"github.com/ggoodman/tdsession-go/td"
)

// UpdateHandler receives events no other route claimed.
type UpdateHandler func(ctx context.Context, ev td.Event)

// ErrorHandler receives engine errors that are neither correlated nor part of
// the authorization flow.
type ErrorHandler func(ctx context.Context, e *td.Error)

// Callback names accepted by RegisterCallback.
const (
	CallbackUpdate = "update"
	CallbackError  = "error"
	CallbackInput  = "input"
)

type callbackSet struct {
	mu       sync.RWMutex
	log      *slog.Logger
	onUpdate UpdateHandler
	onError  ErrorHandler
}

func (c *callbackSet) emitUpdate(ctx context.Context, ev td.Event) {
	c.mu.RLock()
	fn := c.onUpdate
	c.mu.RUnlock()
	if fn != nil {
		fn(ctx, ev)
	}
}

func (c *callbackSet) emitError(ctx context.Context, e *td.Error) {
	c.mu.RLock()
	fn := c.onError
	c.mu.RUnlock()
	if fn == nil {
		c.log.WarnContext(ctx, "session.error.unhandled", slog.Int("code", e.Code), slog.String("message", e.Message))
		return
	}
	fn(ctx, e)
}

// OnUpdate sets the generic update callback. nil removes it.
func (s *Session) OnUpdate(fn UpdateHandler) {
	s.callbacks.mu.Lock()
	s.callbacks.onUpdate = fn
	s.callbacks.mu.Unlock()
}

// OnError sets the unclassified error callback. nil removes it.
func (s *Session) OnError(fn ErrorHandler) {
	s.callbacks.mu.Lock()
	s.callbacks.onError = fn
	s.callbacks.mu.Unlock()
}

// RegisterCallback installs a callback by name: "update" takes an
// UpdateHandler, "error" an ErrorHandler and "input" an input.Provider or
// input.Func. Unknown names and mismatched handler types fail with
// ErrInvalidCallback.
func (s *Session) RegisterCallback(name string, fn any) error {
	switch name {
	case CallbackUpdate:
		switch h := fn.(type) {
		case UpdateHandler:
			s.OnUpdate(h)
			return nil
		case func(context.Context, td.Event):
			s.OnUpdate(h)
			return nil
		}
	case CallbackError:
		switch h := fn.(type) {
		case ErrorHandler:
			s.OnError(h)
			return nil
		case func(context.Context, *td.Error):
			s.OnError(h)
			return nil
		}
	case CallbackInput:
		switch h := fn.(type) {
		case input.Provider:
			s.auth.SetProvider(h)
			return nil
		case func(context.Context, input.Request) (string, error):
			s.auth.SetProvider(input.Func(h))
			return nil
		}
	default:
		return fmt.Errorf("%w: unknown name %q", ErrInvalidCallback, name)
	}
	return fmt.Errorf("%w: %s does not accept %T", ErrInvalidCallback, name, fn)
}
