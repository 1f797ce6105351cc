package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/tdsession-go/internal/logctx"
	"github.com/ggoodman/tdsession-go/td"
)

const optionMyID = "my_id"

// dispatch routes one event. First match wins.
func (s *Session) dispatch(ctx context.Context, ev td.Event) {
	ctx = logctx.WithEventData(ctx, &logctx.EventData{Type: ev.Type(), Extra: string(ev.Extra())})

	if fn := s.hijacks.lookup(ev.Type()); fn != nil {
		fn(ctx, ev)
		return
	}

	switch e := ev.(type) {
	case *td.AuthorizationStateUpdate:
		s.handleAuthState(ctx, e)
		return
	case *td.Error:
		s.handleError(ctx, e)
		return
	}

	// Only queries carry a tag, so a tagged event without a pending query is
	// the late answer to one that already timed out.
	if extra := ev.Extra(); extra != "" {
		if !s.queries.Pending(extra) {
			s.log.DebugContext(ctx, "session.dispatch.orphan")
			return
		}
		obj, err := ev.Object()
		if err != nil {
			s.queries.Reject(extra, err)
			return
		}
		if !s.queries.Resolve(extra, obj) {
			s.log.DebugContext(ctx, "session.dispatch.orphan")
		}
		return
	}

	if fu, ok := ev.(*td.FileUpdate); ok && s.downloads.offer(fu.File) {
		return
	}

	if ou, ok := ev.(*td.OptionUpdate); ok && ou.Name == optionMyID && ou.Value.IsEmpty() {
		s.log.InfoContext(ctx, "session.signed_out")
		s.release(errSignedOut)
		return
	}

	s.callbacks.emitUpdate(ctx, ev)
}

func (s *Session) handleAuthState(ctx context.Context, ev *td.AuthorizationStateUpdate) {
	ready, err := s.auth.Handle(ctx, ev.State)
	if err != nil {
		s.failAuth(ctx, err)
		return
	}
	if !ready {
		return
	}

	s.log.InfoContext(ctx, "session.auth.ready", slog.Duration("settle", s.cfg.settleDelay))
	if s.cfg.settleDelay <= 0 {
		s.resolveReady(nil)
		return
	}
	time.AfterFunc(s.cfg.settleDelay, func() { s.resolveReady(nil) })
}

func (s *Session) handleError(ctx context.Context, ev *td.Error) {
	if extra := ev.Extra(); extra != "" {
		if !s.queries.Reject(extra, remoteError(ev)) {
			s.log.DebugContext(ctx, "session.dispatch.orphan", slog.Int("code", ev.Code))
		}
		return
	}

	handled, err := s.auth.HandleError(ctx, ev)
	if handled {
		if err != nil {
			s.failAuth(ctx, err)
		}
		return
	}

	s.callbacks.emitError(ctx, ev)
}

// failAuth resolves readiness with a fatal authorization error. An error
// caused by Close interrupting the step is reported as ErrSessionClosed.
func (s *Session) failAuth(ctx context.Context, err error) {
	if s.ctx.Err() != nil && !errors.Is(err, ErrSessionClosed) {
		err = fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	s.log.ErrorContext(ctx, "session.auth.fail", slog.String("err", err.Error()))
	s.resolveReady(err)
}
