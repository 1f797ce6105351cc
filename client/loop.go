package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ggoodman/tdsession-go/engine"
)

// run is the receive loop. It handles one event at a time and never polls
// again once the handle is released.
func (s *Session) run(ctx context.Context) {
	defer close(s.loopDone)
	defer s.log.DebugContext(ctx, "session.loop.exit")

	for {
		if ctx.Err() != nil || s.isReleased() {
			return
		}

		data, err := s.eng.Receive(s.handle, s.cfg.pollInterval)
		if err != nil {
			if errors.Is(err, engine.ErrUnknownHandle) {
				s.log.WarnContext(ctx, "session.loop.handle_lost", slog.String("err", err.Error()))
				return
			}
			s.log.WarnContext(ctx, "session.loop.receive_fail", slog.String("err", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.pollInterval):
			}
			continue
		}
		if data == nil {
			continue
		}

		ev, err := decodeEvent(data)
		if err != nil {
			s.log.WarnContext(ctx, "session.loop.decode_fail", slog.String("err", err.Error()))
			continue
		}
		s.dispatch(ctx, ev)
	}
}
