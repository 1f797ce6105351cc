package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with session, query and event attributes carried
// on the context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		phase := ""
		if sd.Phase != nil {
			phase = sd.Phase()
		}
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
			slog.String("phase", phase),
		))
	}

	if qd, ok := ctx.Value(queryDataKey{}).(*QueryData); ok {
		r.AddAttrs(slog.Group("query",
			slog.String("extra", qd.Extra),
			slog.String("type", qd.Type),
		))
	}

	if ed, ok := ctx.Value(eventDataKey{}).(*EventData); ok {
		r.AddAttrs(slog.Group("event",
			slog.String("type", ed.Type),
			slog.String("extra", ed.Extra),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type sessionDataKey struct{}

// SessionData identifies the session a record belongs to. Phase is evaluated
// lazily so long-lived contexts report the current authorization phase.
type SessionData struct {
	SessionID string
	Phase     func() string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type queryDataKey struct{}

type QueryData struct {
	Extra string
	Type  string
}

func WithQueryData(ctx context.Context, data *QueryData) context.Context {
	return context.WithValue(ctx, queryDataKey{}, data)
}

type eventDataKey struct{}

type EventData struct {
	Type  string
	Extra string
}

func WithEventData(ctx context.Context, data *EventData) context.Context {
	return context.WithValue(ctx, eventDataKey{}, data)
}
