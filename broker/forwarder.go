package broker

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/ggoodman/tdsession-go/td"
)

const defaultForwardBuffer = 256

// Forwarder publishes session events to a broker namespace. Update and Error
// never block: they enqueue the payload for Run, which performs the publish.
// They are meant to be installed as a session's update and error callbacks.
type Forwarder struct {
	broker    Broker
	namespace string
	log       *slog.Logger
	types     map[string]bool
	queue     chan []byte
	dropped   atomic.Int64
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithForwarderLogger sets the logger.
func WithForwarderLogger(l *slog.Logger) ForwarderOption {
	return func(f *Forwarder) {
		if l != nil {
			f.log = l
		}
	}
}

// WithTypes restricts forwarding to the listed event types.
func WithTypes(types ...string) ForwarderOption {
	return func(f *Forwarder) {
		if len(types) == 0 {
			return
		}
		f.types = make(map[string]bool, len(types))
		for _, t := range types {
			f.types[t] = true
		}
	}
}

// WithBuffer sets how many events may wait for publishing before new ones
// are dropped.
func WithBuffer(n int) ForwarderOption {
	return func(f *Forwarder) {
		if n > 0 {
			f.queue = make(chan []byte, n)
		}
	}
}

// NewForwarder returns a Forwarder publishing into namespace.
func NewForwarder(b Broker, namespace string, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		broker:    b,
		namespace: namespace,
		log:       slog.Default(),
		queue:     make(chan []byte, defaultForwardBuffer),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Update enqueues ev unless it is filtered out.
func (f *Forwarder) Update(ctx context.Context, ev td.Event) {
	if f.types != nil && !f.types[ev.Type()] {
		return
	}
	f.enqueue(ctx, ev.Type(), ev.Raw())
}

// Error enqueues an unclassified engine error.
func (f *Forwarder) Error(ctx context.Context, e *td.Error) {
	f.Update(ctx, e)
}

// Dropped returns how many events were discarded because the queue was full.
func (f *Forwarder) Dropped() int64 { return f.dropped.Load() }

func (f *Forwarder) enqueue(ctx context.Context, typ string, raw []byte) {
	select {
	case f.queue <- raw:
	default:
		f.dropped.Add(1)
		f.log.WarnContext(ctx, "broker.forward.dropped", slog.String("type", typ))
	}
}

// Run publishes queued events until ctx is done. Publish failures are logged
// and the event is discarded.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw := <-f.queue:
			if _, err := f.broker.Publish(ctx, f.namespace, raw); err != nil {
				f.log.ErrorContext(ctx, "broker.forward.publish_fail", slog.String("namespace", f.namespace), slog.String("err", err.Error()))
			}
		}
	}
}
