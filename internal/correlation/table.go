// Package correlation lets many concurrent request/response calls share a
// single asynchronous engine inbox.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/tdsession-go/internal/logctx"
	"github.com/ggoodman/tdsession-go/td"
	"github.com/google/uuid"
)

// DefaultTimeout bounds how long a query waits for its response.
const DefaultTimeout = 20 * time.Second

var (
	// ErrClosed indicates the table is closed.
	ErrClosed = errors.New("correlation table closed")
	// ErrQueryTimeout indicates no response arrived before the query's deadline.
	ErrQueryTimeout = errors.New("query timed out")
)

// SendFunc hands an encoded request to the engine. It must not block on the
// response.
type SendFunc func(ctx context.Context, req td.Request) error

// IDFunc generates correlation tags.
type IDFunc func() td.Extra

type outcome struct {
	obj td.Object
	err error
}

type pendingQuery struct {
	ch    chan outcome
	timer *time.Timer
}

// Table tracks outstanding queries by correlation tag. Submit may be called
// from any goroutine; Resolve and Reject are typically called by a single
// receive loop but are safe for concurrent use.
type Table struct {
	send    SendFunc
	timeout time.Duration
	newID   IDFunc
	log     *slog.Logger

	mu      sync.Mutex
	pending map[td.Extra]*pendingQuery

	closed   atomic.Bool
	closeErr error
}

// Option configures a Table.
type Option func(*Table)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(t *Table) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithIDFunc overrides the tag generator.
func WithIDFunc(fn IDFunc) Option {
	return func(t *Table) {
		if fn != nil {
			t.newID = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.log = l
		}
	}
}

// New constructs a Table that emits requests through send.
func New(send SendFunc, opts ...Option) *Table {
	t := &Table{
		send:    send,
		timeout: DefaultTimeout,
		newID:   func() td.Extra { return td.Extra(uuid.NewString()) },
		log:     slog.Default(),
		pending: make(map[td.Extra]*pendingQuery),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Submit tags body with a fresh correlation id, sends it and waits for the
// matching Resolve or Reject, the deadline, or ctx cancellation, whichever
// comes first. The deadline timer is armed before the send is attempted.
func (t *Table) Submit(ctx context.Context, body td.Object) (td.Object, error) {
	if t.closed.Load() {
		return nil, t.closedErr()
	}

	pq := &pendingQuery{ch: make(chan outcome, 1)}

	t.mu.Lock()
	if t.closed.Load() {
		err := t.closeErr
		t.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return nil, err
	}
	id := t.newID()
	for _, taken := t.pending[id]; taken; _, taken = t.pending[id] {
		id = t.newID()
	}
	t.pending[id] = pq
	pq.timer = time.AfterFunc(t.timeout, func() { t.expire(id, pq) })
	t.mu.Unlock()

	ctx = logctx.WithQueryData(ctx, &logctx.QueryData{Extra: string(id), Type: body.Type()})

	if err := t.send(ctx, td.Request{Extra: id, Body: body}); err != nil {
		t.remove(id, pq)
		t.log.DebugContext(ctx, "correlation.query.send_fail", slog.String("err", err.Error()))
		return nil, err
	}

	select {
	case out := <-pq.ch:
		return out.obj, out.err
	case <-ctx.Done():
		t.remove(id, pq)
		return nil, ctx.Err()
	}
}

// Resolve completes the query tagged id with obj. It reports false when no
// such query is pending, which is expected for responses that lost the race
// against a timeout.
func (t *Table) Resolve(id td.Extra, obj td.Object) bool {
	return t.complete(id, outcome{obj: obj})
}

// Reject fails the query tagged id with err. It reports false when no such
// query is pending.
func (t *Table) Reject(id td.Extra, err error) bool {
	return t.complete(id, outcome{err: err})
}

// Pending reports whether a query tagged id is outstanding.
func (t *Table) Pending(id td.Extra) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[id]
	return ok
}

// Len returns the number of outstanding queries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close fails every outstanding query with err (ErrClosed when nil) and
// rejects future submissions.
func (t *Table) Close(err error) {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeErr = err
	for id, pq := range t.pending {
		delete(t.pending, id)
		pq.timer.Stop()
		pq.ch <- outcome{err: err}
	}
}

func (t *Table) complete(id td.Extra, out outcome) bool {
	if id == "" {
		return false
	}
	t.mu.Lock()
	pq, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	pq.timer.Stop()
	pq.ch <- out
	return true
}

func (t *Table) expire(id td.Extra, pq *pendingQuery) {
	t.mu.Lock()
	cur, ok := t.pending[id]
	if !ok || cur != pq {
		t.mu.Unlock()
		return
	}
	delete(t.pending, id)
	t.mu.Unlock()

	t.log.Debug("correlation.query.timeout", slog.String("extra", string(id)), slog.Duration("after", t.timeout))
	pq.ch <- outcome{err: fmt.Errorf("%w after %s", ErrQueryTimeout, t.timeout)}
}

func (t *Table) remove(id td.Extra, pq *pendingQuery) {
	t.mu.Lock()
	if cur, ok := t.pending[id]; ok && cur == pq {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	pq.timer.Stop()
}

func (t *Table) closedErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closeErr != nil {
		return t.closeErr
	}
	return ErrClosed
}
