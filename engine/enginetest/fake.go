// Package enginetest provides a scriptable in-memory engine.Engine and a
// conformance suite for engine adapters.
package enginetest

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/tdsession-go/engine"
	"github.com/ggoodman/tdsession-go/td"
)

// Responder computes the events the fake engine emits after receiving req.
// Returning nil emits nothing.
type Responder func(req td.Object) []td.Object

// Executor computes the result of a synchronous Execute call.
type Executor func(req td.Object) td.Object

// Fake is an in-memory engine. Events are queued with Push or produced by the
// Responder in reaction to Send. It records every request it receives.
type Fake struct {
	mu        sync.Mutex
	instances map[engine.Handle]*instance
	next      atomic.Uintptr

	responder Responder
	executor  Executor
	createErr error

	receives atomic.Int64
}

type instance struct {
	inbox     chan []byte
	sent      [][]byte
	destroyed bool
}

// Option configures a Fake.
type Option func(*Fake)

// WithResponder installs a responder invoked for every Send.
func WithResponder(r Responder) Option { return func(f *Fake) { f.responder = r } }

// WithExecutor installs the handler for Execute.
func WithExecutor(x Executor) Option { return func(f *Fake) { f.executor = x } }

// WithCreateError makes Create fail with err.
func WithCreateError(err error) Option { return func(f *Fake) { f.createErr = err } }

// New constructs a Fake.
func New(opts ...Option) *Fake {
	f := &Fake{instances: make(map[engine.Handle]*instance)}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Echo is a Responder that answers every request with an "ok" carrying the
// request's "@extra", emulating a correlation-preserving engine.
func Echo(req td.Object) []td.Object {
	out := td.Object{"@type": td.TypeOk}
	if extra, ok := req["@extra"]; ok {
		out["@extra"] = extra
	}
	return []td.Object{out}
}

func (f *Fake) Create() (engine.Handle, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	h := engine.Handle(f.next.Add(1))
	f.mu.Lock()
	f.instances[h] = &instance{inbox: make(chan []byte, 1024)}
	f.mu.Unlock()
	return h, nil
}

func (f *Fake) Send(h engine.Handle, data []byte) error {
	f.mu.Lock()
	inst, ok := f.instances[h]
	if !ok || inst.destroyed {
		f.mu.Unlock()
		return engine.ErrUnknownHandle
	}
	inst.sent = append(inst.sent, append([]byte(nil), data...))
	responder := f.responder
	f.mu.Unlock()

	if responder == nil {
		return nil
	}
	var req td.Object
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	for _, ev := range responder(req) {
		f.Push(h, ev)
	}
	return nil
}

func (f *Fake) Receive(h engine.Handle, timeout time.Duration) ([]byte, error) {
	f.receives.Add(1)
	f.mu.Lock()
	inst, ok := f.instances[h]
	if !ok || inst.destroyed {
		f.mu.Unlock()
		return nil, engine.ErrUnknownHandle
	}
	inbox := inst.inbox
	f.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b := <-inbox:
		return b, nil
	case <-timer.C:
		return nil, nil
	}
}

func (f *Fake) Execute(h engine.Handle, data []byte) ([]byte, error) {
	f.mu.Lock()
	inst, ok := f.instances[h]
	destroyed := !ok || inst.destroyed
	executor := f.executor
	f.mu.Unlock()
	if destroyed {
		return nil, engine.ErrUnknownHandle
	}
	if executor == nil {
		return nil, nil
	}
	var req td.Object
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	res := executor(req)
	if res == nil {
		return nil, nil
	}
	return json.Marshal(res)
}

func (f *Fake) Destroy(h engine.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst, ok := f.instances[h]; ok {
		inst.destroyed = true
	}
}

// Push queues an event for the next Receive on h. Events pushed to a destroyed
// or unknown handle are dropped.
func (f *Fake) Push(h engine.Handle, ev td.Object) {
	b, err := json.Marshal(ev)
	if err != nil {
		panic(err)
	}
	f.PushRaw(h, b)
}

// PushRaw queues a raw payload for the next Receive on h.
func (f *Fake) PushRaw(h engine.Handle, b []byte) {
	f.mu.Lock()
	inst, ok := f.instances[h]
	if !ok || inst.destroyed {
		f.mu.Unlock()
		return
	}
	inbox := inst.inbox
	f.mu.Unlock()
	inbox <- b
}

// Sent returns the decoded requests sent to h, in order.
func (f *Fake) Sent(h engine.Handle) []td.Object {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[h]
	if !ok {
		return nil
	}
	out := make([]td.Object, 0, len(inst.sent))
	for _, b := range inst.sent {
		var o td.Object
		if err := json.Unmarshal(b, &o); err == nil {
			out = append(out, o)
		}
	}
	return out
}

// SentOfType returns the requests of the given "@type" sent to h.
func (f *Fake) SentOfType(h engine.Handle, typ string) []td.Object {
	var out []td.Object
	for _, o := range f.Sent(h) {
		if o.Type() == typ {
			out = append(out, o)
		}
	}
	return out
}

// Destroyed reports whether h has been destroyed.
func (f *Fake) Destroyed(h engine.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[h]
	return ok && inst.destroyed
}

// Handles returns every handle created so far.
func (f *Fake) Handles() []engine.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]engine.Handle, 0, len(f.instances))
	for h := range f.instances {
		out = append(out, h)
	}
	return out
}

// Receives returns how many Receive calls were issued, including calls on
// destroyed handles.
func (f *Fake) Receives() int64 { return f.receives.Load() }

var _ engine.Engine = (*Fake)(nil)
