//go:build tdjson

// Package tdjson binds engine.Engine to libtdjson through cgo. Build with
// -tags tdjson and make the library and its headers visible to the C
// toolchain, for example through CGO_CFLAGS and CGO_LDFLAGS.
package tdjson

/*
#cgo LDFLAGS: -ltdjson
#include <stdlib.h>
#include <td/telegram/td_json_client.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/ggoodman/tdsession-go/engine"
)

// Engine is the libtdjson adapter. The zero value is not usable; call New.
type Engine struct {
	mu      sync.Mutex
	clients map[engine.Handle]unsafe.Pointer
	next    engine.Handle
}

// Option configures the adapter.
type Option func(*options)

type options struct {
	verbosity int
}

// WithVerbosity sets the engine's internal log verbosity. The setting is
// process wide.
func WithVerbosity(level int) Option {
	return func(o *options) {
		if level >= 0 {
			o.verbosity = level
		}
	}
}

// New constructs the adapter and applies process-wide engine settings.
func New(opts ...Option) *Engine {
	o := options{verbosity: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	execute(nil, fmt.Sprintf(`{"@type":"setLogVerbosityLevel","new_verbosity_level":%d}`, o.verbosity))
	return &Engine{clients: make(map[engine.Handle]unsafe.Pointer)}
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) Create() (engine.Handle, error) {
	c := C.td_json_client_create()
	if c == nil {
		return 0, engine.ErrCreate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.clients[e.next] = c
	return e.next, nil
}

func (e *Engine) lookup(h engine.Handle) (unsafe.Pointer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.clients[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", engine.ErrUnknownHandle, h)
	}
	return c, nil
}

func (e *Engine) Send(h engine.Handle, data []byte) error {
	c, err := e.lookup(h)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("tdjson: empty request")
	}
	req := C.CString(string(data))
	defer C.free(unsafe.Pointer(req))
	C.td_json_client_send(c, req)
	return nil
}

func (e *Engine) Receive(h engine.Handle, timeout time.Duration) ([]byte, error) {
	c, err := e.lookup(h)
	if err != nil {
		return nil, err
	}
	// The returned buffer is owned by the library and only valid until the
	// next receive on this client.
	res := C.td_json_client_receive(c, C.double(timeout.Seconds()))
	if res == nil {
		return nil, nil
	}
	return []byte(C.GoString(res)), nil
}

func (e *Engine) Execute(h engine.Handle, data []byte) ([]byte, error) {
	c, err := e.lookup(h)
	if err != nil {
		return nil, err
	}
	return execute(c, string(data)), nil
}

func (e *Engine) Destroy(h engine.Handle) {
	e.mu.Lock()
	c, ok := e.clients[h]
	delete(e.clients, h)
	e.mu.Unlock()
	if ok {
		C.td_json_client_destroy(c)
	}
}

func execute(c unsafe.Pointer, data string) []byte {
	req := C.CString(data)
	defer C.free(unsafe.Pointer(req))
	res := C.td_json_client_execute(c, req)
	if res == nil {
		return nil
	}
	return []byte(C.GoString(res))
}
