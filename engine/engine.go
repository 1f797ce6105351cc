// Package engine defines the contract of the external stateful messaging
// engine that a session drives. The engine owns protocol work, network I/O,
// cryptography and local storage; this module only talks to it through the
// five primitives below.
//
// Implementations
//
//	enginetest : scriptable in-memory fake used by tests
//	tdjson     : cgo binding to libtdjson (build tag "tdjson")
package engine

import (
	"errors"
	"time"
)

// Handle identifies one engine instance. Handles are opaque; zero is never a
// valid handle.
type Handle uintptr

var (
	// ErrCreate indicates the engine could not allocate a new instance.
	ErrCreate = errors.New("engine: create failed")
	// ErrUnknownHandle indicates the handle was never created or was destroyed.
	ErrUnknownHandle = errors.New("engine: unknown handle")
)

// Engine is the adapter over the external engine. Send may be called
// concurrently with itself and with Receive. Receive must only be called by a
// single goroutine per handle. Destroy must not race with an in-flight Receive
// on the same handle.
type Engine interface {
	// Create allocates a new engine instance.
	Create() (Handle, error)
	// Send hands a JSON request to the engine without waiting for a reply.
	Send(h Handle, data []byte) error
	// Receive waits up to timeout for the next JSON event. A nil slice with a
	// nil error means nothing arrived within the window.
	Receive(h Handle, timeout time.Duration) ([]byte, error)
	// Execute performs a synchronous local-only request. A nil result means
	// the engine produced no output.
	Execute(h Handle, data []byte) ([]byte, error)
	// Destroy releases the instance. Calling it twice is a no-op.
	Destroy(h Handle)
}
