// Package broker fans session events out to other processes. A Forwarder
// plugs into a session's update and error callbacks and publishes the raw
// engine payloads into a namespace; consumers subscribe to that namespace
// and may resume from the last event they saw.
package broker

import (
	"context"
	"errors"
)

// ErrUnknownEventID is returned by Subscribe when lastEventID is not known.
var ErrUnknownEventID = errors.New("broker: unknown event id")

// Broker provides namespace-isolated, ordered delivery of published payloads.
type Broker interface {
	// Publish appends data to namespace and returns the generated event ID.
	Publish(ctx context.Context, namespace string, data []byte) (eventID string, err error)

	// Subscribe calls handler for every message in namespace, starting after
	// lastEventID or, when it is empty, with the next published message. It
	// blocks until ctx is done or handler returns an error, and returns that
	// error.
	Subscribe(ctx context.Context, namespace string, lastEventID string, handler MessageHandler) error

	// Cleanup removes every message stored for namespace.
	Cleanup(ctx context.Context, namespace string) error
}

// MessageHandler consumes one delivered message.
type MessageHandler func(ctx context.Context, envelope MessageEnvelope) error

// MessageEnvelope is a published payload with its ordering ID.
type MessageEnvelope struct {
	// ID increases monotonically within a namespace.
	ID string `json:"id"`
	// Data is the raw engine event.
	Data []byte `json:"data"`
}
