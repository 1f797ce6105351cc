// Package memory provides an in-process broker.Broker. It is suitable for
// single-node deployments and tests.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/tdsession-go/broker"
)

// Broker keeps every namespace's messages in memory.
type Broker struct {
	mu           sync.Mutex
	namespaces   map[string]*namespace
	eventCounter atomic.Int64
}

type namespace struct {
	messages []broker.MessageEnvelope
	// wake is closed and replaced on every publish and on cleanup.
	wake chan struct{}
}

// New creates an empty Broker.
func New() *Broker {
	return &Broker{namespaces: make(map[string]*namespace)}
}

func (b *Broker) namespaceLocked(name string) *namespace {
	ns, ok := b.namespaces[name]
	if !ok {
		ns = &namespace{wake: make(chan struct{})}
		b.namespaces[name] = ns
	}
	return ns
}

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := strconv.FormatInt(b.eventCounter.Add(1), 10)

	b.mu.Lock()
	defer b.mu.Unlock()
	ns := b.namespaceLocked(name)
	ns.messages = append(ns.messages, broker.MessageEnvelope{ID: id, Data: append([]byte(nil), data...)})
	close(ns.wake)
	ns.wake = make(chan struct{})
	return id, nil
}

// Subscribe implements broker.Broker.
func (b *Broker) Subscribe(ctx context.Context, name string, lastEventID string, handler broker.MessageHandler) error {
	b.mu.Lock()
	ns := b.namespaceLocked(name)
	next := len(ns.messages)
	if lastEventID != "" {
		next = -1
		for i, msg := range ns.messages {
			if msg.ID == lastEventID {
				next = i + 1
				break
			}
		}
	}
	b.mu.Unlock()
	if next < 0 {
		return fmt.Errorf("%w: %s", broker.ErrUnknownEventID, lastEventID)
	}

	for {
		b.mu.Lock()
		cur := b.namespaceLocked(name)
		if cur != ns {
			// The namespace was cleaned up; continue with the fresh one.
			ns, next = cur, 0
		}
		if next > len(ns.messages) {
			next = len(ns.messages)
		}
		batch := append([]broker.MessageEnvelope(nil), ns.messages[next:]...)
		wake := ns.wake
		b.mu.Unlock()

		for _, msg := range batch {
			if err := handler(ctx, msg); err != nil {
				return err
			}
			next++
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// Cleanup implements broker.Broker.
func (b *Broker) Cleanup(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ns, ok := b.namespaces[name]; ok {
		delete(b.namespaces, name)
		close(ns.wake)
	}
	return nil
}

var _ broker.Broker = (*Broker)(nil)
