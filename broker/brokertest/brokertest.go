// Package brokertest is a conformance suite for broker.Broker
// implementations.
package brokertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/tdsession-go/broker"
	"github.com/ggoodman/tdsession-go/td"
)

// BrokerFactory creates a fresh broker for one subtest.
type BrokerFactory func(t *testing.T) broker.Broker

// RunBrokerTests runs the complete broker test suite against factory.
func RunBrokerTests(t *testing.T, factory BrokerFactory) {
	t.Run("PublishAndSubscribeFromLatest", func(t *testing.T) {
		testPublishAndSubscribeFromLatest(t, factory)
	})
	t.Run("ResumeFromLastEventID", func(t *testing.T) {
		testResumeFromLastEventID(t, factory)
	})
	t.Run("MultipleSubscribers", func(t *testing.T) {
		testMultipleSubscribers(t, factory)
	})
	t.Run("NamespaceIsolation", func(t *testing.T) {
		testNamespaceIsolation(t, factory)
	})
	t.Run("ContextCancellation", func(t *testing.T) {
		testContextCancellation(t, factory)
	})
	t.Run("HandlerErrorStopsSubscription", func(t *testing.T) {
		testHandlerErrorStopsSubscription(t, factory)
	})
	t.Run("Cleanup", func(t *testing.T) {
		testCleanup(t, factory)
	})
	t.Run("ResumeFromUnknownEventID", func(t *testing.T) {
		testResumeFromUnknownEventID(t, factory)
	})
}

var namespaces = []string{
	"bt-latest", "bt-resume", "bt-multi", "bt-iso-a", "bt-iso-b",
	"bt-cancel", "bt-handler-err", "bt-cleanup", "bt-unknown",
}

func event(n int) []byte {
	b, err := td.Request{Body: td.Object{"@type": "updateNewMessage", "n": n}}.Encode()
	if err != nil {
		panic(err)
	}
	return b
}

type collector struct {
	mu   sync.Mutex
	msgs []broker.MessageEnvelope
	got  chan struct{}
}

func newCollector() *collector { return &collector{got: make(chan struct{}, 64)} }

func (c *collector) handle(_ context.Context, env broker.MessageEnvelope) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, env)
	c.mu.Unlock()
	c.got <- struct{}{}
	return nil
}

func (c *collector) wait(t *testing.T, n int) []broker.MessageEnvelope {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(3 * time.Second):
			t.Fatalf("received %d of %d messages", i, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]broker.MessageEnvelope(nil), c.msgs...)
}

func subscribe(ctx context.Context, b broker.Broker, ns, last string, h broker.MessageHandler) <-chan error {
	done := make(chan error, 1)
	go func() { done <- b.Subscribe(ctx, ns, last, h) }()
	return done
}

func testPublishAndSubscribeFromLatest(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := b.Publish(ctx, "bt-latest", event(0)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	c := newCollector()
	done := subscribe(ctx, b, "bt-latest", "", c.handle)
	time.Sleep(100 * time.Millisecond)

	id, err := b.Publish(ctx, "bt-latest", event(1))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty event ID")
	}

	msgs := c.wait(t, 1)
	if msgs[0].ID != id {
		t.Fatalf("got event %s, want %s (earlier messages must not be replayed)", msgs[0].ID, id)
	}
	ev, err := td.Decode(msgs[0].Data)
	if err != nil || ev.Type() != "updateNewMessage" {
		t.Fatalf("payload = %s (%v)", msgs[0].Data, err)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Subscribe returned %v", err)
	}
}

func testResumeFromLastEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := b.Publish(ctx, "bt-resume", event(i))
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
		ids = append(ids, id)
	}

	c := newCollector()
	done := subscribe(ctx, b, "bt-resume", ids[0], c.handle)
	msgs := c.wait(t, 2)
	if msgs[0].ID != ids[1] || msgs[1].ID != ids[2] {
		t.Fatalf("resumed with %v, want %v", []string{msgs[0].ID, msgs[1].ID}, ids[1:])
	}
	cancel()
	<-done
}

func testMultipleSubscribers(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c1, c2 := newCollector(), newCollector()
	d1 := subscribe(ctx, b, "bt-multi", "", c1.handle)
	d2 := subscribe(ctx, b, "bt-multi", "", c2.handle)
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if _, err := b.Publish(ctx, "bt-multi", event(i)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	m1, m2 := c1.wait(t, 3), c2.wait(t, 3)
	for i := range m1 {
		if m1[i].ID != m2[i].ID {
			t.Fatalf("subscribers disagree at %d: %s vs %s", i, m1[i].ID, m2[i].ID)
		}
	}
	cancel()
	<-d1
	<-d2
}

func testNamespaceIsolation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ca, cb := newCollector(), newCollector()
	da := subscribe(ctx, b, "bt-iso-a", "", ca.handle)
	db := subscribe(ctx, b, "bt-iso-b", "", cb.handle)
	time.Sleep(100 * time.Millisecond)

	idA, err := b.Publish(ctx, "bt-iso-a", event(1))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	idB, err := b.Publish(ctx, "bt-iso-b", event(2))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := ca.wait(t, 1); len(got) != 1 || got[0].ID != idA {
		t.Fatalf("namespace a received %v", got)
	}
	if got := cb.wait(t, 1); len(got) != 1 || got[0].ID != idB {
		t.Fatalf("namespace b received %v", got)
	}
	cancel()
	<-da
	<-db
}

func testContextCancellation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := subscribe(ctx, b, "bt-cancel", "", func(context.Context, broker.MessageEnvelope) error { return nil })
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected context.DeadlineExceeded, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscription ignored its context")
	}
}

func testHandlerErrorStopsSubscription(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	want := fmt.Errorf("handler error")
	done := subscribe(ctx, b, "bt-handler-err", "", func(context.Context, broker.MessageEnvelope) error { return want })
	time.Sleep(100 * time.Millisecond)
	if _, err := b.Publish(ctx, "bt-handler-err", event(1)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, want) {
			t.Fatalf("expected handler error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscription did not stop")
	}
}

func testCleanup(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := b.Publish(ctx, "bt-cleanup", event(1)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Cleanup(ctx, "bt-cleanup"); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	subCtx, subCancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer subCancel()
	err := b.Subscribe(subCtx, "bt-cleanup", "", func(context.Context, broker.MessageEnvelope) error {
		t.Error("no messages expected after cleanup")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline after cleanup, got %v", err)
	}
}

func testResumeFromUnknownEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := b.Subscribe(ctx, "bt-unknown", "not-an-event-id", func(context.Context, broker.MessageEnvelope) error { return nil })
	if !errors.Is(err, broker.ErrUnknownEventID) {
		t.Fatalf("expected ErrUnknownEventID, got %v", err)
	}
}

// cleanupBroker is best effort; failures are logged.
func cleanupBroker(t *testing.T, b broker.Broker) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, ns := range namespaces {
		if err := b.Cleanup(ctx, ns); err != nil {
			t.Logf("cleanup %s: %v", ns, err)
		}
	}
	if closer, ok := b.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			t.Logf("close broker: %v", err)
		}
	}
}
