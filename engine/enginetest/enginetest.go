package enginetest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ggoodman/tdsession-go/engine"
)

// EngineFactory creates a new engine instance for testing.
type EngineFactory func(t *testing.T) engine.Engine

// RunEngineTests runs the adapter conformance suite against the provided factory.
// It only exercises guarantees every adapter must provide, so it is safe to run
// against a real engine binary.
func RunEngineTests(t *testing.T, factory EngineFactory) {
	t.Run("Create_ReturnsDistinctHandles", func(t *testing.T) { testCreateDistinct(t, factory) })
	t.Run("Receive_HonoursTimeout", func(t *testing.T) { testReceiveTimeout(t, factory) })
	t.Run("Destroy_IsIdempotent", func(t *testing.T) { testDestroyIdempotent(t, factory) })
}

func testCreateDistinct(t *testing.T, factory EngineFactory) {
	e := factory(t)

	h1, err := e.Create()
	if err != nil {
		t.Fatalf("create 1: %v", err)
	}
	defer e.Destroy(h1)
	h2, err := e.Create()
	if err != nil {
		t.Fatalf("create 2: %v", err)
	}
	defer e.Destroy(h2)

	if h1 == 0 || h2 == 0 {
		t.Fatalf("expected non-zero handles, got %d and %d", h1, h2)
	}
	if h1 == h2 {
		t.Fatalf("expected distinct handles, both were %d", h1)
	}
}

func testReceiveTimeout(t *testing.T, factory EngineFactory) {
	e := factory(t)

	h, err := e.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer e.Destroy(h)

	// Drain whatever the engine emits on startup, then expect an empty window.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		start := time.Now()
		b, err := e.Receive(h, 100*time.Millisecond)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if b == nil {
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Fatalf("receive overran its window: %s", elapsed)
			}
			return
		}
		var probe struct {
			Type string `json:"@type"`
		}
		if err := json.Unmarshal(b, &probe); err != nil || probe.Type == "" {
			t.Fatalf("engine emitted an untyped payload: %s", b)
		}
	}
	t.Fatalf("engine never reported an empty receive window")
}

func testDestroyIdempotent(t *testing.T, factory EngineFactory) {
	e := factory(t)

	h, err := e.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e.Destroy(h)
	e.Destroy(h)
}
