package enginetest

import (
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/tdsession-go/engine"
	"github.com/ggoodman/tdsession-go/td"
)

func TestFake_Conformance(t *testing.T) {
	RunEngineTests(t, func(t *testing.T) engine.Engine { return New() })
}

func TestFake_EchoPreservesExtra(t *testing.T) {
	t.Parallel()

	f := New(WithResponder(Echo))
	h, err := f.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, _ := td.Request{Extra: "e-1", Body: td.Object{"@type": "getMe"}}.Encode()
	if err := f.Send(h, b); err != nil {
		t.Fatalf("send: %v", err)
	}
	out, err := f.Receive(h, time.Second)
	if err != nil || out == nil {
		t.Fatalf("receive: %v %s", err, out)
	}
	ev, err := td.Decode(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type() != td.TypeOk || ev.Extra() != "e-1" {
		t.Fatalf("unexpected echo: %s", out)
	}
	if got := f.SentOfType(h, "getMe"); len(got) != 1 {
		t.Fatalf("expected 1 recorded getMe, got %d", len(got))
	}
}

func TestFake_DestroyedHandleRejectsIO(t *testing.T) {
	t.Parallel()

	f := New()
	h, _ := f.Create()
	f.Destroy(h)

	if err := f.Send(h, []byte(`{"@type":"getMe"}`)); !errors.Is(err, engine.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle from Send, got %v", err)
	}
	if _, err := f.Receive(h, time.Millisecond); !errors.Is(err, engine.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle from Receive, got %v", err)
	}
	if !f.Destroyed(h) {
		t.Fatalf("expected handle to be reported destroyed")
	}
}
