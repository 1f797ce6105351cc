package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/tdsession-go/auth"
	"github.com/ggoodman/tdsession-go/engine/enginetest"
	"github.com/ggoodman/tdsession-go/input"
	"github.com/ggoodman/tdsession-go/td"
)

type scriptedInput struct {
	mu     sync.Mutex
	values map[input.Kind]string
	asked  []input.Kind
}

func (p *scriptedInput) Request(_ context.Context, req input.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, req.Kind)
	v, ok := p.values[req.Kind]
	if !ok {
		return "", input.ErrNoInput
	}
	return v, nil
}

func (p *scriptedInput) count(k input.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, a := range p.asked {
		if a == k {
			n++
		}
	}
	return n
}

func TestAuth_UserFlowWithInvalidCode(t *testing.T) {
	t.Parallel()
	in := &scriptedInput{values: map[input.Kind]string{
		input.KindCredentialType:  input.CredentialUser,
		input.KindCredentialValue: "+15550100",
		input.KindCode:            "00000",
		input.KindCodeIncorrect:   "12345",
	}}
	fake := enginetest.New()
	settle := 80 * time.Millisecond
	s := newTestSession(t, fake, WithInputProvider(in), WithSettleDelay(settle))
	h := s.handle

	fake.Push(h, authState(td.AuthStateWaitParameters))
	waitFor(t, "parameters", func() bool { return len(fake.SentOfType(h, "setTdlibParameters")) == 1 })

	fake.Push(h, authState(td.AuthStateWaitEncryptionKey))
	waitFor(t, "encryption key", func() bool { return len(fake.SentOfType(h, "checkDatabaseEncryptionKey")) == 1 })

	fake.Push(h, authState(td.AuthStateWaitPhoneNumber))
	waitFor(t, "phone number", func() bool { return len(fake.SentOfType(h, "setAuthenticationPhoneNumber")) == 1 })

	fake.Push(h, authState(td.AuthStateWaitCode))
	waitFor(t, "first code", func() bool { return len(fake.SentOfType(h, "checkAuthenticationCode")) == 1 })

	for attempt := 1; attempt <= 2; attempt++ {
		fake.Push(h, td.Object{"@type": td.TypeError, "code": 400, "message": td.ErrMsgPhoneCodeInvalid})
		waitFor(t, "resubmitted code", func() bool { return len(fake.SentOfType(h, "checkAuthenticationCode")) == 1+attempt })
		if got := in.count(input.KindCodeIncorrect); got != attempt {
			t.Fatalf("attempt %d: re-prompted %d times", attempt, got)
		}
		if s.Phase() != auth.PhaseAwaitingPhoneVerificationCode {
			t.Fatalf("phase = %s", s.Phase())
		}
		select {
		case <-s.Ready():
			t.Fatal("ready before the engine reported it")
		default:
		}
	}

	sent := fake.SentOfType(h, "checkAuthenticationCode")
	if sent[len(sent)-1].String("code") != "12345" {
		t.Fatalf("last code = %v", sent[len(sent)-1])
	}
	if sent[0]["@extra"] != nil {
		t.Fatal("auth requests are sent uncorrelated")
	}

	start := time.Now()
	fake.Push(h, authState(td.AuthStateReady))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if elapsed := time.Since(start); elapsed < settle {
		t.Fatalf("ready after %s, before the %s settle delay", elapsed, settle)
	}
	if s.Phase() != auth.PhaseReady {
		t.Fatalf("phase = %s", s.Phase())
	}
	if in.count(input.KindCode) != 1 {
		t.Fatalf("initial code prompted %d times", in.count(input.KindCode))
	}
}

func TestAuth_PasswordFlow(t *testing.T) {
	t.Parallel()
	in := &scriptedInput{values: map[input.Kind]string{
		input.KindPassword:          "hunter1",
		input.KindPasswordIncorrect: "hunter2",
	}}
	fake := enginetest.New()
	s := newTestSession(t, fake, WithInputProvider(in))
	h := s.handle

	fake.Push(h, td.Object{"@type": td.TypeUpdateAuthorizationState, "authorization_state": td.Object{
		"@type":         td.AuthStateWaitPassword,
		"password_hint": "usual",
	}})
	waitFor(t, "password", func() bool { return len(fake.SentOfType(h, "checkAuthenticationPassword")) == 1 })
	if s.PasswordHint() != "usual" {
		t.Fatalf("hint = %q", s.PasswordHint())
	}

	fake.Push(h, td.Object{"@type": td.TypeError, "code": 400, "message": td.ErrMsgPasswordHashInvalid})
	waitFor(t, "password retry", func() bool { return len(fake.SentOfType(h, "checkAuthenticationPassword")) == 2 })

	fake.Push(h, authState(td.AuthStateReady))
	if err := s.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if s.PasswordHint() != "" {
		t.Fatalf("hint not cleared: %q", s.PasswordHint())
	}
}

func TestAuth_InvalidBotTokenFailsReadiness(t *testing.T) {
	t.Parallel()
	in := input.Static{
		input.KindCredentialType:  input.CredentialBot,
		input.KindCredentialValue: "1:bad",
	}
	fake := enginetest.New()
	s := newTestSession(t, fake, WithInputProvider(in))
	h := s.handle

	fake.Push(h, authState(td.AuthStateWaitPhoneNumber))
	waitFor(t, "bot token", func() bool { return len(fake.SentOfType(h, "checkAuthenticationBotToken")) == 1 })
	if s.Phase() != auth.PhaseAwaitingBotToken {
		t.Fatalf("phase = %s", s.Phase())
	}

	fake.Push(h, td.Object{"@type": td.TypeError, "code": 401, "message": td.ErrMsgAccessTokenInvalid})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitReady(ctx); !errors.Is(err, ErrInvalidBotToken) {
		t.Fatalf("expected ErrInvalidBotToken, got %v", err)
	}
	if s.Phase() != auth.PhaseFailed {
		t.Fatalf("phase = %s", s.Phase())
	}
}

func TestAuth_UnsupportedCredentialFailsReadiness(t *testing.T) {
	t.Parallel()
	fake := enginetest.New()
	s := newTestSession(t, fake, WithInputProvider(input.Static{
		input.KindCredentialType:  "email",
		input.KindCredentialValue: "x@example.com",
	}))

	fake.Push(s.handle, authState(td.AuthStateWaitPhoneNumber))
	if err := s.WaitReady(context.Background()); !errors.Is(err, ErrUnsupportedCredential) {
		t.Fatalf("expected ErrUnsupportedCredential, got %v", err)
	}
}

func TestAuth_InputProviderReplacedAtRuntime(t *testing.T) {
	t.Parallel()
	fake := enginetest.New()
	s := newTestSession(t, fake)
	if err := s.RegisterCallback(CallbackInput, func(_ context.Context, req input.Request) (string, error) {
		return "Grace", nil
	}); err != nil {
		t.Fatal(err)
	}

	fake.Push(s.handle, authState(td.AuthStateWaitRegistration))
	waitFor(t, "registration", func() bool { return len(fake.SentOfType(s.handle, "registerUser")) == 1 })
	if got := fake.SentOfType(s.handle, "registerUser")[0].String("first_name"); got != "Grace" {
		t.Fatalf("first_name = %q", got)
	}
}

type inputFunc func(ctx context.Context) (string, error)

func (f inputFunc) Request(ctx context.Context, _ input.Request) (string, error) { return f(ctx) }
