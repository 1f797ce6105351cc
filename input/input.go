// Package input defines how a session obtains credentials from the outside
// world while it authorizes: credential kind, phone number or bot token,
// verification code, registration name and cloud password.
//
// Providers may block indefinitely (for example while a human types a code);
// the session's receive loop is paused until they return.
package input

import (
	"context"
	"errors"
	"fmt"
)

// Kind names the piece of input being requested.
type Kind string

const (
	KindCredentialType    Kind = "credential_type"
	KindCredentialValue   Kind = "credential_value"
	KindCode              Kind = "code"
	KindCodeIncorrect     Kind = "code_incorrect"
	KindFirstName         Kind = "first_name"
	KindLastName          Kind = "last_name"
	KindPassword          Kind = "password"
	KindPasswordIncorrect Kind = "password_incorrect"
)

// Secret reports whether values of this kind should not be echoed.
func (k Kind) Secret() bool {
	switch k {
	case KindCode, KindCodeIncorrect, KindPassword, KindPasswordIncorrect:
		return true
	}
	return false
}

// Credential kinds accepted for KindCredentialType.
const (
	CredentialUser = "user"
	CredentialBot  = "bot"
)

// ErrNoInput is returned by providers that have no answer for a request.
var ErrNoInput = errors.New("input: no value available")

// Request describes one prompt.
type Request struct {
	Kind   Kind
	Prompt string
	// Hint is the cloud password hint, set for password prompts.
	Hint string
}

// Provider answers input requests.
type Provider interface {
	Request(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to Provider.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Request(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// Static answers from a fixed table and returns ErrNoInput for missing kinds.
type Static map[Kind]string

func (s Static) Request(ctx context.Context, req Request) (string, error) {
	if v, ok := s[req.Kind]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoInput, req.Kind)
}

// Chain asks each provider in order and returns the first answer. Providers
// that return ErrNoInput are skipped; any other error stops the chain.
type Chain []Provider

func (c Chain) Request(ctx context.Context, req Request) (string, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		v, err := p.Request(ctx, req)
		if errors.Is(err, ErrNoInput) {
			continue
		}
		return v, err
	}
	return "", fmt.Errorf("%w: %s", ErrNoInput, req.Kind)
}

// DefaultPrompt returns the human-readable prompt for k.
func DefaultPrompt(k Kind) string {
	switch k {
	case KindCredentialType:
		return "Sign in as (user/bot)"
	case KindCredentialValue:
		return "Phone number or bot token"
	case KindCode:
		return "Authorization code"
	case KindCodeIncorrect:
		return "Wrong authorization code, please re-enter"
	case KindFirstName:
		return "First name"
	case KindLastName:
		return "Last name"
	case KindPassword:
		return "Password"
	case KindPasswordIncorrect:
		return "Wrong password, please re-enter"
	}
	return string(k)
}
