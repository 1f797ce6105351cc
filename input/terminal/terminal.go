// Package terminal prompts for authorization input on the controlling
// terminal using huh forms. Codes and passwords are masked.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/ggoodman/tdsession-go/input"
)

// ErrAborted is returned when the user aborts a prompt.
var ErrAborted = errors.New("terminal: input aborted")

// Provider is an input.Provider backed by interactive terminal forms. Prompts
// from concurrent sessions are serialized.
type Provider struct {
	mu         sync.Mutex
	label      string
	accessible bool
	in         io.Reader
	out        io.Writer
}

// Option customizes a Provider.
type Option func(*Provider)

// WithLabel prefixes every prompt, e.g. with an account name when several
// sessions share one terminal.
func WithLabel(label string) Option { return func(p *Provider) { p.label = label } }

// WithAccessible switches to huh's line-based accessible mode, which works on
// dumb terminals and pipes.
func WithAccessible(on bool) Option { return func(p *Provider) { p.accessible = on } }

// WithIO overrides the input and output streams.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(p *Provider) {
		if r != nil {
			p.in = r
		}
		if w != nil {
			p.out = w
		}
	}
}

// New constructs a terminal Provider.
func New(opts ...Option) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Provider) Request(ctx context.Context, req input.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var value string
	var field huh.Field
	if req.Kind == input.KindCredentialType {
		value = input.CredentialUser
		field = huh.NewSelect[string]().
			Title(p.title(req)).
			Options(
				huh.NewOption("User account", input.CredentialUser),
				huh.NewOption("Bot", input.CredentialBot),
			).
			Value(&value)
	} else {
		in := huh.NewInput().
			Title(p.title(req)).
			Value(&value).
			Validate(nonEmpty)
		if req.Kind.Secret() {
			in = in.EchoMode(huh.EchoModePassword)
		}
		field = in
	}

	form := huh.NewForm(huh.NewGroup(field)).WithAccessible(p.accessible)
	if p.in != nil {
		form = form.WithInput(p.in)
	}
	if p.out != nil {
		form = form.WithOutput(p.out)
	}
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", ErrAborted
		}
		return "", fmt.Errorf("terminal: prompt %s: %w", req.Kind, err)
	}
	return strings.TrimSpace(value), nil
}

func (p *Provider) title(req input.Request) string {
	prompt := req.Prompt
	if prompt == "" {
		prompt = input.DefaultPrompt(req.Kind)
	}
	if req.Hint != "" {
		prompt = fmt.Sprintf("%s (%s)", prompt, req.Hint)
	}
	if p.label != "" {
		prompt = fmt.Sprintf("[%s] %s", p.label, prompt)
	}
	return prompt
}

func nonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("value required")
	}
	return nil
}

var _ input.Provider = (*Provider)(nil)
