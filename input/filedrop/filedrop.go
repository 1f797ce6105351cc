// Package filedrop answers authorization prompts from files dropped into a
// directory, for headless deployments where no terminal is attached.
//
// For a request of kind K the provider writes the prompt to "K.prompt" and
// waits until a non-empty file named "K" appears. The answer file and prompt
// file are removed once consumed, so a second prompt of the same kind (for
// example after a wrong code) waits for a fresh answer.
package filedrop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/tdsession-go/input"
)

const promptSuffix = ".prompt"

// Provider is an input.Provider reading answers from a directory.
type Provider struct {
	dir string
	log *slog.Logger
}

// Option customizes a Provider.
type Option func(*Provider)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}

// New constructs a Provider over dir, creating it if needed.
func New(dir string, opts ...Option) (*Provider, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("filedrop: create dir: %w", err)
	}
	p := &Provider{dir: dir, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *Provider) Request(ctx context.Context, req input.Request) (string, error) {
	name := string(req.Kind)
	answerPath := filepath.Join(p.dir, name)
	promptPath := answerPath + promptSuffix

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("filedrop: watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(p.dir); err != nil {
		return "", fmt.Errorf("filedrop: watch %s: %w", p.dir, err)
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = input.DefaultPrompt(req.Kind)
	}
	if req.Hint != "" {
		prompt += " (hint: " + req.Hint + ")"
	}
	if err := os.WriteFile(promptPath, []byte(prompt+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("filedrop: write prompt: %w", err)
	}
	defer os.Remove(promptPath)

	p.log.InfoContext(ctx, "filedrop.awaiting", slog.String("kind", name), slog.String("path", answerPath))

	// The answer may already be there; the watcher is armed first so a file
	// created in between is still observed.
	if v, ok, err := consume(answerPath); err != nil || ok {
		return v, err
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return "", errors.New("filedrop: watcher closed")
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if v, ok, err := consume(answerPath); err != nil || ok {
				return v, err
			}
		case err, ok := <-w.Errors:
			if !ok {
				return "", errors.New("filedrop: watcher closed")
			}
			return "", fmt.Errorf("filedrop: watch: %w", err)
		}
	}
}

// consume reads and removes the answer file. Missing or still-empty files
// report ok=false.
func consume(path string) (string, bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("filedrop: read answer: %w", err)
	}
	v := strings.TrimSpace(string(b))
	if v == "" {
		return "", false, nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", false, fmt.Errorf("filedrop: remove answer: %w", err)
	}
	return v, true, nil
}

var _ input.Provider = (*Provider)(nil)
