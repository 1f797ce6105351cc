package tg

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ggoodman/tdsession-go/client"
	"github.com/ggoodman/tdsession-go/td"
)

var (
	// ErrEmptyText indicates a text message without text.
	ErrEmptyText = errors.New("tg: text is empty")
	// ErrNotWebP indicates a sticker that is not a WebP image.
	ErrNotWebP = errors.New("tg: sticker must be a WebP image")
	// ErrNoChatRef indicates neither a username nor a chat id was given.
	ErrNoChatRef = errors.New("tg: username or chat id required")
	// ErrNoFormattedText indicates the engine returned nothing for a text
	// formatting request.
	ErrNoFormattedText = errors.New("tg: engine returned no formatted text")
)

// Session is the subset of *client.Session the helpers need.
type Session interface {
	Query(ctx context.Context, req td.Object) (td.Object, error)
	Execute(ctx context.Context, req td.Object) (td.Object, error)
	AwaitDownload(ctx context.Context, remoteFileID string) (td.File, error)
	Hijack(typ string, fn client.HijackFunc) error
	Unhijack(typ string)
}

var _ Session = (*client.Session)(nil)

// Client bundles the helpers for one session.
type Client struct {
	sess Session
	log  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New wraps sess.
func New(sess Session, opts ...Option) *Client {
	c := &Client{sess: sess, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Download fetches the file identified by remoteFileID and returns it once a
// local copy exists.
func (c *Client) Download(ctx context.Context, remoteFileID string) (td.File, error) {
	return c.sess.AwaitDownload(ctx, remoteFileID)
}
