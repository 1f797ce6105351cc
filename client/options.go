package client

import (
	"log/slog"
	"time"

	"github.com/ggoodman/tdsession-go/auth"
	"github.com/ggoodman/tdsession-go/input"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	defaultPollInterval = time.Second
	defaultSettleDelay  = 500 * time.Millisecond
)

type settings struct {
	log          *slog.Logger
	id           string
	queryTimeout time.Duration
	pollInterval time.Duration
	settleDelay  time.Duration
	params       auth.Parameters
	input        input.Provider
	limiter      *rate.Limiter
	newExtra     func() string
}

func defaultSettings() settings {
	return settings{
		log:          slog.Default(),
		id:           uuid.NewString(),
		pollInterval: defaultPollInterval,
		settleDelay:  defaultSettleDelay,
		input:        input.Static{},
	}
}

// Option configures a Session.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSessionID overrides the generated session id used in logs.
func WithSessionID(id string) Option {
	return func(s *settings) {
		if id != "" {
			s.id = id
		}
	}
}

// WithQueryTimeout bounds how long Query waits for a response. The default
// is 20 seconds.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// WithPollInterval sets the receive poll window. The default is one second;
// it also bounds how long Close waits for an idle loop.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithSettleDelay sets the pause between the ready state and WaitReady
// returning. Zero resolves readiness immediately.
func WithSettleDelay(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.settleDelay = d
		}
	}
}

// WithParameters sets the engine parameters sent during authorization.
// DatabaseDir and FilesDir are required.
func WithParameters(p auth.Parameters) Option {
	return func(s *settings) { s.params = p }
}

// WithInputProvider sets where credentials come from.
func WithInputProvider(p input.Provider) Option {
	return func(s *settings) {
		if p != nil {
			s.input = p
		}
	}
}

// WithRateLimit throttles Query to r requests per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(s *settings) {
		if r > 0 {
			if burst < 1 {
				burst = 1
			}
			s.limiter = rate.NewLimiter(r, burst)
		}
	}
}

// WithExtraFunc overrides how correlation tags are generated.
func WithExtraFunc(fn func() string) Option {
	return func(s *settings) {
		if fn != nil {
			s.newExtra = fn
		}
	}
}
