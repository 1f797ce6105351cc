package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggoodman/tdsession-go/auth"
	"github.com/ggoodman/tdsession-go/engine"
	"github.com/ggoodman/tdsession-go/internal/correlation"
	"github.com/ggoodman/tdsession-go/internal/logctx"
	"github.com/ggoodman/tdsession-go/td"
)

// Session is one engine instance together with its receive loop, pending
// queries, hijacks, downloads and authorization state. Sessions share
// nothing; any number may run side by side.
type Session struct {
	id  string
	eng engine.Engine
	log *slog.Logger
	cfg settings

	queries   *correlation.Table
	auth      *auth.Machine
	hijacks   hijackTable
	downloads downloadTable
	callbacks callbackSet

	handleMu sync.RWMutex
	handle   engine.Handle
	released bool

	ctx      context.Context
	cancel   context.CancelFunc
	closed   chan struct{}
	loopDone chan struct{}

	readyOnce sync.Once
	readyCh   chan struct{}
	readyErr  error
}

// New creates an engine instance and starts its receive loop. Authorization
// proceeds in the background; WaitReady reports its outcome.
func New(eng engine.Engine, opts ...Option) (*Session, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	s := &Session{
		id:        cfg.id,
		eng:       eng,
		log:       cfg.log,
		cfg:       cfg,
		hijacks:   hijackTable{entries: make(map[string]HijackFunc)},
		downloads: downloadTable{waiters: make(map[int64]*downloadWaiter)},
		callbacks: callbackSet{log: cfg.log},
		closed:    make(chan struct{}),
		loopDone:  make(chan struct{}),
		readyCh:   make(chan struct{}),
	}

	tableOpts := []correlation.Option{correlation.WithLogger(cfg.log)}
	if cfg.queryTimeout > 0 {
		tableOpts = append(tableOpts, correlation.WithTimeout(cfg.queryTimeout))
	}
	if cfg.newExtra != nil {
		tableOpts = append(tableOpts, correlation.WithIDFunc(func() td.Extra { return td.Extra(cfg.newExtra()) }))
	}
	s.queries = correlation.New(s.send, tableOpts...)

	m, err := auth.NewMachine(cfg.params, cfg.input, func(ctx context.Context, req td.Object) error {
		return s.send(ctx, td.Request{Body: req})
	}, auth.WithLogger(cfg.log))
	if err != nil {
		return nil, err
	}
	s.auth = m

	h, err := eng.Create()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineCreate, err)
	}
	s.handle = h

	ctx := logctx.WithSessionData(context.Background(), &logctx.SessionData{
		SessionID: s.id,
		Phase:     func() string { return s.auth.Phase().String() },
	})
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.log.InfoContext(s.ctx, "session.start")
	go s.run(s.ctx)
	return s, nil
}

// ID returns the session id used in logs.
func (s *Session) ID() string { return s.id }

// Phase returns the current authorization phase.
func (s *Session) Phase() auth.Phase { return s.auth.Phase() }

// PasswordHint returns the cloud password hint while one is being requested.
func (s *Session) PasswordHint() string { return s.auth.PasswordHint() }

// WaitReady blocks until authorization completes, fails fatally, or the
// session closes. It is the single place where startup failures surface.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return s.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready is closed once readiness has been decided; WaitReady returns the
// outcome.
func (s *Session) Ready() <-chan struct{} { return s.readyCh }

// Done is closed when the session has released its engine handle.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Query sends req with a fresh correlation tag and waits for the matching
// response. Engine-reported failures are returned as *RemoteError; a missing
// response fails with ErrQueryTimeout. Query must not be called from a
// callback running on the receive loop.
func (s *Session) Query(ctx context.Context, req td.Object) (td.Object, error) {
	if s.cfg.limiter != nil {
		if err := s.cfg.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return s.queries.Submit(ctx, req)
}

// Send hands req to the engine without waiting for any response.
func (s *Session) Send(ctx context.Context, req td.Object) error {
	return s.send(ctx, td.Request{Body: req})
}

// Execute runs a synchronous, local-only request such as text parsing. A nil
// object with a nil error means the engine produced no output.
func (s *Session) Execute(ctx context.Context, req td.Object) (td.Object, error) {
	data, err := td.Request{Body: req}.Encode()
	if err != nil {
		return nil, err
	}

	s.handleMu.RLock()
	if s.released {
		s.handleMu.RUnlock()
		return nil, ErrEngineNotReady
	}
	out, err := s.eng.Execute(s.handle, data)
	s.handleMu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("client: execute %s: %w", req.Type(), err)
	}
	if out == nil {
		return nil, nil
	}

	ev, err := td.Decode(out)
	if err != nil {
		return nil, err
	}
	if e, ok := ev.(*td.Error); ok {
		return nil, remoteError(e)
	}
	return ev.Object()
}

// Close stops the receive loop, releases the engine handle and fails every
// pending query with ErrSessionClosed. It waits for the loop to exit, so it
// must not be called from a callback running on the loop. Close is safe to
// call more than once.
func (s *Session) Close() error {
	s.cancel()
	<-s.loopDone
	s.release(ErrSessionClosed)
	return nil
}

func (s *Session) send(ctx context.Context, req td.Request) error {
	data, err := req.Encode()
	if err != nil {
		return err
	}
	s.handleMu.RLock()
	defer s.handleMu.RUnlock()
	if s.released {
		return ErrEngineNotReady
	}
	if err := s.eng.Send(s.handle, data); err != nil {
		return fmt.Errorf("client: send %s: %w", req.Body.Type(), err)
	}
	return nil
}

func (s *Session) isReleased() bool {
	s.handleMu.RLock()
	defer s.handleMu.RUnlock()
	return s.released
}

// release destroys the engine handle exactly once. It must not race with an
// in-flight Receive, so it is called either from the loop itself or after the
// loop has exited.
func (s *Session) release(cause error) {
	s.handleMu.Lock()
	if s.released {
		s.handleMu.Unlock()
		return
	}
	s.released = true
	s.eng.Destroy(s.handle)
	s.handleMu.Unlock()

	s.cancel()
	close(s.closed)
	s.queries.Close(ErrSessionClosed)
	s.downloads.closeAll()
	s.resolveReady(cause)
	s.log.InfoContext(s.ctx, "session.released", slog.String("cause", cause.Error()))
}

func (s *Session) resolveReady(err error) {
	s.readyOnce.Do(func() {
		s.readyErr = err
		close(s.readyCh)
	})
}

func decodeEvent(data []byte) (td.Event, error) {
	ev, err := td.Decode(data)
	if err != nil {
		preview := data
		if len(preview) > 256 {
			preview = preview[:256]
		}
		return nil, fmt.Errorf("%w (payload %s)", err, preview)
	}
	return ev, nil
}
