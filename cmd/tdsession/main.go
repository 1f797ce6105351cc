// Command tdsession authorizes one account against the engine, keeps the
// session alive and optionally forwards its updates to a broker or echoes
// incoming text messages.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggoodman/tdsession-go/broker"
	"github.com/ggoodman/tdsession-go/broker/memory"
	redisbroker "github.com/ggoodman/tdsession-go/broker/redis"
	"github.com/ggoodman/tdsession-go/client"
	"github.com/ggoodman/tdsession-go/config"
	"github.com/ggoodman/tdsession-go/examples/echobot"
	"github.com/ggoodman/tdsession-go/input"
	"github.com/ggoodman/tdsession-go/input/filedrop"
	"github.com/ggoodman/tdsession-go/input/terminal"
	"github.com/ggoodman/tdsession-go/td"
	"github.com/ggoodman/tdsession-go/tg"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tdsession: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file")
	envPath := flag.String("env", ".env", "path to a dotenv file, ignored when missing")
	echo := flag.Bool("echo", false, "reply to incoming text messages with the same text")
	accessible := flag.Bool("accessible", false, "use line-based terminal prompts")
	flag.Parse()

	if err := loadDotEnv(*envPath); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log := cfg.Logger(os.Stderr)

	provider, err := inputProvider(cfg, log, *accessible)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}

	opts := append(cfg.ClientOptions(),
		client.WithLogger(log),
		client.WithInputProvider(provider),
	)
	sess, err := client.New(eng, opts...)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	// Event type and tag come from the logctx handler.
	updates := []client.UpdateHandler{func(ctx context.Context, _ td.Event) {
		log.DebugContext(ctx, "tdsession.update")
	}}
	var errs []client.ErrorHandler

	b, closeBroker, err := newBroker(cfg)
	if err != nil {
		return err
	}
	defer closeBroker()
	if b != nil {
		ns := cfg.Broker.Namespace
		if ns == "" {
			ns = sess.ID()
		}
		fwd := broker.NewForwarder(b, ns,
			broker.WithForwarderLogger(log),
			broker.WithTypes(cfg.Broker.Types...),
		)
		updates = append(updates, fwd.Update)
		errs = append(errs, fwd.Error)
		g.Go(func() error { return fwd.Run(gctx) })
		log.InfoContext(ctx, "tdsession.broker.forwarding", slog.String("kind", cfg.Broker.Kind), slog.String("namespace", ns))
	}

	if *echo {
		bot := echobot.New(tg.New(sess, tg.WithLogger(log)), echobot.WithLogger(log))
		updates = append(updates, bot.Update)
		g.Go(func() error { return bot.Run(gctx) })
	}

	sess.OnUpdate(fanOutUpdates(updates))
	sess.OnError(fanOutErrors(log, errs))

	if err := sess.WaitReady(ctx); err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	log.InfoContext(ctx, "tdsession.ready", slog.String("session_id", sess.ID()))

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case <-sess.Done():
			return client.ErrSessionClosed
		}
	})

	err = g.Wait()
	switch {
	case errors.Is(err, context.Canceled):
		log.InfoContext(context.Background(), "tdsession.shutdown")
		return nil
	case errors.Is(err, client.ErrSessionClosed):
		log.WarnContext(context.Background(), "tdsession.session_closed")
		return nil
	}
	return err
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func inputProvider(cfg config.Config, log *slog.Logger, accessible bool) (input.Provider, error) {
	chain := input.Chain{cfg.SeededInput()}
	switch cfg.Input.Mode {
	case config.InputTerminal:
		chain = append(chain, terminal.New(terminal.WithAccessible(accessible)))
	case config.InputFileDrop:
		p, err := filedrop.New(cfg.Input.Dir, filedrop.WithLogger(log))
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
	}
	return chain, nil
}

func newBroker(cfg config.Config) (broker.Broker, func(), error) {
	switch cfg.Broker.Kind {
	case config.BrokerMemory:
		return memory.New(), func() {}, nil
	case config.BrokerRedis:
		rc := cfg.Broker.Redis
		b := redisbroker.New(redisbroker.Config{
			Addr:      rc.Addr,
			Password:  rc.Password,
			DB:        rc.DB,
			KeyPrefix: rc.KeyPrefix,
			MaxLen:    rc.MaxLen,
		})
		if err := b.Ping(context.Background()); err != nil {
			_ = b.Close()
			return nil, nil, fmt.Errorf("redis broker: %w", err)
		}
		return b, func() { _ = b.Close() }, nil
	}
	return nil, func() {}, nil
}

func fanOutUpdates(handlers []client.UpdateHandler) client.UpdateHandler {
	if len(handlers) == 0 {
		return nil
	}
	return func(ctx context.Context, ev td.Event) {
		for _, h := range handlers {
			h(ctx, ev)
		}
	}
}

func fanOutErrors(log *slog.Logger, handlers []client.ErrorHandler) client.ErrorHandler {
	return func(ctx context.Context, e *td.Error) {
		log.WarnContext(ctx, "tdsession.engine_error", slog.Int("code", e.Code), slog.String("message", e.Message))
		for _, h := range handlers {
			h(ctx, e)
		}
	}
}
