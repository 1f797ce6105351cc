package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ggoodman/tdsession-go/client"
	"github.com/ggoodman/tdsession-go/config"
	"github.com/ggoodman/tdsession-go/input"
	"github.com/ggoodman/tdsession-go/td"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, loadDotEnv(""))
	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TDSESSION_DOTENV_PROBE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TDSESSION_DOTENV_PROBE") })
	require.NoError(t, loadDotEnv(path))
	require.Equal(t, "loaded", os.Getenv("TDSESSION_DOTENV_PROBE"))
}

func TestInputProvider_SeededAnswersComeFirst(t *testing.T) {
	cfg := config.Defaults()
	cfg.Input.Mode = config.InputStatic
	cfg.Input.BotToken = "123:abc"

	p, err := inputProvider(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), true)
	require.NoError(t, err)

	v, err := p.Request(context.Background(), input.Request{Kind: input.KindCredentialType})
	require.NoError(t, err)
	require.Equal(t, input.CredentialBot, v)

	_, err = p.Request(context.Background(), input.Request{Kind: input.KindCode})
	require.ErrorIs(t, err, input.ErrNoInput)
}

func TestInputProvider_FileDrop(t *testing.T) {
	cfg := config.Defaults()
	cfg.Input.Mode = config.InputFileDrop
	cfg.Input.Dir = filepath.Join(t.TempDir(), "answers")

	_, err := inputProvider(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), false)
	require.NoError(t, err)
	require.DirExists(t, cfg.Input.Dir)
}

func TestNewBroker(t *testing.T) {
	cfg := config.Defaults()
	b, closeFn, err := newBroker(cfg)
	require.NoError(t, err)
	require.Nil(t, b)
	closeFn()

	cfg.Broker.Kind = config.BrokerMemory
	b, closeFn, err = newBroker(cfg)
	require.NoError(t, err)
	require.NotNil(t, b)
	closeFn()
}

func TestFanOut(t *testing.T) {
	require.Nil(t, fanOutUpdates(nil))

	var seen []string
	h := fanOutUpdates([]client.UpdateHandler{
		func(_ context.Context, ev td.Event) { seen = append(seen, "a:"+ev.Type()) },
		func(_ context.Context, ev td.Event) { seen = append(seen, "b:"+ev.Type()) },
	})
	ev, err := td.Decode([]byte(`{"@type":"updateUser"}`))
	require.NoError(t, err)
	h(context.Background(), ev)
	require.Equal(t, []string{"a:updateUser", "b:updateUser"}, seen)

	var codes []int
	eh := fanOutErrors(slog.New(slog.NewTextHandler(io.Discard, nil)), []client.ErrorHandler{
		func(_ context.Context, e *td.Error) { codes = append(codes, e.Code) },
	})
	raw, err := td.Decode([]byte(`{"@type":"error","code":400,"message":"BAD"}`))
	require.NoError(t, err)
	eh(context.Background(), raw.(*td.Error))
	require.Equal(t, []int{400}, codes)
}
