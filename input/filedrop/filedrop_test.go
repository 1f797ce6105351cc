package filedrop

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggoodman/tdsession-go/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_ExistingAnswer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "code"), []byte("12345\n"), 0o600))

	p, err := New(dir)
	require.NoError(t, err)

	v, err := p.Request(context.Background(), input.Request{Kind: input.KindCode})
	require.NoError(t, err)
	assert.Equal(t, "12345", v)
	assert.NoFileExists(t, filepath.Join(dir, "code"))
	assert.NoFileExists(t, filepath.Join(dir, "code.prompt"))
}

func TestProvider_WaitsForDroppedFile(t *testing.T) {
	dir := t.TempDir()
	p, err := New(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := p.Request(ctx, input.Request{Kind: input.KindPassword, Hint: "pet"})
		if err != nil {
			errCh <- err
			return
		}
		got <- v
	}()

	promptPath := filepath.Join(dir, "password.prompt")
	require.Eventually(t, func() bool {
		_, err := os.Stat(promptPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	b, err := os.ReadFile(promptPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "hint: pet")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "password"), []byte("hunter2"), 0o600))

	select {
	case v := <-got:
		assert.Equal(t, "hunter2", v)
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for answer")
	}
}

func TestProvider_ContextCancel(t *testing.T) {
	p, err := New(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = p.Request(ctx, input.Request{Kind: input.KindFirstName})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
