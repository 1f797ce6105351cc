package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggoodman/tdsession-go/td"
)

type downloadWaiter struct {
	ch chan td.File
}

type downloadTable struct {
	mu      sync.Mutex
	waiters map[int64]*downloadWaiter
	closed  bool
}

func (t *downloadTable) register(id int64) (*downloadWaiter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrSessionClosed
	}
	if _, ok := t.waiters[id]; ok {
		return nil, fmt.Errorf("%w: file %d", ErrDownloadInProgress, id)
	}
	w := &downloadWaiter{ch: make(chan td.File, 1)}
	t.waiters[id] = w
	return w, nil
}

func (t *downloadTable) remove(id int64, w *downloadWaiter) {
	t.mu.Lock()
	if cur, ok := t.waiters[id]; ok && cur == w {
		delete(t.waiters, id)
	}
	t.mu.Unlock()
}

// offer reports whether f belongs to a pending download. Progress updates
// without a local path are consumed silently.
func (t *downloadTable) offer(f td.File) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.waiters[f.ID]
	if !ok {
		return false
	}
	if !f.Downloaded() {
		return true
	}
	delete(t.waiters, f.ID)
	w.ch <- f
	return true
}

func (t *downloadTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id := range t.waiters {
		delete(t.waiters, id)
	}
}

// AwaitDownload resolves remoteFileID to a local file, starts downloading it
// and returns once the engine reports a local path. Only one caller may await
// a given file at a time; a second concurrent call fails with
// ErrDownloadInProgress.
func (s *Session) AwaitDownload(ctx context.Context, remoteFileID string) (td.File, error) {
	obj, err := s.Query(ctx, td.Object{"@type": "getRemoteFile", "remote_file_id": remoteFileID})
	if err != nil {
		return td.File{}, fmt.Errorf("client: resolve remote file: %w", err)
	}
	var f td.File
	if err := obj.Decode(&f); err != nil {
		return td.File{}, err
	}

	// Registered before the download starts so no completion event is missed.
	w, err := s.downloads.register(f.ID)
	if err != nil {
		return td.File{}, err
	}
	defer s.downloads.remove(f.ID, w)

	obj, err = s.Query(ctx, td.Object{
		"@type":       "downloadFile",
		"file_id":     f.ID,
		"priority":    1,
		"offset":      0,
		"limit":       0,
		"synchronous": false,
	})
	if err != nil {
		return td.File{}, fmt.Errorf("client: start download: %w", err)
	}
	if err := obj.Decode(&f); err != nil {
		return td.File{}, err
	}
	if f.Downloaded() {
		return f, nil
	}

	s.log.DebugContext(ctx, "session.download.wait", slog.Int64("file_id", f.ID))
	select {
	case done := <-w.ch:
		return done, nil
	case <-s.closed:
		return td.File{}, ErrSessionClosed
	case <-ctx.Done():
		return td.File{}, ctx.Err()
	}
}
