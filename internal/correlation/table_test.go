package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/tdsession-go/td"
)

// recorder captures sent requests so tests can answer them.
type recorder struct {
	mu   sync.Mutex
	reqs []td.Request
	sent chan td.Request
}

func newRecorder() *recorder { return &recorder{sent: make(chan td.Request, 128)} }

func (r *recorder) send(ctx context.Context, req td.Request) error {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	r.sent <- req
	return nil
}

func (r *recorder) next(t *testing.T) td.Request {
	t.Helper()
	select {
	case req := <-r.sent:
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a sent request")
		return td.Request{}
	}
}

func TestTable_ResolveOutOfOrder(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	tbl := New(rec.send)

	type res struct {
		obj td.Object
		err error
	}
	resCh1 := make(chan res, 1)
	resCh2 := make(chan res, 1)
	go func() {
		obj, err := tbl.Submit(context.Background(), td.Object{"@type": "m1"})
		resCh1 <- res{obj, err}
	}()
	req1 := rec.next(t)
	go func() {
		obj, err := tbl.Submit(context.Background(), td.Object{"@type": "m2"})
		resCh2 <- res{obj, err}
	}()
	req2 := rec.next(t)

	if !tbl.Resolve(req2.Extra, td.Object{"@type": "ok", "n": 2}) {
		t.Fatalf("resolve 2 reported no pending query")
	}
	if !tbl.Resolve(req1.Extra, td.Object{"@type": "ok", "n": 1}) {
		t.Fatalf("resolve 1 reported no pending query")
	}

	got1, got2 := <-resCh1, <-resCh2
	if got1.err != nil || got2.err != nil {
		t.Fatalf("unexpected errors: %v %v", got1.err, got2.err)
	}
	if got1.obj.Int64("n") != 1 || got2.obj.Int64("n") != 2 {
		t.Fatalf("responses crossed: %v %v", got1.obj, got2.obj)
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected empty table, got %d", tbl.Len())
	}
}

func TestTable_LateDuplicateIsNoop(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	tbl := New(rec.send)

	done := make(chan td.Object, 1)
	go func() {
		obj, _ := tbl.Submit(context.Background(), td.Object{"@type": "getMe"})
		done <- obj
	}()
	req := rec.next(t)

	if !tbl.Resolve(req.Extra, td.Object{"@type": "user", "id": 1}) {
		t.Fatalf("first resolve should win")
	}
	if tbl.Resolve(req.Extra, td.Object{"@type": "user", "id": 2}) {
		t.Fatalf("duplicate resolve should be a no-op")
	}
	if tbl.Reject(req.Extra, errors.New("late")) {
		t.Fatalf("late reject should be a no-op")
	}
	if got := <-done; got.Int64("id") != 1 {
		t.Fatalf("expected first payload, got %v", got)
	}
}

func TestTable_TimeoutRemovesEntryAndDropsLateResponse(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	tbl := New(rec.send, WithTimeout(50*time.Millisecond))

	errCh := make(chan error, 1)
	go func() {
		_, err := tbl.Submit(context.Background(), td.Object{"@type": "getMe"})
		errCh <- err
	}()
	req := rec.next(t)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrQueryTimeout) {
			t.Fatalf("expected ErrQueryTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("query did not time out")
	}
	if tbl.Pending(req.Extra) {
		t.Fatalf("timed-out query still pending")
	}
	if tbl.Resolve(req.Extra, td.Object{"@type": "user"}) {
		t.Fatalf("late response must be dropped")
	}
}

// The deadline is armed before the send completes, so a send that stalls
// past the deadline still surfaces ErrQueryTimeout.
func TestTable_TimerArmedBeforeSend(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var tag atomic.Value
	tbl := New(func(ctx context.Context, req td.Request) error {
		tag.Store(req.Extra)
		<-release
		return nil
	}, WithTimeout(30*time.Millisecond))

	errCh := make(chan error, 1)
	go func() {
		_, err := tbl.Submit(context.Background(), td.Object{"@type": "slow"})
		errCh <- err
	}()

	time.Sleep(100 * time.Millisecond)
	if n := tbl.Len(); n != 0 {
		t.Fatalf("expected the stalled query to have expired, table has %d", n)
	}
	close(release)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrQueryTimeout) {
			t.Fatalf("expected ErrQueryTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("submit never returned")
	}
}

func TestTable_RejectDeliversError(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	tbl := New(rec.send)

	errCh := make(chan error, 1)
	go func() {
		_, err := tbl.Submit(context.Background(), td.Object{"@type": "getChat"})
		errCh <- err
	}()
	req := rec.next(t)

	boom := errors.New("boom")
	if !tbl.Reject(req.Extra, boom) {
		t.Fatalf("reject reported no pending query")
	}
	if err := <-errCh; !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestTable_SendErrorUnregisters(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("engine gone")
	tbl := New(func(ctx context.Context, req td.Request) error { return sendErr })

	if _, err := tbl.Submit(context.Background(), td.Object{"@type": "getMe"}); !errors.Is(err, sendErr) {
		t.Fatalf("expected send error, got %v", err)
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected empty table after send failure")
	}
}

func TestTable_ContextCancelUnregisters(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	tbl := New(rec.send)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := tbl.Submit(ctx, td.Object{"@type": "getMe"})
		errCh <- err
	}()
	req := rec.next(t)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tbl.Pending(req.Extra) {
		t.Fatalf("cancelled query still pending")
	}
}

func TestTable_CloseFailsPendingAndFutureCalls(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	tbl := New(rec.send)

	errCh := make(chan error, 1)
	go func() {
		_, err := tbl.Submit(context.Background(), td.Object{"@type": "getMe"})
		errCh <- err
	}()
	rec.next(t)

	shutdown := errors.New("shutdown")
	tbl.Close(shutdown)
	tbl.Close(errors.New("second close ignored"))

	if err := <-errCh; !errors.Is(err, shutdown) {
		t.Fatalf("expected shutdown, got %v", err)
	}
	if _, err := tbl.Submit(context.Background(), td.Object{"@type": "getMe"}); !errors.Is(err, shutdown) {
		t.Fatalf("expected shutdown for new submissions, got %v", err)
	}
}

// Mirrors an engine that echoes "@extra": every concurrently outstanding tag
// must be distinct and every caller must receive its own payload.
func TestTable_ConcurrentIDsAreDistinct(t *testing.T) {
	t.Parallel()

	const n = 200
	var tbl *Table
	var mu sync.Mutex
	seen := make(map[td.Extra]bool)
	var dup atomic.Bool
	hold := make(chan td.Request, n)

	tbl = New(func(ctx context.Context, req td.Request) error {
		mu.Lock()
		if seen[req.Extra] {
			dup.Store(true)
		}
		seen[req.Extra] = true
		mu.Unlock()
		hold <- req
		return nil
	})

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			obj, err := tbl.Submit(context.Background(), td.Object{"@type": "echo", "i": i})
			if err != nil {
				errs <- err
				return
			}
			if obj.Int64("i") != int64(i) {
				errs <- errors.New("payload mismatch for " + strconv.Itoa(i))
			}
		}(i)
	}

	// Answer only after every query is outstanding.
	reqs := make([]td.Request, 0, n)
	for len(reqs) < n {
		select {
		case r := <-hold:
			reqs = append(reqs, r)
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d requests were sent", len(reqs), n)
		}
	}
	if tbl.Len() != n {
		t.Fatalf("expected %d pending, got %d", n, tbl.Len())
	}
	for _, r := range reqs {
		b, _ := json.Marshal(r.Body)
		var echo td.Object
		_ = json.Unmarshal(b, &echo)
		tbl.Resolve(r.Extra, echo)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if dup.Load() {
		t.Fatalf("duplicate correlation id observed while queries were pending")
	}
}

func TestTable_CollidingGeneratorIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	ids := []td.Extra{"same", "same", "other"}
	rec := newRecorder()
	tbl := New(rec.send, WithIDFunc(func() td.Extra {
		i := calls.Add(1) - 1
		if int(i) < len(ids) {
			return ids[i]
		}
		return td.Extra("x" + strconv.FormatInt(i, 10))
	}))

	go func() { _, _ = tbl.Submit(context.Background(), td.Object{"@type": "a"}) }()
	first := rec.next(t)
	go func() { _, _ = tbl.Submit(context.Background(), td.Object{"@type": "b"}) }()
	second := rec.next(t)

	if first.Extra != "same" || second.Extra != "other" {
		t.Fatalf("expected collision to be skipped, got %q and %q", first.Extra, second.Extra)
	}
	tbl.Close(nil)
}
