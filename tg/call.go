package tg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggoodman/tdsession-go/td"
)

const (
	callStateReady     = "callStateReady"
	callStateDiscarded = "callStateDiscarded"
	callStateError     = "callStateError"
)

// CallError is the engine error carried by a failed call, for example
// USER_PRIVACY_RESTRICTED. Raw holds the error as received when it could not
// be decoded into Payload.
type CallError struct {
	Payload td.Object
	Raw     json.RawMessage
}

func (e *CallError) Error() string {
	if e.Payload == nil {
		if len(e.Raw) == 0 {
			return "tg: call failed without error details"
		}
		return fmt.Sprintf("tg: call failed: %s", e.Raw)
	}
	return fmt.Sprintf("tg: call failed: %d %s", e.Payload.Int64("code"), e.Payload.String("message"))
}

func callError(log *slog.Logger, raw json.RawMessage) *CallError {
	var payload td.Object
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		msg := "missing error"
		if err != nil {
			msg = err.Error()
		}
		log.Warn("tg.call.error_decode_fail", slog.String("err", msg))
		return &CallError{Raw: raw}
	}
	return &CallError{Payload: payload, Raw: raw}
}

// Call tracks an outgoing call. While it is active the session's updateCall
// events are routed to it exclusively, unless another hijack of updateCall
// replaces it.
type Call struct {
	ID int64

	log   *slog.Logger
	ready chan td.Call
	done  chan struct{}
	stop  chan struct{}

	stopOnce sync.Once
	mu       sync.Mutex
	err      error
}

// Ready delivers the call once the connection is established.
func (c *Call) Ready() <-chan td.Call { return c.ready }

// Done is closed when the call is discarded, fails or is released.
func (c *Call) Done() <-chan struct{} { return c.done }

// Err returns the failure that ended the call, if any.
func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Release stops tracking the call and restores normal updateCall routing. It
// does not hang up.
func (c *Call) Release() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Call places a call to userID. It returns once the engine reports the first
// state change of the call; a call that fails immediately returns a
// *CallError.
func (c *Client) Call(ctx context.Context, userID int64) (*Call, error) {
	updates := make(chan td.Call, 32)
	err := c.sess.Hijack(td.TypeUpdateCall, func(ctx context.Context, ev td.Event) {
		cu, ok := ev.(*td.CallUpdate)
		if !ok {
			return
		}
		select {
		case updates <- cu.Call:
		default:
			c.log.WarnContext(ctx, "tg.call.update_dropped", slog.Int64("call_id", cu.Call.ID))
		}
	})
	if err != nil {
		return nil, err
	}

	res, err := c.sess.Query(ctx, td.Object{
		"@type":   "createCall",
		"user_id": userID,
		"protocol": td.Object{
			"@type":         "callProtocol",
			"udp_p2p":       true,
			"udp_reflector": true,
			"min_layer":     65,
			"max_layer":     65,
		},
	})
	if err != nil {
		c.sess.Unhijack(td.TypeUpdateCall)
		return nil, fmt.Errorf("tg: create call: %w", err)
	}

	call := &Call{
		ID:    res.Int64("id"),
		log:   c.log,
		ready: make(chan td.Call, 1),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
	first := make(chan error, 1)
	go call.watch(updates, first, func() { c.sess.Unhijack(td.TypeUpdateCall) })

	select {
	case err := <-first:
		if err != nil {
			return nil, err
		}
		return call, nil
	case <-ctx.Done():
		call.Release()
		return nil, ctx.Err()
	}
}

func (c *Call) watch(updates <-chan td.Call, first chan<- error, release func()) {
	defer close(c.done)
	defer release()

	reported := false
	report := func(err error) {
		if !reported {
			reported = true
			first <- err
		}
	}

	for {
		select {
		case <-c.stop:
			return
		case u := <-updates:
			if u.ID != c.ID {
				continue
			}
			switch u.State.Type {
			case callStateError:
				err := callError(c.log, u.State.Error)
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
				report(err)
				return
			case callStateReady:
				select {
				case c.ready <- u:
				default:
				}
			case callStateDiscarded:
				report(nil)
				return
			}
			report(nil)
		}
	}
}
