package client

import (
	"errors"
	"fmt"

	"github.com/ggoodman/tdsession-go/auth"
	"github.com/ggoodman/tdsession-go/internal/correlation"
	"github.com/ggoodman/tdsession-go/td"
)

var (
	// ErrEngineCreate indicates the engine could not create an instance.
	ErrEngineCreate = errors.New("client: engine create failed")
	// ErrEngineNotReady indicates a call outside the engine handle's lifetime.
	ErrEngineNotReady = errors.New("client: engine handle not available")
	// ErrSessionClosed indicates the session was closed or signed out.
	ErrSessionClosed = errors.New("client: session closed")
	// ErrInvalidCallback indicates an unknown callback name or handler type.
	ErrInvalidCallback = errors.New("client: invalid callback")
	// ErrDownloadInProgress indicates another caller awaits the same file.
	ErrDownloadInProgress = errors.New("client: download already in progress")

	// ErrQueryTimeout indicates no response arrived before the query deadline.
	ErrQueryTimeout = correlation.ErrQueryTimeout
	// ErrInvalidBotToken indicates the engine rejected the bot token.
	ErrInvalidBotToken = auth.ErrInvalidBotToken
	// ErrUnsupportedCredential indicates an unknown credential kind.
	ErrUnsupportedCredential = auth.ErrUnsupportedCredential
)

// RemoteError is an engine-reported failure of a specific request.
type RemoteError struct {
	Code    int
	Message string
	// Payload is the error object as received, without "@extra".
	Payload td.Object
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("client: remote error %d: %s", e.Code, e.Message)
}

func remoteError(ev *td.Error) *RemoteError {
	payload, _ := ev.Object()
	return &RemoteError{Code: ev.Code, Message: ev.Message, Payload: payload}
}

// errSignedOut is the release cause when the engine reports a sign-out.
var errSignedOut = fmt.Errorf("%w: signed out", ErrSessionClosed)
