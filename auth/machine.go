package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggoodman/tdsession-go/input"
	"github.com/ggoodman/tdsession-go/td"
)

var (
	// ErrInvalidBotToken indicates the engine rejected the bot token.
	ErrInvalidBotToken = errors.New("auth: bot token is not valid")
	// ErrUnsupportedCredential indicates the input provider returned an
	// unknown credential kind.
	ErrUnsupportedCredential = errors.New("auth: unsupported credential type")
	// ErrMissingDirectories indicates the database or files directory is unset.
	ErrMissingDirectories = errors.New("auth: database and files directories are required")
)

// SendFunc emits a one-way request to the engine.
type SendFunc func(ctx context.Context, req td.Object) error

// Parameters are the engine parameters sent while awaiting parameters.
type Parameters struct {
	APIID         int32
	APIHash       string
	DatabaseDir   string
	FilesDir      string
	UseTestDC     bool
	EncryptionKey string
	// Options carries additional engine parameters such as
	// use_message_database or device_model. Keys set here override the
	// defaults from DefaultOptions.
	Options map[string]any
}

// DefaultOptions returns the engine parameters used unless overridden.
func DefaultOptions() map[string]any {
	return map[string]any{
		"use_message_database":     true,
		"use_secret_chats":         false,
		"system_language_code":     "en",
		"application_version":      "1.0",
		"device_model":             "tdsession",
		"system_version":           "go",
		"enable_storage_optimizer": true,
	}
}

// Machine is the authorization state machine of one session. Handle and
// HandleError are called from the session's receive loop and may block on the
// input provider.
type Machine struct {
	params Parameters
	send   SendFunc
	log    *slog.Logger

	mu         sync.Mutex
	input      input.Provider
	phase      Phase
	hint       string
	credential string
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMachine validates params and returns a Machine in PhaseUnknown.
func NewMachine(params Parameters, in input.Provider, send SendFunc, opts ...Option) (*Machine, error) {
	if params.DatabaseDir == "" || params.FilesDir == "" {
		return nil, ErrMissingDirectories
	}
	if in == nil {
		return nil, errors.New("auth: input provider required")
	}
	if send == nil {
		return nil, errors.New("auth: send function required")
	}
	m := &Machine{params: params, input: in, send: send, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// SetProvider replaces the input provider used by subsequent prompts.
func (m *Machine) SetProvider(p input.Provider) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.input = p
	m.mu.Unlock()
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// PasswordHint returns the hint recorded while awaiting the password.
func (m *Machine) PasswordHint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hint
}

func (m *Machine) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

// Handle applies one authorization state. It reports ready=true when the
// engine reached the ready state. A non-nil error is fatal for the handshake
// and leaves the machine in PhaseFailed.
func (m *Machine) Handle(ctx context.Context, state td.AuthorizationState) (ready bool, err error) {
	phase, action := Transition(state)
	if phase != PhaseUnknown {
		m.setPhase(phase)
	}
	m.log.DebugContext(ctx, "auth.state", slog.String("state", state.Type), slog.String("phase", phase.String()))

	switch action {
	case ActionSetParameters:
		err = m.send(ctx, m.parametersRequest())
	case ActionCheckEncryptionKey:
		req := td.Object{"@type": "checkDatabaseEncryptionKey"}
		if m.params.EncryptionKey != "" {
			req["encryption_key"] = m.params.EncryptionKey
		}
		err = m.send(ctx, req)
	case ActionAwaitCredential:
		err = m.submitCredential(ctx)
	case ActionAwaitCode:
		err = m.submitCode(ctx, input.KindCode)
	case ActionAwaitRegistration:
		err = m.submitRegistration(ctx)
	case ActionAwaitPassword:
		m.mu.Lock()
		m.hint = state.PasswordHint
		m.mu.Unlock()
		err = m.submitPassword(ctx, input.KindPassword)
	case ActionReady:
		m.mu.Lock()
		m.hint = ""
		m.mu.Unlock()
		return true, nil
	}
	if err != nil {
		m.setPhase(PhaseFailed)
		return false, err
	}
	return false, nil
}

// HandleError classifies an uncorrelated engine error. Wrong codes and wrong
// passwords of a user login re-prompt and resubmit through the current step
// (handled, nil); a bot login leaves them unhandled.
// An invalid bot token returns ErrInvalidBotToken. Other errors are not
// handled and belong to the generic error stream.
func (m *Machine) HandleError(ctx context.Context, e *td.Error) (handled bool, err error) {
	switch e.Message {
	case td.ErrMsgPhoneCodeEmpty, td.ErrMsgPhoneCodeInvalid, td.ErrMsgPasswordHashInvalid:
		// Bots have neither a login code nor a cloud password.
		if m.Credential() == input.CredentialBot {
			return false, nil
		}
	}

	switch e.Message {
	case td.ErrMsgPhoneCodeEmpty, td.ErrMsgPhoneCodeInvalid:
		m.log.InfoContext(ctx, "auth.code.rejected", slog.String("reason", e.Message))
		err = m.submitCode(ctx, input.KindCodeIncorrect)
	case td.ErrMsgPasswordHashInvalid:
		m.log.InfoContext(ctx, "auth.password.rejected")
		err = m.submitPassword(ctx, input.KindPasswordIncorrect)
	case td.ErrMsgAccessTokenInvalid:
		m.log.WarnContext(ctx, "auth.bot_token.rejected")
		err = ErrInvalidBotToken
	default:
		return false, nil
	}
	if err != nil {
		m.setPhase(PhaseFailed)
	}
	return true, err
}

// Credential returns the credential kind chosen for this login, or "" before
// it was asked for.
func (m *Machine) Credential() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credential
}

func (m *Machine) parametersRequest() td.Object {
	params := DefaultOptions()
	for k, v := range m.params.Options {
		params[k] = v
	}
	params["@type"] = "tdlibParameters"
	params["api_id"] = m.params.APIID
	params["api_hash"] = m.params.APIHash
	params["database_directory"] = m.params.DatabaseDir
	params["files_directory"] = m.params.FilesDir
	params["use_test_dc"] = m.params.UseTestDC
	return td.Object{"@type": "setTdlibParameters", "parameters": params}
}

func (m *Machine) submitCredential(ctx context.Context) error {
	kind, err := m.ask(ctx, input.KindCredentialType, "")
	if err != nil {
		return err
	}
	value, err := m.ask(ctx, input.KindCredentialValue, "")
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.credential = kind
	m.mu.Unlock()

	switch kind {
	case input.CredentialUser:
		return m.send(ctx, td.Object{"@type": "setAuthenticationPhoneNumber", "phone_number": value})
	case input.CredentialBot:
		m.setPhase(PhaseAwaitingBotToken)
		return m.send(ctx, td.Object{"@type": "checkAuthenticationBotToken", "token": value})
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedCredential, kind)
}

func (m *Machine) submitCode(ctx context.Context, kind input.Kind) error {
	code, err := m.ask(ctx, kind, "")
	if err != nil {
		return err
	}
	return m.send(ctx, td.Object{"@type": "checkAuthenticationCode", "code": code})
}

func (m *Machine) submitRegistration(ctx context.Context) error {
	first, err := m.ask(ctx, input.KindFirstName, "")
	if err != nil {
		return err
	}
	return m.send(ctx, td.Object{"@type": "registerUser", "first_name": first, "last_name": ""})
}

func (m *Machine) submitPassword(ctx context.Context, kind input.Kind) error {
	password, err := m.ask(ctx, kind, m.PasswordHint())
	if err != nil {
		return err
	}
	return m.send(ctx, td.Object{"@type": "checkAuthenticationPassword", "password": password})
}

func (m *Machine) ask(ctx context.Context, kind input.Kind, hint string) (string, error) {
	m.mu.Lock()
	in := m.input
	m.mu.Unlock()
	v, err := in.Request(ctx, input.Request{Kind: kind, Prompt: input.DefaultPrompt(kind), Hint: hint})
	if err != nil {
		return "", fmt.Errorf("auth: request %s: %w", kind, err)
	}
	return v, nil
}
