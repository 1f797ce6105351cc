package auth

import "github.com/ggoodman/tdsession-go/td"

// Phase is the authorization phase of a session.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseAwaitingParameters
	PhaseAwaitingEncryptionKey
	PhaseAwaitingCredentialType
	PhaseAwaitingPhoneVerificationCode
	PhaseAwaitingBotToken
	PhaseAwaitingRegistration
	PhaseAwaitingPassword
	PhaseReady
	PhaseClosing
	PhaseClosed
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingParameters:
		return "awaiting_parameters"
	case PhaseAwaitingEncryptionKey:
		return "awaiting_encryption_key"
	case PhaseAwaitingCredentialType:
		return "awaiting_credential_type"
	case PhaseAwaitingPhoneVerificationCode:
		return "awaiting_phone_verification_code"
	case PhaseAwaitingBotToken:
		return "awaiting_bot_token"
	case PhaseAwaitingRegistration:
		return "awaiting_registration"
	case PhaseAwaitingPassword:
		return "awaiting_password"
	case PhaseReady:
		return "ready"
	case PhaseClosing:
		return "closing"
	case PhaseClosed:
		return "closed"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further authorization progress is possible.
func (p Phase) Terminal() bool {
	return p == PhaseReady || p == PhaseFailed || p == PhaseClosed
}

// ActionKind is what the machine must do in response to a state event.
type ActionKind int

const (
	// ActionNone ignores the event.
	ActionNone ActionKind = iota
	// ActionSetParameters sends the engine parameters.
	ActionSetParameters
	// ActionCheckEncryptionKey sends the (possibly empty) database key.
	ActionCheckEncryptionKey
	// ActionAwaitCredential asks for credential kind and value.
	ActionAwaitCredential
	// ActionAwaitCode asks for the verification code.
	ActionAwaitCode
	// ActionAwaitRegistration asks for the new account's name.
	ActionAwaitRegistration
	// ActionAwaitPassword asks for the cloud password.
	ActionAwaitPassword
	// ActionReady resolves readiness after the settle delay.
	ActionReady
)

// Transition maps an authorization state reported by the engine to the next
// phase and the action that drives it. It is pure; Machine applies it.
func Transition(state td.AuthorizationState) (Phase, ActionKind) {
	switch state.Type {
	case td.AuthStateWaitParameters:
		return PhaseAwaitingParameters, ActionSetParameters
	case td.AuthStateWaitEncryptionKey:
		return PhaseAwaitingEncryptionKey, ActionCheckEncryptionKey
	case td.AuthStateWaitPhoneNumber:
		return PhaseAwaitingCredentialType, ActionAwaitCredential
	case td.AuthStateWaitCode:
		return PhaseAwaitingPhoneVerificationCode, ActionAwaitCode
	case td.AuthStateWaitRegistration:
		return PhaseAwaitingRegistration, ActionAwaitRegistration
	case td.AuthStateWaitPassword:
		return PhaseAwaitingPassword, ActionAwaitPassword
	case td.AuthStateReady:
		return PhaseReady, ActionReady
	case td.AuthStateLoggingOut, td.AuthStateClosing:
		return PhaseClosing, ActionNone
	case td.AuthStateClosed:
		return PhaseClosed, ActionNone
	}
	return PhaseUnknown, ActionNone
}
