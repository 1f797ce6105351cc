// Package auth drives an engine through its authorization handshake.
//
// The handshake is an explicit finite-state machine. Transition maps each
// authorization state reported by the engine to a Phase and an ActionKind;
// Machine performs the action, which either emits one request to the engine
// or suspends on the input.Provider until an external party supplies a
// credential. Recoverable credential errors (wrong code, wrong password)
// re-enter the same step; an invalid bot token is fatal.
package auth
