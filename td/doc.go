// Package td defines the wire envelopes exchanged with a TDLib-style JSON
// engine.
//
// Every payload is a JSON object carrying an "@type" discriminator. Requests
// that expect a correlated reply carry an "@extra" tag which the engine echoes
// verbatim on the matching response or error.
//
// Outbound
//
//	Object  : a free-form request or response body keyed by field name
//	Request : an Object plus an explicit, typed correlation tag (Extra)
//
// Inbound
//
// Decode turns raw engine output into an Event. Known kinds decode into
// dedicated structs (AuthorizationStateUpdate, Error, FileUpdate, OptionUpdate,
// CallUpdate); everything else becomes a Generic event that still exposes the
// raw payload, so newer engine versions introducing new types pass through
// untouched.
package td
