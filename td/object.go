package td

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	typeKey  = "@type"
	extraKey = "@extra"
)

// ErrMissingType is returned when an envelope has no "@type" discriminator.
var ErrMissingType = errors.New("td: missing @type")

// Object is a generic JSON object as produced or consumed by the engine.
type Object map[string]any

// NewObject builds an Object of the given type with the supplied fields.
// The fields map is copied; typ always wins over a conflicting "@type" key.
func NewObject(typ string, fields map[string]any) Object {
	o := make(Object, len(fields)+1)
	for k, v := range fields {
		o[k] = v
	}
	o[typeKey] = typ
	return o
}

// Type returns the "@type" discriminator or "" when absent.
func (o Object) Type() string {
	s, _ := o[typeKey].(string)
	return s
}

// String returns the string field named key, or "".
func (o Object) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Int64 returns the numeric field named key. JSON numbers decode as float64 or
// json.Number depending on the decoder, both are accepted.
func (o Object) Int64(key string) int64 {
	switch v := o[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// Object returns the nested object named key, or nil.
func (o Object) Object(key string) Object {
	switch v := o[key].(type) {
	case Object:
		return v
	case map[string]any:
		return Object(v)
	}
	return nil
}

// Clone returns a shallow copy of o.
func (o Object) Clone() Object {
	c := make(Object, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// Decode unmarshals o into dst by round-tripping through JSON.
func (o Object) Decode(dst any) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("td: encode object: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("td: decode %s: %w", o.Type(), err)
	}
	return nil
}

// Extra is the opaque correlation tag carried in "@extra".
type Extra string

// Request is an outbound envelope. Body supplies the "@type" and fields; Extra,
// when non-empty, is written as "@extra" and takes precedence over any
// "@extra" key present in Body.
type Request struct {
	Extra Extra
	Body  Object
}

// MarshalJSON flattens the request into a single JSON object.
func (r Request) MarshalJSON() ([]byte, error) {
	if r.Body.Type() == "" {
		return nil, ErrMissingType
	}
	out := r.Body
	if r.Extra != "" {
		out = r.Body.Clone()
		out[extraKey] = string(r.Extra)
	}
	return json.Marshal(map[string]any(out))
}

// Encode marshals r, returning ErrMissingType for untyped bodies.
func (r Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}
