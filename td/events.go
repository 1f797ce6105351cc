package td

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Well-known envelope types the session layer reacts to.
const (
	TypeUpdateAuthorizationState = "updateAuthorizationState"
	TypeError                    = "error"
	TypeOk                       = "ok"
	TypeUpdateFile               = "updateFile"
	TypeUpdateOption             = "updateOption"
	TypeUpdateCall               = "updateCall"
	TypeOptionValueEmpty         = "optionValueEmpty"
)

// Event is a decoded inbound envelope.
type Event interface {
	// Type is the "@type" discriminator.
	Type() string
	// Extra is the correlation tag, empty for unsolicited events.
	Extra() Extra
	// Raw is the payload exactly as received from the engine.
	Raw() json.RawMessage
	// Object decodes the payload into a generic Object with "@extra" removed.
	Object() (Object, error)
}

type header struct {
	typ   string
	extra Extra
	raw   json.RawMessage
}

func (h *header) Type() string         { return h.typ }
func (h *header) Extra() Extra         { return h.extra }
func (h *header) Raw() json.RawMessage { return h.raw }

func (h *header) Object() (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(h.raw))
	dec.UseNumber()
	var o Object
	if err := dec.Decode(&o); err != nil {
		return nil, fmt.Errorf("td: decode %s: %w", h.typ, err)
	}
	delete(o, extraKey)
	return o, nil
}

// Generic is the passthrough arm for every type without a dedicated struct.
type Generic struct{ header }

// AuthorizationStateUpdate reports a new authorization state.
type AuthorizationStateUpdate struct {
	header
	State AuthorizationState
}

// AuthorizationState is the nested state object of an authorization update.
type AuthorizationState struct {
	Type         string `json:"@type"`
	PasswordHint string `json:"password_hint,omitempty"`
}

// Error is an engine-reported failure, correlated when Extra is non-empty.
type Error struct {
	header
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FileUpdate reports progress of a file transfer.
type FileUpdate struct {
	header
	File File
}

// OptionUpdate reports a changed engine option.
type OptionUpdate struct {
	header
	Name  string
	Value OptionValue
}

// OptionValue is the nested value of an option update.
type OptionValue struct {
	Type  string          `json:"@type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// IsEmpty reports whether the option has been cleared.
func (v OptionValue) IsEmpty() bool { return v.Type == TypeOptionValueEmpty }

// CallUpdate reports a state change of a voice call.
type CallUpdate struct {
	header
	Call Call
}

// Call is the call object carried by CallUpdate.
type Call struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	Outgoing bool      `json:"is_outgoing"`
	State    CallState `json:"state"`
}

// CallState is the nested state of a call. Error is set for callStateError.
type CallState struct {
	Type  string          `json:"@type"`
	Error json.RawMessage `json:"error,omitempty"`
}

// File is the engine's file descriptor.
type File struct {
	ID     int64      `json:"id"`
	Size   int64      `json:"size"`
	Local  LocalFile  `json:"local"`
	Remote RemoteFile `json:"remote"`
}

// Downloaded reports whether the file is available on local storage.
func (f File) Downloaded() bool { return f.Local.Path != "" }

// LocalFile describes the local copy of a file.
type LocalFile struct {
	Path                   string `json:"path"`
	IsDownloadingActive    bool   `json:"is_downloading_active"`
	IsDownloadingCompleted bool   `json:"is_downloading_completed"`
	DownloadedSize         int64  `json:"downloaded_size"`
}

// RemoteFile describes the remote copy of a file.
type RemoteFile struct {
	ID       string `json:"id"`
	UniqueID string `json:"unique_id,omitempty"`
}

// Decode parses one engine payload into its Event arm.
func Decode(data []byte) (Event, error) {
	var probe struct {
		Type  string          `json:"@type"`
		Extra json.RawMessage `json:"@extra"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("td: invalid envelope: %w", err)
	}
	if probe.Type == "" {
		return nil, ErrMissingType
	}
	h := header{typ: probe.Type, extra: decodeExtra(probe.Extra), raw: json.RawMessage(data)}

	switch probe.Type {
	case TypeUpdateAuthorizationState:
		var body struct {
			State AuthorizationState `json:"authorization_state"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("td: decode %s: %w", probe.Type, err)
		}
		return &AuthorizationStateUpdate{header: h, State: body.State}, nil
	case TypeError:
		var body struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("td: decode %s: %w", probe.Type, err)
		}
		return &Error{header: h, Code: body.Code, Message: body.Message}, nil
	case TypeUpdateFile:
		var body struct {
			File File `json:"file"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("td: decode %s: %w", probe.Type, err)
		}
		return &FileUpdate{header: h, File: body.File}, nil
	case TypeUpdateOption:
		var body struct {
			Name  string      `json:"name"`
			Value OptionValue `json:"value"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("td: decode %s: %w", probe.Type, err)
		}
		return &OptionUpdate{header: h, Name: body.Name, Value: body.Value}, nil
	case TypeUpdateCall:
		var body struct {
			Call Call `json:"call"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("td: decode %s: %w", probe.Type, err)
		}
		return &CallUpdate{header: h, Call: body.Call}, nil
	}
	return &Generic{header: h}, nil
}

// decodeExtra accepts string tags verbatim and keeps any other JSON value in
// its textual form so foreign tags still correlate by identity.
func decodeExtra(raw json.RawMessage) Extra {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Extra(s)
	}
	return Extra(raw)
}

var (
	_ Event = (*Generic)(nil)
	_ Event = (*AuthorizationStateUpdate)(nil)
	_ Event = (*Error)(nil)
	_ Event = (*FileUpdate)(nil)
	_ Event = (*OptionUpdate)(nil)
	_ Event = (*CallUpdate)(nil)
)
