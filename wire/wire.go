// Package wire defines the message set exchanged between a live session
// and its client over WebSocket, long-poll, or WebTransport (spec §6), and
// the codecs that (de)serialize it. Every message carries an explicit
// "type" discriminator so a single compact JSON envelope works across all
// three transports without per-transport framing — the same approach the
// teacher's mount.go takes for its own WebSocket update envelope
// (UpdateResponse), generalized here to the full message set the
// specification defines instead of one fixed update-response shape.
package wire

import "encoding/json"

// Type discriminates the message envelope's Payload.
type Type string

const (
	// TypeInit is sent once, immediately after a session is established:
	// the full initial render plus the session id the client must echo
	// back on every subsequent message.
	TypeInit Type = "init"
	// TypeEvent is sent client -> server: a DOM event firing a handler.
	TypeEvent Type = "event"
	// TypeRelocate is sent client -> server: switch the session to the
	// page matching a new path, re-running on_load (spec §4.11).
	TypeRelocate Type = "relocate"
	// TypeUpdate is sent server -> client: the freshly re-rendered HTML
	// after handling an event or a hot-reload broadcast.
	TypeUpdate Type = "update"
	// TypeReload is sent server -> client: instructs a full page reload,
	// used when hot-reload migration cannot preserve enough state.
	TypeReload Type = "reload"
	// TypeConsole is sent server -> client: a developer-facing log line
	// (dev mode only).
	TypeConsole Type = "console"
	// TypeErrorTrace is sent server -> client: a structured error with
	// source location, matching the SourceTrace shape in errors.go.
	TypeErrorTrace Type = "error_trace"
)

// Envelope is the wire-level wrapper every message is sent in.
type Envelope struct {
	Type      Type            `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// InitPayload is TypeInit's payload.
type InitPayload struct {
	HTML      string `json:"html"`
	SessionID string `json:"session_id"`
}

// EventPayload is TypeEvent's payload: a handler name and its normalized
// keyword arguments (spec §4.7 dataset-derived payload).
type EventPayload struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// RelocatePayload is TypeRelocate's payload: the path to switch the
// session's page to.
type RelocatePayload struct {
	Path string `json:"path"`
}

// UpdatePayload is TypeUpdate's payload.
type UpdatePayload struct {
	HTML string `json:"html"`
}

// ReloadPayload is TypeReload's payload.
type ReloadPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ConsolePayload is TypeConsole's payload.
type ConsolePayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Encode marshals typ and payload into a complete Envelope.
func Encode(typ Type, sessionID string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, SessionID: sessionID, Payload: raw})
}

// Decode parses a raw frame into its Envelope wrapper. Callers then
// type-switch on Type and json.Unmarshal Payload into the matching
// *Payload struct.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// DecodeEvent is a convenience helper for the common server-side case of
// reading an incoming client event frame.
func DecodeEvent(env Envelope) (EventPayload, error) {
	var p EventPayload
	err := json.Unmarshal(env.Payload, &p)
	return p, err
}

// DecodeRelocate reads an incoming client relocate frame.
func DecodeRelocate(env Envelope) (RelocatePayload, error) {
	var p RelocatePayload
	err := json.Unmarshal(env.Payload, &p)
	return p, err
}
