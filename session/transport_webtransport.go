package session

import "fmt"

// Transport is the shape of a server-to-client frame channel.
// WebTransportSession is its only implementation; Handler does not use it,
// since the WebSocket and long-poll paths deliver frames through
// Session.SetSender closures.
type Transport interface {
	// Send delivers a server-initiated wire frame to the client.
	Send(frame []byte) error
	// Close tears down the underlying connection, if any.
	Close() error
}

// WebTransportSession is a documented stand-in for an HTTP/3
// WebTransport-backed session (spec §4.11 names "webtransport" alongside
// "websocket" and "poll" as a session kind). Unlike WebSocket and
// long-poll, a real WebTransport implementation needs an HTTP/3 QUIC
// server; nothing in this module's dependency set provides one, so this
// type documents the contract a future Transport would fulfil
// (unordered, unreliable datagrams carrying wire.Envelope frames, plus a
// reliable bidirectional stream for the initial handshake) without
// attempting a partial QUIC implementation on top of net/http.
type WebTransportSession struct {
	SessionID string
}

// Send always fails: see the type doc. Callers should fall back to
// WebSocket or long-poll when a client requests "webtransport" and this
// build has no real transport wired in.
func (s *WebTransportSession) Send([]byte) error {
	return fmt.Errorf("webtransport session %s: no HTTP/3 transport is wired into this build", s.SessionID)
}

// Close is a no-op; there is no underlying connection to release.
func (s *WebTransportSession) Close() error { return nil }
