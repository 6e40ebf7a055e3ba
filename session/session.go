// Package session implements the live-session layer (C11): one Session
// wraps a single page instance and its transport-agnostic message
// dispatch; Manager owns the session table with idle expiry, grounded on
// the teacher's internal/page.Registry (map + RWMutex + ticker-driven
// cleanup), generalized from a page-instance cache keyed by application
// to a live-session cache keyed by session id.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pywire/pywire"
	"github.com/pywire/pywire/runtime"
	"github.com/pywire/pywire/wire"
)

// Session is one live connection's state: its current page instance, the
// route parameters/query/request context it was created with, and the
// transport-specific sender it's currently bound to.
//
// A long-poll session has no sender bound between requests, so a message
// produced while it's idle (e.g. a hot-reload migration) is appended to
// queue and delivered on the next Poll call instead (spec §3 Session
// "outbound_queue", §5 "per-session outbound queue: single producer,
// single consumer").
type Session struct {
	ID        string
	mu        sync.Mutex
	page      runtime.PageClass
	lastSeen  time.Time
	send      func(env []byte) error
	transform func(string) string
	queue     [][]byte
	notify    chan struct{}
}

// newSessionID returns a random hex session id (16 bytes from crypto/rand,
// hex-encoded).
func newSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Touch refreshes the session's idle-expiry clock.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// Page returns the session's current page instance.
func (s *Session) Page() runtime.PageClass {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// SetSender rebinds the session to a new transport (e.g. a reconnecting
// long-poll client), so server-initiated messages reach the live
// connection rather than a stale one.
func (s *Session) SetSender(send func(env []byte) error) {
	s.mu.Lock()
	s.send = send
	s.mu.Unlock()
}

// Send delivers a raw wire envelope to the session's current transport if
// one is bound (WebSocket, or a long-poll request actively dispatching an
// event); otherwise it queues env for the next Poll, so a server-initiated
// message (e.g. a hot-reload broadcast) reaches an idle long-poll session
// instead of being dropped.
func (s *Session) Send(env []byte) error {
	s.mu.Lock()
	send := s.send
	if send == nil {
		s.queue = append(s.queue, env)
		select {
		case s.notify <- struct{}{}:
		default:
		}
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return send(env)
}

// Poll waits up to timeout for queued outbound messages (spec §4.11 "poll
// endpoint: waits up to 30s"), returning immediately if any are already
// queued. Returns an empty slice, never nil, if nothing arrived in time.
func (s *Session) Poll(ctx context.Context, timeout time.Duration) [][]byte {
	if drained := s.drainQueue(); len(drained) > 0 {
		return drained
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.notify:
	case <-timer.C:
	case <-ctx.Done():
	}
	return s.drainQueue()
}

func (s *Session) drainQueue() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return [][]byte{}
	}
	out := s.queue
	s.queue = nil
	return out
}

// HandleEvent dispatches a client event to the page, sends the re-rendered
// update, and reports any HandlerError back over the wire as an
// error_trace (spec §7: handler panics/errors surface structured, not as a
// raw 500).
func (s *Session) HandleEvent(ctx context.Context, name string, args map[string]interface{}) error {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()

	html, err := page.HandleEvent(ctx, name, args)
	if err != nil {
		return s.sendError(err)
	}
	payload, _ := wire.Encode(wire.TypeUpdate, s.ID, wire.UpdatePayload{HTML: s.applyTransform(html)})
	return s.Send(payload)
}

// applyTransform runs the session's configured post-render transform (e.g.
// production-mode HTML minification), if any.
func (s *Session) applyTransform(html string) string {
	s.mu.Lock()
	transform := s.transform
	s.mu.Unlock()
	if transform == nil {
		return html
	}
	return transform(html)
}

func (s *Session) sendError(err error) error {
	var trace []pywire.SourceTrace
	var herr *pywire.HandlerError
	if errors.As(err, &herr) {
		trace = herr.Trace
	}
	payload, _ := wire.Encode(wire.TypeErrorTrace, s.ID, struct {
		Handler string               `json:"handler,omitempty"`
		Trace   []pywire.SourceTrace `json:"trace"`
		Message string               `json:"message"`
	}{Trace: trace, Message: err.Error()})
	return s.Send(payload)
}

// Migrate replaces the session's page instance with newPage, copying every
// non-reserved field from the old instance first (spec §4.11 hot-reload
// state migration), then sends a full update frame — or a reload frame if
// migration could not be performed cleanly.
func (s *Session) Migrate(ctx context.Context, newPage runtime.PageClass) error {
	s.mu.Lock()
	oldPage := s.page
	s.mu.Unlock()

	if oldPage != nil {
		for _, field := range oldPage.State().Fields() {
			newPage.State().Set(field, oldPage.State().Get(field))
		}
	}

	if err := newPage.Init(ctx); err != nil {
		payload, _ := wire.Encode(wire.TypeReload, s.ID, wire.ReloadPayload{Reason: err.Error()})
		s.mu.Lock()
		s.page = newPage
		s.mu.Unlock()
		return s.Send(payload)
	}

	html, err := newPage.Render(ctx, false)
	if err != nil {
		payload, _ := wire.Encode(wire.TypeReload, s.ID, wire.ReloadPayload{Reason: err.Error()})
		s.mu.Lock()
		s.page = newPage
		s.mu.Unlock()
		return s.Send(payload)
	}

	s.mu.Lock()
	s.page = newPage
	s.mu.Unlock()

	payload, _ := wire.Encode(wire.TypeUpdate, s.ID, wire.UpdatePayload{HTML: s.applyTransform(html)})
	return s.Send(payload)
}

// Manager owns every live session, evicting ones idle past TTL.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	ttl       time.Duration
	stop      chan struct{}
	transform func(string) string
}

// NewManager starts a Manager with background expiry sweeps every
// interval.
func NewManager(ttl, interval time.Duration) *Manager {
	m := &Manager{
		sessions: map[string]*Session{},
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go m.runCleanup(interval)
	return m
}

// SetHTMLTransform installs a post-render transform (e.g.
// runtime.MinifyHTML) applied to every HTML frame sent to a live session
// from this point forward.
func (m *Manager) SetHTMLTransform(fn func(string) string) {
	m.mu.Lock()
	m.transform = fn
	m.mu.Unlock()
}

// Create registers a new session wrapping page and returns it.
func (m *Manager) Create(page runtime.PageClass) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	m.mu.RLock()
	transform := m.transform
	m.mu.RUnlock()
	s := &Session{ID: id, page: page, lastSeen: time.Now(), transform: transform, notify: make(chan struct{}, 1)}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove evicts a session immediately (e.g. on clean disconnect).
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Broadcast migrates every live session whose page's FilePath or
// Dependencies include one of the changed files, using next to produce a
// fresh instance for each affected session — the hot-reload fan-out (spec
// §4.9). changed is the set of absolute paths the loader just evicted.
func (m *Manager) Broadcast(ctx context.Context, changed []string, next func() runtime.PageClass) {
	changedSet := make(map[string]bool, len(changed))
	for _, f := range changed {
		changedSet[f] = true
	}

	m.mu.RLock()
	targets := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		page := s.Page()
		if changedSet[page.FilePath()] {
			targets = append(targets, s)
			continue
		}
		for _, dep := range page.Dependencies() {
			if changedSet[dep] {
				targets = append(targets, s)
				break
			}
		}
	}
	m.mu.RUnlock()

	for _, s := range targets {
		if err := s.Migrate(ctx, next()); err != nil {
			log.Printf("[session] migrating %s failed: %v", s.ID, err)
		}
	}
}

func (m *Manager) runCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.mu.Lock()
		stale := s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(m.sessions, id)
		}
	}
}

// Close stops the background cleanup loop.
func (m *Manager) Close() {
	close(m.stop)
}
