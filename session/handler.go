package session

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pywire/pywire/registry"
	"github.com/pywire/pywire/wire"
)

// PollTimeout bounds how long GET /_pywire/poll blocks waiting for a
// message to arrive (spec §4.11, §5 "Poll endpoint: waits ... (<= 30 s)").
const PollTimeout = 30 * time.Second

// ProtocolVersion is reported by the capabilities endpoint (spec §6).
const ProtocolVersion = "1"

// HandlerConfig configures Handler, grounded on the teacher's MountConfig
// functional-options shape (Upgrader + SessionStore fields), generalized
// from one fixed store/template pair to the whole route registry.
type HandlerConfig struct {
	Upgrader   *websocket.Upgrader
	CookieName string
	DisableWS  bool
}

// Option is a functional option for Handler.
type Option func(*HandlerConfig)

// WithUpgrader overrides the default permissive-origin upgrader.
func WithUpgrader(u *websocket.Upgrader) Option {
	return func(c *HandlerConfig) { c.Upgrader = u }
}

// WithCookieName overrides the long-poll session cookie's name.
func WithCookieName(name string) Option {
	return func(c *HandlerConfig) { c.CookieName = name }
}

// WithoutWebSocket disables the WebSocket upgrade path, forcing long-poll
// for every client.
func WithoutWebSocket() Option {
	return func(c *HandlerConfig) { c.DisableWS = true }
}

// Handler dispatches requests against the route registry, serving the
// initial page render on GET and running the matching transport (WebSocket
// upgrade or JSON long-poll) for live interaction — the combined
// responsibility of the teacher's liveHandler.ServeHTTP, generalized
// across every route instead of one Mount call per store.
type Handler struct {
	reg    *registry.Registry
	sess   *Manager
	config HandlerConfig
}

// NewHandler returns a Handler serving routes from reg, tracking live
// sessions in sess.
func NewHandler(reg *registry.Registry, sess *Manager, opts ...Option) *Handler {
	config := HandlerConfig{
		Upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		CookieName: "pywire_session",
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Handler{reg: reg, sess: sess, config: config}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, params, ok := h.reg.Match(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if !h.config.DisableWS && websocket.IsWebSocketUpgrade(r) {
		h.handleWebSocket(w, r, route, params)
		return
	}
	h.handleHTTP(w, r, route, params)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request, route *registry.Route, params map[string]string) {
	conn, err := h.config.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[session] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	page := route.NewInstance()
	ctx := withRouteParams(r.Context(), params)
	if err := page.Init(ctx); err != nil {
		log.Printf("[session] init failed: %v", err)
		return
	}
	html, err := page.Render(ctx, true)
	if err != nil {
		log.Printf("[session] initial render failed: %v", err)
		return
	}

	sess, err := h.sess.Create(page)
	if err != nil {
		log.Printf("[session] create failed: %v", err)
		return
	}
	defer h.sess.Remove(sess.ID)

	sendMu := make(chan struct{}, 1)
	sendMu <- struct{}{}
	sess.SetSender(func(env []byte) error {
		<-sendMu
		defer func() { sendMu <- struct{}{} }()
		return conn.WriteMessage(websocket.TextMessage, env)
	})

	initFrame, _ := wire.Encode(wire.TypeInit, sess.ID, wire.InitPayload{HTML: sess.applyTransform(html), SessionID: sess.ID})
	if err := conn.WriteMessage(websocket.TextMessage, initFrame); err != nil {
		log.Printf("[session] writing init frame failed: %v", err)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[session] websocket error: %v", err)
			}
			return
		}

		env, err := wire.Decode(data)
		if err != nil {
			continue
		}
		sess.Touch()
		switch env.Type {
		case wire.TypeEvent:
			evt, err := wire.DecodeEvent(env)
			if err != nil {
				continue
			}
			if err := sess.HandleEvent(ctx, evt.Name, evt.Args); err != nil {
				log.Printf("[session] handling event %q failed: %v", evt.Name, err)
			}
		case wire.TypeRelocate:
			rel, err := wire.DecodeRelocate(env)
			if err != nil {
				continue
			}
			if err := h.relocate(ctx, sess, rel.Path); err != nil {
				log.Printf("[session] relocating to %q failed: %v", rel.Path, err)
			}
		case wire.TypeInit:
			// The session already exists by the time a client can send
			// frames over this connection; nothing further to bind.
		}
	}
}

// relocate switches sess to the page matching path, re-running on_load
// (spec §4.11 "relocate{path}"). Falls back to a reload frame when the
// path doesn't match any route or the new page fails to construct.
func (h *Handler) relocate(ctx context.Context, sess *Session, path string) error {
	route, params, ok := h.reg.Match(path)
	if !ok {
		payload, _ := wire.Encode(wire.TypeReload, sess.ID, wire.ReloadPayload{Reason: "no page matches " + path})
		return sess.Send(payload)
	}
	page := route.NewInstance()
	routedCtx := withRouteParams(ctx, params)
	return sess.Migrate(routedCtx, page)
}

func (h *Handler) handleHTTP(w http.ResponseWriter, r *http.Request, route *registry.Route, params map[string]string) {
	if r.Method == http.MethodGet {
		page := route.NewInstance()
		ctx := withRouteParams(r.Context(), params)
		if err := page.Init(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		html, err := page.Render(ctx, true)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		sess, err := h.sess.Create(page)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     h.config.CookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(sess.applyTransform(html)))
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cookie, err := r.Cookie(h.config.CookieName)
	if err != nil {
		http.Error(w, "missing session cookie", http.StatusBadRequest)
		return
	}
	sess, ok := h.sess.Get(cookie.Value)
	if !ok {
		http.Error(w, "unknown or expired session", http.StatusGone)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}
	env, err := wire.Decode(body)
	if err != nil || env.Type != wire.TypeEvent {
		http.Error(w, "malformed event frame", http.StatusBadRequest)
		return
	}
	evt, err := wire.DecodeEvent(env)
	if err != nil {
		http.Error(w, "malformed event payload", http.StatusBadRequest)
		return
	}

	var out []byte
	sess.SetSender(func(frame []byte) error {
		out = frame
		return nil
	})
	defer sess.SetSender(nil) // otherwise a later async Send (hot-reload broadcast) writes into this dead closure instead of queueing

	sess.Touch()
	if err := sess.HandleEvent(r.Context(), evt.Name, evt.Args); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

// ServeTransport dispatches the _pywire/ long-poll transport surface (spec
// §6): capabilities negotiation, session creation, polling the outbound
// queue, and posting a single event by session id rather than cookie. Mount
// this under the "_pywire/" prefix, e.g. mux.Handle("/_pywire/",
// http.StripPrefix("/_pywire/", handler.ServeTransport)).
func (h *Handler) ServeTransport(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/capabilities", "capabilities":
		h.handleCapabilities(w, r)
	case "/session", "session":
		h.handleCreateSession(w, r)
	case "/poll", "poll":
		h.handlePoll(w, r)
	case "/event", "event":
		h.handleTransportEvent(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Transports   []string `json:"transports"`
		WebTransport bool     `json:"webtransport"`
		Version      string   `json:"version"`
	}{
		Transports:   []string{"websocket", "http-poll"},
		WebTransport: false,
		Version:      ProtocolVersion,
	})
}

// handleCreateSession implements POST /session: resolves body.Path against
// the registry, constructs and initializes a page instance, and registers a
// session for it. The initial render is queued as a TypeInit frame for the
// client's first poll rather than returned inline, mirroring how a
// WebSocket client receives its init frame right after connecting.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	route, params, ok := h.reg.Match(req.Path)
	if !ok {
		http.Error(w, "no page matches path", http.StatusNotFound)
		return
	}

	page := route.NewInstance()
	ctx := withRouteParams(r.Context(), params)
	if err := page.Init(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	html, err := page.Render(ctx, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sess, err := h.sess.Create(page)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	initFrame, _ := wire.Encode(wire.TypeInit, sess.ID, wire.InitPayload{HTML: sess.applyTransform(html), SessionID: sess.ID})
	sess.Send(initFrame)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		SessionID string `json:"sessionId"`
	}{SessionID: sess.ID})
}

// handlePoll implements GET /poll?session=<id>, waiting up to PollTimeout
// for queued messages.
func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sess.Get(r.URL.Query().Get("session"))
	if !ok {
		http.Error(w, "unknown or expired session", http.StatusGone)
		return
	}
	sess.Touch()
	frames := sess.Poll(r.Context(), PollTimeout)

	raws := make([]json.RawMessage, len(frames))
	for i, f := range frames {
		raws[i] = f
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(raws)
}

// handleTransportEvent implements POST /event (header X-PyWire-Session;
// body {handler, data}), returning the one resulting message inline.
func (h *Handler) handleTransportEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sess.Get(r.Header.Get("X-PyWire-Session"))
	if !ok {
		http.Error(w, "unknown or expired session", http.StatusGone)
		return
	}
	var req struct {
		Handler string                 `json:"handler"`
		Data    map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed event body", http.StatusBadRequest)
		return
	}

	var out []byte
	sess.SetSender(func(frame []byte) error {
		out = frame
		return nil
	})
	defer sess.SetSender(nil)

	sess.Touch()
	if err := sess.HandleEvent(r.Context(), req.Handler, req.Data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

type routeParamsKey struct{}

func withRouteParams(ctx context.Context, params map[string]string) context.Context {
	return context.WithValue(ctx, routeParamsKey{}, params)
}

// RouteParams retrieves the route parameters matched for the current
// request, for generated page code reading !path variables.
func RouteParams(ctx context.Context) map[string]string {
	params, _ := ctx.Value(routeParamsKey{}).(map[string]string)
	return params
}
