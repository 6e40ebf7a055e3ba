package pywire

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pywire/pywire/config"
	"github.com/pywire/pywire/loader"
	"github.com/pywire/pywire/registry"
	"github.com/pywire/pywire/runtime"
	"github.com/pywire/pywire/session"
	"github.com/pywire/pywire/surrogate"
	"github.com/pywire/pywire/upload"
	"github.com/pywire/pywire/watcher"
)

// Engine wires the loader, route registry, live-session manager, upload
// manager, and file watcher into one embeddable http.Handler — the
// equivalent of the teacher's Mount()/MountStores() entry point,
// generalized from one store/template pair to a whole project directory
// of compiled pages.
type Engine struct {
	cfg     *config.Config
	reg     *registry.Registry
	loader  *loader.Loader
	sess    *session.Manager
	handler *session.Handler
	upload  *upload.Manager
	watcher *watcher.Watcher
}

// New builds an Engine rooted at cfg.PagesDir. Pages compile lazily on
// first request (C8); when cfg.Dev is set, a file watcher triggers
// recompilation and a hot-reload broadcast to live sessions on every
// change.
func New(cfg *config.Config) (*Engine, error) {
	reg := registry.New()
	ld := loader.New(cfg.PagesDir, reg)
	sess := session.NewManager(cfg.SessionTTL, cfg.SessionTTL/2)
	if cfg.Minify && !cfg.Dev {
		sess.SetHTMLTransform(runtime.MinifyHTML)
	}
	handler := session.NewHandler(reg, sess)
	up := upload.NewManager(cfg.UploadMaxBytes)

	e := &Engine{
		cfg:     cfg,
		reg:     reg,
		loader:  ld,
		sess:    sess,
		handler: handler,
		upload:  up,
	}

	if cfg.Dev {
		w, err := watcher.New(cfg.PagesDir, e.onFileChanged, true)
		if err != nil {
			return nil, fmt.Errorf("starting file watcher: %w", err)
		}
		w.Start()
		e.watcher = w
	}

	return e, nil
}

func (e *Engine) onFileChanged(filePath string) error {
	evicted := e.loader.Invalidate(filePath)
	if len(evicted) == 0 {
		return nil
	}
	log.Printf("[pywire] recompiling %s (%d dependent file(s) invalidated)", filePath, len(evicted))

	factory, err := e.loader.Load(filePath)
	if err != nil {
		log.Printf("[pywire] recompile of %s failed: %v", filePath, err)
		return err
	}

	e.sess.Broadcast(context.Background(), evicted, factory)
	return nil
}

// pywireTransportPrefix is the reserved path prefix the long-poll
// capabilities/session/poll/event endpoints are mounted under (spec §6).
const pywireTransportPrefix = "/_pywire/"

// ServeHTTP dispatches to the upload endpoint, the _pywire/ transport
// surface, then to the session handler for every other path, attempting a
// just-in-time compile for routes that have never been requested yet.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/upload" {
		e.upload.ServeHTTP(w, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, pywireTransportPrefix) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = strings.TrimPrefix(r.URL.Path, pywireTransportPrefix)
		e.handler.ServeTransport(w, r2)
		return
	}

	if _, _, ok := e.reg.Match(r.URL.Path); !ok {
		candidate := filepath.Join(e.cfg.PagesDir, filepath.Clean(r.URL.Path)+".pyw")
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		if _, err := e.loader.Load(candidate); err != nil {
			surrogate.FromError(candidate, err, e.cfg.Dev).ServeHTTP(w, r)
			return
		}
		if _, _, ok := e.reg.Match(r.URL.Path); !ok {
			http.NotFound(w, r)
			return
		}
	}
	e.handler.ServeHTTP(w, r)
}

// Close releases the watcher and session-expiry goroutines.
func (e *Engine) Close() {
	if e.watcher != nil {
		e.watcher.Close()
	}
	e.sess.Close()
}

// UploadManager exposes the upload token manager so host applications can
// mint tokens for a freshly rendered form.
func (e *Engine) UploadManager() *upload.Manager { return e.upload }
