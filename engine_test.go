package pywire

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pywire/pywire/config"
)

func newTestEngine(t *testing.T, dev bool) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.New(config.WithPagesDir(dir), config.WithDev(dev))
	require.NoError(t, err)
	cfg.SessionTTL = time.Hour

	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, dir
}

func writeTestPage(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestEngineServesCompiledPageOnFirstRequest(t *testing.T) {
	e, dir := newTestEngine(t, false)
	writeTestPage(t, dir, "home.pyw", "!path \"/home\"\n<div>hello</div>\n")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hello")
}

func TestEngineReturnsNotFoundForUnknownRoute(t *testing.T) {
	e, _ := newTestEngine(t, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEngineShowsSurrogatePageOnCompileErrorInDevMode(t *testing.T) {
	e, dir := newTestEngine(t, true)
	writeTestPage(t, dir, "broken.pyw", "!path\n<div>oops</div>\n")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/broken", nil)
	e.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), "!path")
}

func TestEngineRoutesPywirePrefixToTransportSurface(t *testing.T) {
	e, _ := newTestEngine(t, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/_pywire/capabilities", nil)
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "websocket")
}

func TestEngineUploadManagerMintsValidatableTokens(t *testing.T) {
	e, _ := newTestEngine(t, false)
	mgr := e.UploadManager()
	require.NotNil(t, mgr)

	token := mgr.IssueToken()
	assert.NotEmpty(t, token)
}
