// Package upload implements the token-gated upload endpoint (spec §6):
// POST /upload accepts a multipart form, checked against a caller-issued
// token set and a safety size limit, and returns a field -> upload_id
// mapping. Upload records are handed to the validate package at form
// validation time as *validate.FileUpload. Retention/cleanup policy is an
// external collaborator's responsibility (spec §5 Non-goals); this package
// only mints and serves records for the lifetime of the process.
package upload

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/pywire/pywire/validate"
)

// Record is a stored upload: the raw bytes plus the metadata the
// validator's file rules (max-size, accept) check against.
type Record struct {
	ID          string
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// AsFileUpload adapts a Record to the shape validate.ValidateField expects.
func (r *Record) AsFileUpload() *validate.FileUpload {
	return &validate.FileUpload{
		Filename:    r.Filename,
		ContentType: r.ContentType,
		Size:        int64(len(r.Data)),
	}
}

// Manager issues upload tokens, enforces the safety size limit, and keeps
// accepted records addressable by id for later validation (spec §5: "Upload
// token set: concurrently read/written; protected by a simple guard").
type Manager struct {
	mu      sync.RWMutex
	tokens  map[string]bool
	records map[string]*Record
	maxSize int64
}

// NewManager returns a Manager enforcing maxSize bytes per request body.
func NewManager(maxSize int64) *Manager {
	return &Manager{
		tokens:  map[string]bool{},
		records: map[string]*Record{},
		maxSize: maxSize,
	}
}

// IssueToken mints and registers a new upload token, returned to the
// client so a subsequent POST /upload can be authorized.
func (m *Manager) IssueToken() string {
	token := uuid.NewString()
	m.mu.Lock()
	m.tokens[token] = true
	m.mu.Unlock()
	return token
}

// RevokeToken removes a token, e.g. once its associated session ends.
func (m *Manager) RevokeToken(token string) {
	m.mu.Lock()
	delete(m.tokens, token)
	m.mu.Unlock()
}

func (m *Manager) validToken(token string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens[token]
}

// Record looks up a previously stored upload by id.
func (m *Manager) Record(id string) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	return r, ok
}

// ServeHTTP implements POST /upload (spec §6): rejects without a valid
// X-Upload-Token (403), rejects a Content-Length over maxSize (413),
// otherwise stores each multipart field's file under a fresh id and
// responds with the field -> upload_id JSON mapping.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := r.Header.Get("X-Upload-Token")
	if token == "" || !m.validToken(token) {
		http.Error(w, "invalid or missing upload token", http.StatusForbidden)
		return
	}

	if m.maxSize > 0 && r.ContentLength > m.maxSize {
		http.Error(w, fmt.Sprintf("upload exceeds the %s limit", humanize.Bytes(uint64(m.maxSize))), http.StatusRequestEntityTooLarge)
		return
	}

	if err := r.ParseMultipartForm(m.maxSize); err != nil {
		http.Error(w, "malformed multipart form", http.StatusBadRequest)
		return
	}

	mapping := map[string]string{}
	for field, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			id, err := m.store(field, fh)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			mapping[field] = id
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mapping)
}

func (m *Manager) store(field string, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading upload %q: %w", fh.Filename, err)
	}

	id := uuid.NewString()
	record := &Record{
		ID:          id,
		Field:       field,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}

	m.mu.Lock()
	m.records[id] = record
	m.mu.Unlock()

	return id, nil
}
