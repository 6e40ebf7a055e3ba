package runtime

import "sync"

// reservedStateKeys are never copied during hot-reload migration (spec
// §4.11). They remain visible to expressions through State.Env.
var reservedStateKeys = map[string]bool{
	"request": true, "params": true, "query": true, "path": true, "url": true,
	"user": true, "errors": true, "loading": true,
}

// IsReservedStateKey reports whether name is a framework-reserved state key
// (spec §4.11 migration skip-list) or begins with an underscore.
func IsReservedStateKey(name string) bool {
	if name == "" {
		return false
	}
	if name[0] == '_' {
		return true
	}
	return reservedStateKeys[name]
}

// State holds one page instance's attribute-style fields: params, query,
// path, url, user, loading, errors, plus every module-level field lifted
// from the code section. Field order is preserved for deterministic
// iteration (e.g. hot-reload migration logging, dev error pages).
type State struct {
	mu     sync.RWMutex
	order  []string
	values map[string]interface{}
}

// NewState returns an empty State.
func NewState() *State {
	return &State{values: map[string]interface{}{}}
}

// Get returns a field's current value.
func (s *State) Get(name string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[name]
}

// Set assigns a field, recording insertion order on first write.
func (s *State) Set(name string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[name]; !exists {
		s.order = append(s.order, name)
	}
	s.values[name] = value
}

// Has reports whether name has been set.
func (s *State) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[name]
	return ok
}

// Fields returns every non-reserved field name in insertion order —
// exactly the set the hot-reload migrator copies onto a new instance.
func (s *State) Fields() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.order))
	for _, name := range s.order {
		if !IsReservedStateKey(name) {
			out = append(out, name)
		}
	}
	return out
}

// Snapshot returns a shallow copy of every field, for comparisons in tests
// (e.g. hot-reload migration idempotence).
func (s *State) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Env builds an expression-evaluation environment from the current state
// overlaid with loop/extra bindings (loop variables take precedence, since
// an inner scope always shadows page state).
func (s *State) Env(extra map[string]interface{}) Env {
	s.mu.RLock()
	env := make(Env, len(s.values)+len(extra))
	for k, v := range s.values {
		env[k] = v
	}
	s.mu.RUnlock()
	for k, v := range extra {
		env[k] = v
	}
	return env
}
