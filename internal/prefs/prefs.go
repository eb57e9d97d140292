// Package prefs defines the embedder's preference-store contract: the
// key/value service the Supervisor and Updater read defaults from and
// publish observability values to. It is an external collaborator in the
// specification's own terms; only its interface and an in-memory stand-in
// are implemented here.
package prefs

import "sync"

// Keys registered at startup. Missing keys fall back to their documented
// default silently.
const (
	KeyCDPPort          = "server.cdp_port"
	KeyMCPPort          = "server.mcp_port"
	KeyExtensionPort    = "server.extension_port"
	KeyAllowRemoteInMCP = "server.allow_remote_in_mcp"
	KeyRestartRequested = "server.restart_requested"
	KeyVersion          = "server.version"
)

// Defaults mirror the documented defaults for each registered key.
var Defaults = map[string]interface{}{
	KeyCDPPort:          9000,
	KeyMCPPort:          9100,
	KeyExtensionPort:    9300,
	KeyAllowRemoteInMCP: false,
	KeyRestartRequested: false,
	KeyVersion:          "",
}

// Store is the embedder's preference-store contract: get/set by key, with
// the caller responsible for type assertions since the store is opaque
// key/value storage, not a typed schema.
type Store interface {
	GetInt(key string) int
	GetBool(key string) bool
	GetString(key string) string
	SetInt(key string, value int)
	SetBool(key string, value bool)
	SetString(key string, value string)
}

// InMemoryStore is a Store backed by a map, seeded with Defaults, suitable
// for tests and for the demo CLI harness that has no real embedder to talk
// to.
type InMemoryStore struct {
	mu     sync.Mutex
	values map[string]interface{}
}

// NewInMemoryStore returns a Store pre-populated with Defaults.
func NewInMemoryStore() *InMemoryStore {
	values := make(map[string]interface{}, len(Defaults))
	for k, v := range Defaults {
		values[k] = v
	}
	return &InMemoryStore{values: values}
}

func (s *InMemoryStore) GetInt(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key].(int); ok {
		return v
	}
	return 0
}

func (s *InMemoryStore) GetBool(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key].(bool); ok {
		return v
	}
	return false
}

func (s *InMemoryStore) GetString(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key].(string); ok {
		return v
	}
	return ""
}

func (s *InMemoryStore) SetInt(key string, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *InMemoryStore) SetBool(key string, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *InMemoryStore) SetString(key string, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}
