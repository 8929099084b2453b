// Package killswitch holds the global emergency stop.
package killswitch

import (
	"context"
	"strings"
	"sync"
	"time"
)

// State is the persisted kill-switch record.
type State struct {
	Enabled     bool   `json:"enabled"`
	Reason      string `json:"reason"`
	ActivatedAt string `json:"activatedAt,omitempty"`
	ActivatedBy string `json:"activatedBy"`
}

// Store persists the switch. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context) (State, error)
	Put(ctx context.Context, state State) error
}

var allowedWhenActive = map[string]struct{}{
	"audit.view":          {},
	"approvals.view":      {},
	"kill_switch.disable": {},
	"kill_switch.status":  {},
	"help.view":           {},
}

// AllowedWhenActive reports whether actionType may run while the switch
// is engaged.
func AllowedWhenActive(actionType string) bool {
	_, ok := allowedWhenActive[actionType]
	return ok
}

// IsStopPhrase reports whether text contains phrase, ignoring case.
func IsStopPhrase(text, phrase string) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), phrase)
}

// Switch wraps a Store with the engage/release operations.
type Switch struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Switch {
	return &Switch{store: store, now: time.Now}
}

func (s *Switch) State(ctx context.Context) (State, error) {
	return s.store.Get(ctx)
}

// Set engages or releases the switch. ActivatedAt is only recorded when
// engaging.
func (s *Switch) Set(ctx context.Context, enabled bool, reason, by string) (State, error) {
	state := State{Enabled: enabled, Reason: reason, ActivatedBy: by}
	if enabled {
		state.ActivatedAt = s.now().UTC().Format(time.RFC3339Nano)
	}
	if err := s.store.Put(ctx, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// MemoryStore keeps the switch in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	state State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(_ context.Context) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, nil
}

func (m *MemoryStore) Put(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}
