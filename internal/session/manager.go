package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulse-control/ptc/internal/store"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Session is one generation session owned by an identity.
type Session struct {
	ID              string    `json:"id"`
	Identity        string    `json:"identity"`
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"createdAt"`
	TokensGenerated int       `json:"tokensGenerated"`
	EnergySpent     float64   `json:"energySpent"`
}

// Manager provides CRUD over sessions, persisted through a Store.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    store.Store
}

// NewManager creates a session manager. A nil store disables persistence.
func NewManager(st store.Store) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		store:    st,
	}
	m.load()
	return m
}

// Create opens a new session for an identity.
func (m *Manager) Create(identity, model string) (*Session, error) {
	if identity == "" {
		identity = DefaultIdentity
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Identity:  identity,
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	snapshot := *sess
	m.mu.Unlock()

	m.persist(&snapshot)
	return &snapshot, nil
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copied := *sess
	return &copied, nil
}

// List returns all sessions ordered by creation time.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		copied := *sess
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Delete removes a session. Unknown IDs error.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if m.store != nil {
		_ = m.store.Delete("sessions/" + id)
	}
	return nil
}

// AddUsage folds generation activity into a session's totals. Unknown
// sessions are ignored; the scheduler must not fail on a raced delete.
func (m *Manager) AddUsage(id string, tokens int, energyCost float64) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	sess.TokensGenerated += tokens
	sess.EnergySpent += energyCost
	snapshot := *sess
	m.mu.Unlock()

	m.persist(&snapshot)
}

func (m *Manager) persist(sess *Session) {
	if m.store == nil {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	_ = m.store.Save("sessions/"+sess.ID, data)
}

func (m *Manager) load() {
	if m.store == nil {
		return
	}
	keys, err := m.store.Keys()
	if err != nil {
		return
	}
	for _, key := range keys {
		if !strings.HasPrefix(key, "sessions/") {
			continue
		}
		data, err := m.store.Load(key)
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		m.sessions[sess.ID] = &sess
	}
}
