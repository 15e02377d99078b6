// Package rewards implements the loyalty accrual subsystem: per-identity
// accounts credited with energy units derived from generation activity.
// Simple CRUD; not part of the broadcast core.
package rewards

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pulse-control/ptc/internal/store"
)

// ErrNotFound is returned when an identity has no account.
var ErrNotFound = errors.New("reward account not found")

// Account accumulates energy units for one identity.
type Account struct {
	Identity   string    `json:"identity"`
	Units      float64   `json:"units"`
	TokensSeen int       `json:"tokensSeen"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// EnergyUnits converts generation activity into reward units:
// tokens × (ms / 1000) × rate. Zero tokens always costs zero.
func EnergyUnits(tokens int, ms float64, rate float64) float64 {
	if tokens <= 0 {
		return 0.0
	}
	return float64(tokens) * (ms / 1000.0) * rate
}

// Manager owns the account map and persists it through a Store.
type Manager struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	store    store.Store
	rate     float64
}

// NewManager creates a rewards manager. A nil store disables persistence.
func NewManager(st store.Store, rate float64) *Manager {
	m := &Manager{
		accounts: make(map[string]*Account),
		store:    st,
		rate:     rate,
	}
	m.load()
	return m
}

// Accrue credits an identity with units for tokens generated over the given
// elapsed milliseconds and returns the credited amount.
func (m *Manager) Accrue(identity string, tokens int, ms float64) float64 {
	units := EnergyUnits(tokens, ms, m.rate)
	m.AccrueUnits(identity, tokens, units)
	return units
}

// AccrueUnits credits precomputed units, for callers that already priced
// the generation window.
func (m *Manager) AccrueUnits(identity string, tokens int, units float64) {
	m.mu.Lock()
	acct, ok := m.accounts[identity]
	if !ok {
		acct = &Account{Identity: identity}
		m.accounts[identity] = acct
	}
	acct.Units += units
	acct.TokensSeen += tokens
	acct.UpdatedAt = time.Now().UTC()
	snapshot := *acct
	m.mu.Unlock()

	m.persist(&snapshot)
}

// Get returns the account for an identity.
func (m *Manager) Get(identity string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acct, ok := m.accounts[identity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, identity)
	}
	copied := *acct
	return &copied, nil
}

// List returns all accounts ordered by identity.
func (m *Manager) List() []*Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Account, 0, len(m.accounts))
	for _, acct := range m.accounts {
		copied := *acct
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Reset zeroes an identity's account. Unknown identities error.
func (m *Manager) Reset(identity string) error {
	m.mu.Lock()
	acct, ok := m.accounts[identity]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, identity)
	}
	acct.Units = 0
	acct.TokensSeen = 0
	acct.UpdatedAt = time.Now().UTC()
	snapshot := *acct
	m.mu.Unlock()

	m.persist(&snapshot)
	return nil
}

func (m *Manager) persist(acct *Account) {
	if m.store == nil {
		return
	}
	data, err := json.Marshal(acct)
	if err != nil {
		return
	}
	_ = m.store.Save("rewards/"+acct.Identity, data)
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
		if len(key) <= len("rewards/") || key[:len("rewards/")] != "rewards/" {
			continue
		}
		data, err := m.store.Load(key)
		if err != nil {
			continue
		}
		var acct Account
		if err := json.Unmarshal(data, &acct); err != nil {
			continue
		}
		m.accounts[acct.Identity] = &acct
	}
}
