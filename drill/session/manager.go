package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wricardo/evacuation-drill/drill/engine"
)

var ErrSessionNotFound = errors.New("session not found")

// Info is a monitoring copy of one connection's progress. The live occupant
// state stays with the connection handler; handlers push copies here.
type Info struct {
	ID          string          `json:"id"`
	RemoteAddr  string          `json:"remote_addr"`
	State       string          `json:"state"`
	Name        string          `json:"name,omitempty"`
	Pos         engine.Position `json:"pos"`
	Entered     bool            `json:"entered"`
	Exited      bool            `json:"exited"`
	HasMask     bool            `json:"has_mask"`
	Moves       int             `json:"moves"`
	Denied      int             `json:"denied"`
	ConnectedAt time.Time       `json:"connected_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Manager keeps track of live drill connections
type Manager struct {
	sessions map[string]*Info
	mu       sync.RWMutex
}

// NewManager creates a new session manager
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Info),
	}
}

// Create registers a new connection and returns a copy of its record
func (m *Manager) Create(remoteAddr, state string) Info {
	now := time.Now()
	info := &Info{
		ID:          uuid.NewString(),
		RemoteAddr:  remoteAddr,
		State:       state,
		ConnectedAt: now,
		UpdatedAt:   now,
	}

	m.mu.Lock()
	m.sessions[info.ID] = info
	m.mu.Unlock()

	return *info
}

// Update applies fn to the stored record under the manager lock
func (m *Manager) Update(id string, fn func(*Info)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}
	fn(info)
	info.UpdatedAt = time.Now()
	return nil
}

// Get returns a copy of a session record
func (m *Manager) Get(id string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, exists := m.sessions[id]
	if !exists {
		return Info{}, ErrSessionNotFound
	}
	return *info, nil
}

// List returns copies of all records, oldest connection first
func (m *Manager) List() []Info {
	m.mu.RLock()
	result := make([]Info, 0, len(m.sessions))
	for _, info := range m.sessions {
		result = append(result, *info)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].ConnectedAt.Equal(result[j].ConnectedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].ConnectedAt.Before(result[j].ConnectedAt)
	})
	return result
}

// Delete removes a session record
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CountByState groups live sessions by protocol state
func (m *Manager) CountByState() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, info := range m.sessions {
		counts[info.State]++
	}
	return counts
}
