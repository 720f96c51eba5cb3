package cart

import "sync"

// Manager hands out one Coordinator per authenticated user so concurrent
// requests from the same user share a single serialized mutation path.
type Manager struct {
	mu     sync.Mutex
	deps   CoordinatorDeps
	byUser map[string]*Coordinator
}

func NewManager(deps CoordinatorDeps) *Manager {
	return &Manager{
		deps:   deps,
		byUser: map[string]*Coordinator{},
	}
}

func (m *Manager) ForUser(userID string) (*Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if coord, ok := m.byUser[userID]; ok {
		return coord, nil
	}
	coord, err := NewCoordinator(m.deps)
	if err != nil {
		return nil, err
	}
	m.byUser[userID] = coord
	return coord, nil
}

// Drop forgets a user's cart state. Called on sign-out.
func (m *Manager) Drop(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if coord, ok := m.byUser[userID]; ok {
		coord.Store().Reset()
		delete(m.byUser, userID)
	}
}
