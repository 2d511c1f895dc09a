package device

import (
	"context"
	"sync"
)

// MemoryStore is a Store held entirely in process memory.
// Contents are lost on restart; used by tests and the "memory" backend.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]*Device
	order   []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[string]*Device)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.Clone(), nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, d *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[d.ID]; !ok {
		s.order = append(s.order, d.ID)
	}
	s.devices[d.ID] = d.Clone()
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Device, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.devices[id].Clone())
	}
	return out, nil
}
