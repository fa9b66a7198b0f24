package inventory

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an Inventory backed by a map.
type Memory struct {
	mu    sync.RWMutex
	hosts map[string]Host
}

// NewMemory returns an in-memory inventory holding copies of the given
// hosts.
func NewMemory(hosts ...Host) (*Memory, error) {
	m := &Memory{hosts: make(map[string]Host, len(hosts))}
	for _, h := range hosts {
		if err := m.Add(context.Background(), h); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add stores or replaces a host record.
func (m *Memory) Add(ctx context.Context, h Host) error {
	if err := h.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts[h.ID] = h
	return nil
}

func (m *Memory) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hosts, id)
	return nil
}

func (m *Memory) Host(ctx context.Context, id string) (*Host, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.hosts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHostNotFound, id)
	}
	return &h, nil
}

func (m *Memory) HostByMAC(ctx context.Context, mac string) (*Host, error) {
	want, err := NormalizeMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHostNotFound, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, h := range m.hosts {
		if h.Interface == nil {
			continue
		}
		if got, _ := NormalizeMAC(h.Interface.MAC); got == want {
			h := h
			return &h, nil
		}
	}
	return nil, fmt.Errorf("%w: mac %s", ErrHostNotFound, want)
}
