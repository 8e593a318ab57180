package index

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryIndex индекс в памяти процесса. Записи теряются при перезапуске,
// файлы без записей удаляются при старте (artifact.Store.RemoveOrphans).
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	owners  map[string]map[string]struct{}
	paths   map[string]string

	closed atomic.Bool
}

// NewMemoryIndex создаёт пустой индекс
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries: make(map[string]*Entry),
		owners:  make(map[string]map[string]struct{}),
		paths:   make(map[string]string),
	}
}

func (m *MemoryIndex) Put(_ context.Context, e *Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	if m.closed.Load() {
		return ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[e.ID]; exists {
		return ErrDuplicateID
	}

	m.entries[e.ID] = e.clone()
	ids, ok := m.owners[e.Owner]
	if !ok {
		ids = make(map[string]struct{})
		m.owners[e.Owner] = ids
	}
	ids[e.ID] = struct{}{}
	if e.Path != "" {
		m.paths[e.Path] = e.ID
	}
	return nil
}

func (m *MemoryIndex) Get(_ context.Context, id string) (*Entry, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return e.clone(), nil
}

func (m *MemoryIndex) ListByOwner(_ context.Context, owner string, now time.Time) ([]*Entry, error) {
	m.mu.RLock()
	out := make([]*Entry, 0, len(m.owners[owner]))
	for id := range m.owners[owner] {
		e := m.entries[id]
		if e.Expired(now) {
			continue
		}
		out = append(out, e.clone())
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryIndex) RemoveExpiredBefore(_ context.Context, now time.Time) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Entry
	for id, e := range m.entries {
		if e.ExpiresAt.After(now) {
			continue
		}
		m.removeLocked(id, e)
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryIndex) Remove(_ context.Context, id string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.removeLocked(id, e)
	return e, nil
}

func (m *MemoryIndex) removeLocked(id string, e *Entry) {
	delete(m.entries, id)
	if ids, ok := m.owners[e.Owner]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(m.owners, e.Owner)
		}
	}
	if m.paths[e.Path] == id {
		delete(m.paths, e.Path)
	}
}

func (m *MemoryIndex) Contains(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.paths[path]
	return ok, nil
}

func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MemoryIndex) CountByOwner(_ context.Context, owner string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.owners[owner]), nil
}

func (m *MemoryIndex) Ping(context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (m *MemoryIndex) Close() error {
	m.closed.Store(true)
	return nil
}
