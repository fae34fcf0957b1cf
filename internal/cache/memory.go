// Package cache stores compiled bytecode so repeated evaluations of the
// same source skip parsing.
package cache

import (
	"container/list"
	"sync"

	"github.com/cryguy/qjs/internal/core"
)

// DefaultMaxEntries bounds a MemoryStore created with a non-positive size.
const DefaultMaxEntries = 256

type memEntry struct {
	key  string
	code []byte
}

// MemoryStore is an in-process LRU store.
type MemoryStore struct {
	mu    sync.Mutex
	max   int
	order *list.List // front = most recently used
	items map[string]*list.Element
}

var _ core.BytecodeStore = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding at most maxEntries scripts.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		max:   maxEntries,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (m *MemoryStore) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	m.order.MoveToFront(el)
	return el.Value.(*memEntry).code, true, nil
}

func (m *MemoryStore) Put(key string, code []byte) error {
	code = append([]byte(nil), code...)
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		el.Value.(*memEntry).code = code
		m.order.MoveToFront(el)
		return nil
	}
	m.items[key] = m.order.PushFront(&memEntry{key: key, code: code})
	for m.order.Len() > m.max {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.items, oldest.Value.(*memEntry).key)
	}
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.order.Remove(el)
		delete(m.items, key)
	}
	return nil
}

// Len returns the number of cached scripts.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
