package backend

import (
	"container/list"
	"sync"
)

// MemoryKV is the volatile in-process adapter. It preserves insertion order
// for KeyAt, so enumeration is deterministic, and it can never fail: every
// method returns a nil error. It doubles as the tiered store's shadow copy.
// Safe for concurrent use.
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[string]*list.Element
	order   *list.List // of memEntry, insertion order
}

type memEntry struct {
	key   string
	value string
}

// NewMemoryKV creates an empty in-process adapter.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (m *MemoryKV) Read(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	el, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	return el.Value.(memEntry).value, true, nil
}

func (m *MemoryKV) Write(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		el.Value = memEntry{key: key, value: value}
		return nil
	}
	m.entries[key] = m.order.PushBack(memEntry{key: key, value: value})
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.order.Remove(el)
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryKV) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*list.Element)
	m.order = list.New()
	return nil
}

func (m *MemoryKV) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MemoryKV) KeyAt(index int) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index < 0 || index >= len(m.entries) {
		return "", false, nil
	}
	el := m.order.Front()
	for i := 0; i < index; i++ {
		el = el.Next()
	}
	return el.Value.(memEntry).key, true, nil
}
