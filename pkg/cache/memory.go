package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const DefaultCapacity = 10_000

// Memory is a bounded LRU map with per-entry expiry.
type Memory struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*memoryEntry)
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.removeElement(el)
		return nil, false, nil
	}
	m.ll.MoveToFront(el)
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	if el, ok := m.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value = val
		e.expiresAt = expiresAt
		m.ll.MoveToFront(el)
		return nil
	}

	m.items[key] = m.ll.PushFront(&memoryEntry{key: key, value: val, expiresAt: expiresAt})
	for m.ll.Len() > m.capacity {
		m.evict()
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.removeElement(el)
	}
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ll.Init()
	m.items = make(map[string]*list.Element)
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

func (m *Memory) evict() {
	if el := m.ll.Back(); el != nil {
		m.removeElement(el)
	}
}

func (m *Memory) removeElement(el *list.Element) {
	m.ll.Remove(el)
	delete(m.items, el.Value.(*memoryEntry).key)
}
