package ttlstore

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Store. A single mutex makes Consume and
// PutIfAbsent atomic with respect to each other.
type Memory struct {
	mu    sync.Mutex
	cache *gocache.Cache
	opts  options
}

// NewMemory creates a memory store whose janitor sweeps expired entries.
func NewMemory(opts ...Option) *Memory {
	o := newOptions(opts)
	return &Memory{
		cache: gocache.New(gocache.NoExpiration, o.cleanup),
		opts:  o,
	}
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validate(key, ttl); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Set(m.opts.valueKey(key), clone(value), ttl)
	return nil
}

// PutIfAbsent implements Store.
func (m *Memory) PutIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := validate(key, ttl); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.cache.Get(m.opts.tombstoneKey(key)); found {
		return false, nil
	}
	if err := m.cache.Add(m.opts.valueKey(key), clone(value), ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	v, found := m.cache.Get(m.opts.valueKey(key))
	if !found {
		return nil, ErrNotFound
	}
	return clone(v.([]byte)), nil
}

// Consume implements Store.
func (m *Memory) Consume(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	vk := m.opts.valueKey(key)
	if v, found := m.cache.Get(vk); found {
		m.cache.Delete(vk)
		m.cache.Set(m.opts.tombstoneKey(key), struct{}{}, m.opts.tombstoneTTL)
		return v.([]byte), nil
	}

	if _, found := m.cache.Get(m.opts.tombstoneKey(key)); found {
		return nil, ErrConsumed
	}
	return nil, ErrNotFound
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Delete(m.opts.valueKey(key))
	return nil
}

// Len reports the number of live entries, tombstones included.
func (m *Memory) Len() int {
	return m.cache.ItemCount()
}

// Close flushes the store. The go-cache janitor stops once the store is
// garbage collected.
func (m *Memory) Close() error {
	m.cache.Flush()
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Store = (*Memory)(nil)
