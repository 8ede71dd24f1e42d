package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sliding windows in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow

	cleanupInterval time.Duration
	initialCapacity int
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

// prune drops timestamps at or before now-window. Timestamps are appended in
// clock order so the slice stays sorted.
func (w *slidingWindow) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
	w.window = window
}

func (w *slidingWindow) oldest() time.Time {
	if len(w.timestamps) == 0 {
		return time.Time{}
	}
	return w.timestamps[0]
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets the cleanup interval for idle windows.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// WithInitialCapacity sets the initial capacity for sliding window timestamps.
func WithInitialCapacity(capacity int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if capacity > 0 {
			s.initialCapacity = capacity
		}
	}
}

// NewMemoryStore creates a new in-memory store with automatic cleanup.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string]*slidingWindow),
		cleanupInterval: 1 * time.Minute,
		initialCapacity: 16,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// RecordTimestampIfAllowed implements SlidingWindowStore.
func (s *MemoryStore) RecordTimestampIfAllowed(_ context.Context, key string, now time.Time, window time.Duration, limit, n int) (bool, int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.windows[key]
	if !exists {
		w = &slidingWindow{timestamps: make([]time.Time, 0, s.initialCapacity)}
		s.windows[key] = w
	}
	w.prune(now, window)

	if len(w.timestamps)+n > limit {
		return false, int64(len(w.timestamps)), w.oldest(), nil
	}

	for range n {
		w.timestamps = append(w.timestamps, now)
	}
	return true, int64(len(w.timestamps)), w.oldest(), nil
}

// CountInWindow implements SlidingWindowStore.
func (s *MemoryStore) CountInWindow(_ context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.windows[key]
	if !exists {
		return 0, time.Time{}, nil
	}
	w.prune(now, window)
	return int64(len(w.timestamps)), w.oldest(), nil
}

// Delete implements SlidingWindowStore.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, key)
	return nil
}

// Len reports the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.cleanup(now)
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup drops windows whose newest timestamp is older than their window.
func (s *MemoryStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, w := range s.windows {
		if len(w.timestamps) == 0 || now.Sub(w.timestamps[len(w.timestamps)-1]) > w.window {
			delete(s.windows, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

var _ SlidingWindowStore = (*MemoryStore)(nil)
