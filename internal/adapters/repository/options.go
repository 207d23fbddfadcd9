package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithRetention bounds how many jobs are kept. Finished jobs are evicted oldest first;
// running and queued jobs are never evicted.
func WithRetention(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
