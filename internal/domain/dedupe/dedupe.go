// Package dedupe tracks in-flight video jobs so the same source is not analyzed twice at once.
package dedupe

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// Deduper records keys of work that is in flight.
type Deduper interface {
	// SeenAndRecord atomically checks whether key is in flight and records it if not.
	// It returns true when key was already recorded or the registry is full.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord releases key once its work has finished.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key normalizes a video path so equivalent spellings collide.
func Key(videoPath string) string {
	p := strings.TrimSpace(videoPath)
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.Clean(p)
}

type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	maxSize int // 0 or negative = unbounded
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{})
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		return true
	}
	d.seen[key] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		delete(d.seen, key)
		d.size.Add(-1)
	}
}

// Size returns the number of keys in flight.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
