package detection

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/pitchvision/internal/domain/model"
)

const defaultRandomSeed = 42

// ScriptFunc produces detections for an image.
type ScriptFunc func(img image.Image) ([]model.RawDetection, error)

// InMemoryOption configures an InMemoryDetector.
type InMemoryOption func(*InMemoryDetector)

// WithScript sets the function that answers Infer.
func WithScript(fn ScriptFunc) InMemoryOption {
	return func(d *InMemoryDetector) {
		if fn != nil {
			d.script = fn
		}
	}
}

// WithLatencyRange makes every call sleep for a random duration in [minLatency, maxLatency).
func WithLatencyRange(minLatency, maxLatency time.Duration) InMemoryOption {
	return func(d *InMemoryDetector) {
		if minLatency >= 0 && maxLatency > minLatency {
			d.minLatency = minLatency
			d.maxLatency = maxLatency
		}
	}
}

// WithLoaded sets the value reported by ModelLoaded.
func WithLoaded(loaded bool) InMemoryOption {
	return func(d *InMemoryDetector) {
		d.loaded = loaded
	}
}

// WithConcurrency sets the value reported by MaxConcurrency.
func WithConcurrency(n int) InMemoryOption {
	return func(d *InMemoryDetector) {
		if n >= 0 {
			d.concurrency = n
		}
	}
}

// InMemoryDetector is a Detector answered by a script, with optional simulated latency.
// It stands in for a model server in tests and offline dry runs.
type InMemoryDetector struct {
	script      ScriptFunc
	loaded      bool
	concurrency int
	minLatency  time.Duration
	maxLatency  time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	calls int
}

// NewInMemoryDetector creates a loaded detector that returns nothing unless scripted.
func NewInMemoryDetector(opts ...InMemoryOption) *InMemoryDetector {
	d := &InMemoryDetector{
		script: func(image.Image) ([]model.RawDetection, error) { return nil, nil },
		loaded: true,
		rng:    rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic latency for tests
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Infer runs the script after the simulated latency.
func (d *InMemoryDetector) Infer(ctx context.Context, img image.Image, _ float64) ([]model.RawDetection, error) {
	d.mu.Lock()
	d.calls++
	var latency time.Duration
	if d.maxLatency > 0 {
		latency = d.minLatency + time.Duration(d.rng.Int63n(int64(d.maxLatency-d.minLatency)))
	}
	d.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return d.script(img)
}

// ModelLoaded reports the configured readiness.
func (d *InMemoryDetector) ModelLoaded() bool { return d.loaded }

// MaxConcurrency reports the configured limit; 0 means unbounded.
func (d *InMemoryDetector) MaxConcurrency() int { return d.concurrency }

// Calls returns how many times Infer ran.
func (d *InMemoryDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
