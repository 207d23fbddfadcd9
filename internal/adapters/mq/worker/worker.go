// Package worker runs per-frame detection on a pool of goroutines fed by the frame queue.
package worker

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pitchvision/internal/adapters/mq/queue"
	"github.com/okian/pitchvision/internal/domain/detection"
	"github.com/okian/pitchvision/internal/domain/types"
	"github.com/okian/pitchvision/pkg/logger"
	"github.com/okian/pitchvision/pkg/metrics"
)

// Result is the out-of-order output of one frame. Err marks a frame-local failure.
type Result struct {
	Job     queue.Job
	Players []types.PlayerCandidate
	Balls   []detection.BallCandidate
	Err     error
	Reason  string // metrics label for Err
	Latency time.Duration
}

// Index returns the frame index of the result.
func (r Result) Index() int { return r.Job.Frame.Index }

// Processor runs detection for one job. It must not return until it has a Result.
type Processor interface {
	Process(ctx context.Context, j queue.Job) Result
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, j queue.Job) Result

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, j queue.Job) Result { return f(ctx, j) } //nolint:gocritic // Job by value

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until its queue drains.
type Worker interface {
	Run(ctx context.Context)
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	proc    Processor
	results chan<- Result
	name    string
	active  *atomic.Int64

	logger logger.Logger
}

// NewInMemoryWorker creates a worker that writes every result to results.
func NewInMemoryWorker(q Queue, proc Processor, results chan<- Result, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:   q,
		proc:    proc,
		results: results,
		name:    "worker",
		active:  &atomic.Int64{},
		logger:  logger.OrNop("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run dequeues until the queue is closed and drained or ctx is done.
// A job already taken is always processed and its result delivered.
func (w *InMemoryWorker) Run(ctx context.Context) {
	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.results <- w.process(ctx, j)
		}
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) Result { //nolint:gocritic // Job by value
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() { metrics.UpdateWorkerActiveCount(int(w.active.Add(-1))) }()

	if j.DecodeErr != nil {
		return Result{Job: j, Err: j.DecodeErr, Reason: "decode"}
	}

	start := time.Now()
	res := w.proc.Process(ctx, j)
	res.Job = j
	res.Latency = time.Since(start)
	metrics.RecordWorkerProcessingLatency(float64(res.Latency.Microseconds()) / 1000)
	if res.Err != nil {
		metrics.RecordWorkerError()
		w.logger.Debug(ctx, "frame failed",
			logger.Int("frame", j.Frame.Index),
			logger.String("reason", res.Reason),
			logger.Error(res.Err),
		)
	}
	return res
}

// Pool manages multiple workers sharing one queue and one results channel.
// Closing the queue drains the pool, after which Results is closed.
type Pool struct {
	workers []*InMemoryWorker
	results chan Result
	wg      sync.WaitGroup
}

// NewPool creates a pool of workerCount workers. Zero or negative means runtime.NumCPU().
func NewPool(workerCount int, q Queue, proc Processor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		results: make(chan Result, workerCount),
	}

	active := &atomic.Int64{}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, proc, pool.results, wopts...)
		w.active = active
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Results returns the channel of out-of-order results. It is closed once every worker has exited.
func (p *Pool) Results() <-chan Result { return p.results }

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}
