// Package worker runs fire-and-forget background jobs (lazy write-backs and
// metadata backfills) off the request path.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justestif/go-dual-gravity/internal/logging"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 30 * time.Second

var errPanicked = errors.New("job panicked")

// Job is one unit of background work.
type Job struct {
	// Kind groups jobs for logging and metrics, e.g. "artist-writeback".
	Kind string
	// Key identifies the subject of the job, e.g. an artist id.
	Key string
	Run func(ctx context.Context) error
}

// Recorder observes job outcomes. Implementations must be safe for concurrent use.
type Recorder interface {
	JobDone(kind string, err error)
	JobDropped(kind string)
}

type nopRecorder struct{}

func (nopRecorder) JobDone(string, error) {}
func (nopRecorder) JobDropped(string)     {}

// Pool is a bounded queue drained by a fixed set of workers.
// Submit never blocks: when the queue is full the job is dropped.
type Pool struct {
	jobs     chan Job
	wg       sync.WaitGroup
	timeout  time.Duration
	recorder Recorder

	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Bool
	closed  atomic.Bool
	closeMu sync.RWMutex
}

// Option configures a Pool.
type Option func(*Pool)

// WithJobTimeout bounds each job's run time.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRecorder reports job outcomes.
func WithRecorder(r Recorder) Option {
	return func(p *Pool) {
		if r != nil {
			p.recorder = r
		}
	}
}

// NewPool creates a pool with the given queue capacity.
func NewPool(queueSize int, opts ...Option) *Pool {
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:     make(chan Job, queueSize),
		timeout:  DefaultJobTimeout,
		recorder: nopRecorder{},
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (p *Pool) Start(workers int) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(job)
			}
		}()
	}
}

// Submit queues a job without blocking. It reports whether the job was queued.
func (p *Pool) Submit(job Job) bool {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed.Load() {
		p.recorder.JobDropped(job.Kind)
		return false
	}

	select {
	case p.jobs <- job:
		return true
	default:
		p.recorder.JobDropped(job.Kind)
		logging.Warn().Str("kind", job.Kind).Str("key", job.Key).Msg("worker: queue full, dropping job")
		return false
	}
}

// Stop closes the queue and waits for queued jobs to finish, or until ctx
// is done, in which case in-flight jobs are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.closeMu.Lock()
	if p.closed.CompareAndSwap(false, true) {
		close(p.jobs)
	}
	p.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Pending returns the number of queued jobs.
func (p *Pool) Pending() int {
	return len(p.jobs)
}

func (p *Pool) run(job Job) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("kind", job.Kind).Str("key", job.Key).Interface("panic", r).Msg("worker: job panicked")
			p.recorder.JobDone(job.Kind, errPanicked)
		}
	}()

	err := job.Run(ctx)
	if err != nil {
		logging.Warn().Err(err).Str("kind", job.Kind).Str("key", job.Key).Msg("worker: job failed")
	}
	p.recorder.JobDone(job.Kind, err)
}
