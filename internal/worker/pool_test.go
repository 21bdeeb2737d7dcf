package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingRecorder struct {
	done    atomic.Int32
	failed  atomic.Int32
	dropped atomic.Int32
}

func (r *countingRecorder) JobDone(_ string, err error) {
	r.done.Add(1)
	if err != nil {
		r.failed.Add(1)
	}
}

func (r *countingRecorder) JobDropped(string) {
	r.dropped.Add(1)
}

func TestPoolRunsJobs(t *testing.T) {
	rec := &countingRecorder{}
	p := NewPool(10, WithRecorder(rec))
	p.Start(3)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		p.Submit(Job{Kind: "test", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if ran.Load() != 10 {
		t.Errorf("ran %d jobs, want 10", ran.Load())
	}
	if rec.done.Load() != 10 {
		t.Errorf("recorded %d completions, want 10", rec.done.Load())
	}
}

func TestSubmitNeverBlocksWhenFull(t *testing.T) {
	rec := &countingRecorder{}
	p := NewPool(1, WithRecorder(rec))
	// Not started: the queue fills after one job.

	start := time.Now()
	queued := 0
	for i := 0; i < 5; i++ {
		if p.Submit(Job{Kind: "test", Run: func(context.Context) error { return nil }}) {
			queued++
		}
	}
	if time.Since(start) > time.Second {
		t.Fatal("Submit blocked")
	}
	if queued != 1 {
		t.Errorf("queued %d, want 1", queued)
	}
	if rec.dropped.Load() != 4 {
		t.Errorf("dropped %d, want 4", rec.dropped.Load())
	}
}

func TestSubmitAfterStop(t *testing.T) {
	p := NewPool(4)
	p.Start(1)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.Submit(Job{Kind: "late", Run: func(context.Context) error { return nil }}) {
		t.Error("expected Submit after Stop to be rejected")
	}
}

func TestFailedAndPanickingJobsAreRecorded(t *testing.T) {
	rec := &countingRecorder{}
	p := NewPool(4, WithRecorder(rec))
	p.Start(1)

	p.Submit(Job{Kind: "fail", Run: func(context.Context) error { return errors.New("boom") }})
	p.Submit(Job{Kind: "panic", Run: func(context.Context) error { panic("oops") }})

	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if rec.failed.Load() != 2 {
		t.Errorf("failed = %d, want 2", rec.failed.Load())
	}
}

func TestStopCancelsSlowJobsOnDeadline(t *testing.T) {
	p := NewPool(1)
	p.Start(1)

	var mu sync.Mutex
	var jobErr error
	p.Submit(Job{Kind: "slow", Run: func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			mu.Lock()
			jobErr = ctx.Err()
			mu.Unlock()
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop error = %v, want deadline exceeded", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if jobErr == nil {
		t.Error("expected in-flight job to observe cancellation")
	}
}
