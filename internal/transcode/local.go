package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"momento/internal/observability"
	"momento/internal/storage"
)

// ErrQueueFull is returned when the local pool cannot accept more jobs.
var ErrQueueFull = errors.New("transcode queue is full")

// LocalPool is an in-process stand-in for a transcoding service. Each worker
// copies the source object to every target key and reports the result through
// the attached Reporter, the same way a remote transcoder calls back.
type LocalPool struct {
	store    storage.ObjectStore
	workers  int
	delay    time.Duration
	jobs     chan Job
	mu       sync.RWMutex
	reporter Reporter
	wg       sync.WaitGroup
	once     sync.Once
}

// NewLocalPool creates a pool with the given worker count and queue size.
func NewLocalPool(store storage.ObjectStore, workers, queue int, delay time.Duration) *LocalPool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 64
	}
	return &LocalPool{
		store:   store,
		workers: workers,
		delay:   delay,
		jobs:    make(chan Job, queue),
	}
}

// Attach sets where finished jobs are reported.
func (p *LocalPool) Attach(r Reporter) {
	p.mu.Lock()
	p.reporter = r
	p.mu.Unlock()
}

// Start launches the workers. They exit when ctx is cancelled.
func (p *LocalPool) Start(ctx context.Context) {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.workerLoop(ctx)
		}
	})
}

// Wait blocks until all workers have exited.
func (p *LocalPool) Wait() {
	p.wg.Wait()
}

func (p *LocalPool) Dispatch(_ context.Context, job Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, ErrQueueFull)
	}
}

func (p *LocalPool) workerLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.process(context.WithoutCancel(ctx), job)
		}
	}
}

func (p *LocalPool) process(ctx context.Context, job Job) {
	op := observability.StartAsync(ctx, slog.Default(), "transcode.local", slog.Uint64("post_id", uint64(job.PostID)))

	report := Report{PostID: job.PostID, Status: StatusCompleted}
	renditions, err := p.render(ctx, job)
	if err != nil {
		report.Status = StatusFailed
		report.Error = err.Error()
	}
	report.Renditions = renditions

	p.mu.RLock()
	reporter := p.reporter
	p.mu.RUnlock()
	if reporter == nil {
		op.Finish(ctx, errors.New("no reporter attached"))
		return
	}
	if rerr := reporter.Report(ctx, job.CallbackToken, report); rerr != nil {
		op.Finish(ctx, rerr)
		return
	}
	op.Finish(ctx, err)
}

func (p *LocalPool) render(ctx context.Context, job Job) ([]RenditionReport, error) {
	if p.store == nil {
		return nil, errors.New("no object store configured")
	}
	exists, err := p.store.Exists(ctx, job.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !exists {
		return nil, errors.New("source object was never uploaded")
	}

	out := make([]RenditionReport, 0, len(job.Targets))
	for _, target := range job.Targets {
		if p.delay > 0 && !sleepContext(ctx, p.delay) {
			return out, ctx.Err()
		}
		if err := p.copyObject(ctx, job.SourceKey, target.StorageKey); err != nil {
			return out, fmt.Errorf("render %s: %w", target.Quality, err)
		}
		out = append(out, RenditionReport{
			Quality:     target.Quality,
			BitrateKbps: target.BitrateKbps,
			Width:       target.Width,
			Height:      target.Height,
			StorageKey:  target.StorageKey,
		})
	}
	return out, nil
}

func (p *LocalPool) copyObject(ctx context.Context, from, to string) error {
	rc, _, err := p.store.Open(ctx, from)
	if err != nil {
		return err
	}
	defer func(rc io.ReadCloser) { _ = rc.Close() }(rc)
	_, err = p.store.Put(ctx, to, rc, nil)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
