// Package jobs runs copies in the background from a durable queue. A job
// queued by one process is finished by whichever runner picks it up, and the
// mutator publishes the affected paths when it completes.
package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/justyntemme/fexplorer/internal/debug"
	"github.com/justyntemme/fexplorer/internal/fs"
	"github.com/justyntemme/fexplorer/internal/logging"
	"github.com/justyntemme/fexplorer/internal/metrics"
	"github.com/justyntemme/fexplorer/internal/store"
)

// pollInterval picks up jobs queued by other processes.
const pollInterval = time.Second

// Copier performs one copy. *fs.Mutator and *fs.System satisfy it.
type Copier interface {
	Copy(ctx context.Context, src, destDir string) (fs.Entry, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithCompletionHook calls fn after every job that finishes, successfully or
// not. fn runs on the runner goroutine.
func WithCompletionHook(fn func(store.Job)) Option {
	return func(r *Runner) { r.onComplete = fn }
}

// Runner executes queued copy jobs one at a time in queue order. Failed jobs
// are recorded and never retried.
type Runner struct {
	db         *store.DB
	copier     Copier
	onComplete func(store.Job)
	log        *zap.Logger

	wake chan struct{}

	mu      sync.Mutex
	waiters map[string][]chan store.Job
}

// NewRunner creates a runner over db.
func NewRunner(db *store.DB, copier Copier, opts ...Option) *Runner {
	r := &Runner{
		db:      db,
		copier:  copier,
		log:     logging.Named("jobs"),
		wake:    make(chan struct{}, 1),
		waiters: make(map[string][]chan store.Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enqueue persists a pending copy of src into destDir.
func (r *Runner) Enqueue(ctx context.Context, src, destDir string) (store.Job, error) {
	src, err := filepath.Abs(src)
	if err != nil {
		return store.Job{}, err
	}
	destDir, err = filepath.Abs(destDir)
	if err != nil {
		return store.Job{}, err
	}

	j := store.Job{
		ID:        uuid.NewString(),
		Source:    src,
		Dest:      destDir,
		Status:    store.StatusPending,
		CreatedAt: time.Now(),
	}
	if err := r.db.InsertJob(ctx, j); err != nil {
		return store.Job{}, err
	}
	r.log.Info("job queued", logging.String("id", j.ID),
		logging.String("source", src), logging.String("dest", destDir))

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return j, nil
}

// Run processes jobs until ctx is done. Jobs left running by an earlier
// process are queued again first.
func (r *Runner) Run(ctx context.Context) error {
	if n, err := r.db.ResetRunning(ctx); err != nil {
		return err
	} else if n > 0 {
		r.log.Info("requeued interrupted jobs", logging.Int64("count", n))
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if _, err := r.drain(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-r.wake:
		case <-ticker.C:
		}
	}
}

// Drain processes pending jobs until none is left and returns how many ran.
// Like Run it requeues running jobs first, so it must not be used while a
// Run loop serves the same database.
func (r *Runner) Drain(ctx context.Context) (int, error) {
	if _, err := r.db.ResetRunning(ctx); err != nil {
		return 0, err
	}
	n, err := r.drain(ctx)
	if n > 0 {
		r.log.Info("queue drained", logging.Int("jobs", n))
	}
	return n, err
}

func (r *Runner) drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		j, ok, err := r.db.ClaimNext(ctx)
		if err != nil || !ok {
			return n, err
		}
		if err := r.process(ctx, j); err != nil {
			return n, err
		}
		n++
	}
}

func (r *Runner) process(ctx context.Context, j store.Job) error {
	debug.Log(debug.JOBS, "running job %s: %q -> %q", j.ID, j.Source, j.Dest)
	start := time.Now()
	entry, err := r.copier.Copy(ctx, j.Source, j.Dest)
	if ctx.Err() != nil {
		// Interrupted. The job stays running and is requeued by the next Run.
		return ctx.Err()
	}

	if err != nil {
		j.Status = store.StatusFailed
		j.ErrKind = fs.KindOf(err).String()
		j.ErrMsg = err.Error()
		r.log.Warn("job failed", logging.String("id", j.ID),
			logging.Duration("elapsed", time.Since(start)), logging.Err(err))
	} else {
		j.Status = store.StatusDone
		j.Result = entry.Path
		r.log.Info("job done", logging.String("id", j.ID), logging.String("result", entry.Path),
			logging.Duration("elapsed", time.Since(start)))
	}
	// The copy already happened, so record it even if ctx ends now.
	if err := r.db.FinishJob(context.WithoutCancel(ctx), j); err != nil {
		return err
	}
	j.UpdatedAt = time.Now()
	metrics.JobFinished(string(j.Status))

	if r.onComplete != nil {
		r.onComplete(j)
	}
	r.release(j)
	return nil
}

// Wait blocks until job id finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context, id string) (store.Job, error) {
	ch := make(chan store.Job, 1)
	r.mu.Lock()
	r.waiters[id] = append(r.waiters[id], ch)
	r.mu.Unlock()
	defer r.forget(id, ch)

	j, err := r.db.GetJob(ctx, id)
	if err != nil {
		return store.Job{}, err
	}
	if j.Status.Finished() {
		return j, nil
	}

	select {
	case j := <-ch:
		return j, nil
	case <-ctx.Done():
		return store.Job{}, ctx.Err()
	}
}

func (r *Runner) release(j store.Job) {
	r.mu.Lock()
	chans := r.waiters[j.ID]
	delete(r.waiters, j.ID)
	r.mu.Unlock()
	for _, ch := range chans {
		ch <- j
	}
}

func (r *Runner) forget(id string, ch chan store.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.waiters[id]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.waiters, id)
	} else {
		r.waiters[id] = list
	}
}

// Jobs lists every job in queue order.
func (r *Runner) Jobs(ctx context.Context) ([]store.Job, error) {
	return r.db.ListJobs(ctx)
}
