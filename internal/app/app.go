// Package app wires the explorer core together: the change bus, the
// filesystem workers, the watcher, listing sessions and the background copy
// queue.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/justyntemme/fexplorer/internal/config"
	"github.com/justyntemme/fexplorer/internal/debug"
	"github.com/justyntemme/fexplorer/internal/fs"
	"github.com/justyntemme/fexplorer/internal/jobs"
	"github.com/justyntemme/fexplorer/internal/logging"
	"github.com/justyntemme/fexplorer/internal/metrics"
	"github.com/justyntemme/fexplorer/internal/notify"
	"github.com/justyntemme/fexplorer/internal/session"
	"github.com/justyntemme/fexplorer/internal/store"
	"github.com/justyntemme/fexplorer/internal/watch"
)

// Option configures an App.
type Option func(*App)

// WithJobHook is called after every background copy finishes.
func WithJobHook(fn func(store.Job)) Option {
	return func(a *App) { a.jobHook = fn }
}

// App owns every long-lived component.
type App struct {
	Bus     *notify.Bus
	FS      *fs.System
	Watcher *watch.Watcher // nil when watching is disabled

	cfg     config.Config
	log     *zap.Logger
	jobHook func(store.Job)

	jobsOnce sync.Once
	db       *store.DB
	runner   *jobs.Runner
	jobsErr  error
}

// New builds the components described by cfg and starts the workers.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg: cfg,
		log: logging.Named("app"),
		Bus: notify.NewBus(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.FS = fs.NewSystem(a.Bus, cfg.Workers.Count)
	a.FS.Start()

	if cfg.Watch.Enabled {
		w, err := watch.New(a.Bus, cfg.Watch.Debounce())
		if err != nil {
			// Listings still refresh on our own mutations.
			a.log.Warn("directory watching unavailable", logging.Err(err))
		} else {
			a.Watcher = w
		}
	}

	debug.Log(debug.APP, "app ready: workers=%d watch=%v", cfg.Workers.Count, a.Watcher != nil)
	return a, nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// ListOptions returns the configured listing options.
func (a *App) ListOptions() fs.ListOptions {
	return fs.ListOptions{
		ShowHidden:      a.cfg.Listing.ShowHidden,
		OnlyDirectories: a.cfg.Listing.OnlyDirectories,
		Exclude:         a.cfg.Listing.Exclude,
	}
}

// OpenSession opens a listing session on path. The caller closes it.
func (a *App) OpenSession(path string, opts ...session.Option) (*session.Session, error) {
	all := []session.Option{session.WithListOptions(a.ListOptions())}
	if a.Watcher != nil {
		all = append(all, session.WithWatcher(a.Watcher))
	}
	s := session.New(a.FS, a.Bus, append(all, opts...)...)
	if err := s.Open(path); err != nil {
		return nil, err
	}
	return s, nil
}

// Jobs opens the copy queue on first use.
func (a *App) Jobs() (*jobs.Runner, error) {
	a.jobsOnce.Do(func() {
		db, err := store.Open(a.cfg.Jobs.DBPath)
		if err != nil {
			a.jobsErr = err
			return
		}
		a.db = db
		var ropts []jobs.Option
		if a.jobHook != nil {
			ropts = append(ropts, jobs.WithCompletionHook(a.jobHook))
		}
		a.runner = jobs.NewRunner(db, a.FS, ropts...)
	})
	return a.runner, a.jobsErr
}

// Run serves the copy queue and, when configured, the metrics endpoint
// until ctx is done.
func (a *App) Run(ctx context.Context) error {
	runner, err := a.Jobs()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(ctx)
	})

	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			a.log.Info("metrics listening", logging.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Close stops every component. Sessions should be closed first.
func (a *App) Close() error {
	var errs []error
	a.FS.Close()
	if a.Watcher != nil {
		errs = append(errs, a.Watcher.Close())
	}
	a.Bus.Close()
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
