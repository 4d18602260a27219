// Package app assembles the supervisors, stores and servers of one devstack
// instance from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/devstack/internal/config"
	"github.com/loykin/devstack/internal/env"
	"github.com/loykin/devstack/internal/events"
	"github.com/loykin/devstack/internal/health"
	"github.com/loykin/devstack/internal/history"
	hfactory "github.com/loykin/devstack/internal/history/factory"
	"github.com/loykin/devstack/internal/logger"
	"github.com/loykin/devstack/internal/metrics"
	"github.com/loykin/devstack/internal/portscan"
	"github.com/loykin/devstack/internal/process"
	"github.com/loykin/devstack/internal/project"
	"github.com/loykin/devstack/internal/projectstore"
	"github.com/loykin/devstack/internal/server"
	"github.com/loykin/devstack/internal/service"
	"github.com/loykin/devstack/internal/session"
	"github.com/loykin/devstack/internal/store"
	sfactory "github.com/loykin/devstack/internal/store/factory"
)

// RingSize is the number of output lines retained per project.
const RingSize = 1000

type App struct {
	Config   *config.Config
	Log      *slog.Logger
	Registry *process.Registry
	Events   *events.Bus
	Ring     *logger.Ring
	History  *history.Dispatcher
	Querier  history.Querier
	Session  *session.Manager
	Recorder *session.Recorder
	Services *service.Supervisor
	Projects *project.Manager
	Store    *projectstore.File
	// Cleanup holds the lines of the startup stale-process cleanup.
	Cleanup []string

	snapshots store.Store
	closeOnce sync.Once
}

// New wires every component. Stale processes of a previous run are killed
// before any service is adopted, so adoption never claims them.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: process.NewRegistry(log),
		Events:   events.NewBus(256),
		Ring:     logger.NewRing(RingSize),
	}

	sinks, err := hfactory.NewSinks(ctx, cfg.History.DSNs)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	a.History = history.NewDispatcher(log, sinks...)
	a.Querier = history.FindQuerier(sinks)

	a.snapshots, err = sfactory.NewFromDSN(cfg.Session.DSN)
	if err != nil {
		_ = a.History.Close()
		return nil, fmt.Errorf("session store: %w", err)
	}
	if err := a.snapshots.EnsureSchema(ctx); err != nil {
		a.closeStores()
		return nil, fmt.Errorf("session store: %w", err)
	}
	a.Session, err = session.NewManager(session.Options{
		Store:     a.snapshots,
		IsAlive:   a.Registry.IsAlive,
		KillTree:  a.Registry.KillTree,
		StartTime: process.StartTime,
		Events:    a.Events,
		History:   a.History,
		Log:       log,
	})
	if err != nil {
		a.closeStores()
		return nil, err
	}
	if a.Cleanup, err = a.Session.CleanupStale(ctx); err != nil {
		log.Warn("stale process cleanup failed", "error", err)
	}

	vars, err := cfg.GlobalEnv()
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("global env: %w", err)
	}
	e := env.New()
	e.FromOS()
	for k, v := range vars {
		e.Var[k] = v
	}

	a.Recorder = &session.Recorder{Manager: a.Session, StartTime: process.StartTime, Log: log}

	descs := ApplyOverrides(service.DefaultCatalog(cfg.InstallRoot, nil), cfg.Services, log)
	a.Services, err = service.New(ctx, descs, service.Options{
		Spawner:       a.Registry,
		Prober:        health.NewChecker(a.Registry.IsAlive),
		Scanner:       portscan.System{},
		Events:        a.Events,
		History:       a.History,
		Log:           log,
		Env:           e,
		Tick:          cfg.Supervisor.Tick,
		RestartSettle: cfg.Supervisor.RestartSettle,
		StopGrace:     cfg.Supervisor.StopGrace,
		OnChange:      a.Recorder.SaveQuietly,
	})
	if err != nil {
		a.closeStores()
		return nil, err
	}

	a.Projects = project.NewManager(project.Options{
		Spawner:       a.Registry,
		Events:        a.Events,
		History:       a.History,
		Log:           log,
		Env:           e,
		Sink:          logger.Tee{a.Ring, logger.SlogSink{L: log.With("component", "output")}},
		Writers:       cfg.Log.ProcessWriters,
		StopGrace:     cfg.Supervisor.StopGrace,
		RestartSettle: cfg.Supervisor.RestartSettle,
		OnChange:      a.Recorder.SaveQuietly,
	})
	a.Recorder.Services = a.Services
	a.Recorder.Projects = a.Projects

	a.Store = projectstore.New(cfg.ProjectsFile)

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("metrics registration failed", "error", err)
		}
	}
	return a, nil
}

// Deps exposes the app to the HTTP router.
func (a *App) Deps() server.Deps {
	return server.Deps{
		Services:  a.Services,
		Projects:  a.Projects,
		Store:     a.Store,
		Logs:      a.Ring,
		Events:    a.Events,
		History:   a.Querier,
		Cleanup:   func() []string { return append([]string(nil), a.Cleanup...) },
		Resources: a.Resources,
		Log:       a.Log,
	}
}

// Run starts auto-start services and serves until ctx is cancelled. It does
// not stop anything; call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := a.Services.StartAutoStart(ctx); err != nil {
		a.Log.Warn("auto-start incomplete", "error", err)
	}
	a.Recorder.SaveQuietly()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Services.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		err := a.Store.Watch(ctx, 200*time.Millisecond, a.Log, func(all []project.Descriptor) {
			a.Log.Info("project list reloaded", "count", len(all))
			a.Events.Emit(events.ProjectsChanged, map[string]any{"count": len(all)})
		})
		if err != nil {
			a.Log.Warn("project file watch stopped", "error", err)
		}
	}()
	if a.Config.Metrics.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, a.Config.Metrics.Listen, a.Log); err != nil {
				a.Log.Error("metrics server failed", "error", err)
			}
		}()
	}

	srv := server.NewServer(a.Config.Server.Listen, a.Config.Server.BasePath, a.Deps())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	a.Log.Info("api listening", "addr", a.Config.Server.Listen, "base", a.Config.Server.BasePath)

	var err error
	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		sctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		err = srv.Shutdown(sctx)
		done()
	}
	cancel()
	wg.Wait()
	return err
}

// Shutdown stops every project then every service, clears the session
// snapshot so the next start has nothing to clean up and closes the stores.
func (a *App) Shutdown(ctx context.Context) error {
	a.Projects.StopAll(ctx)
	a.Services.StopAll(ctx)
	err := a.Session.Clear(ctx)
	if err != nil {
		a.Log.Warn("session snapshot not cleared", "error", err)
	}
	a.closeStores()
	return err
}

func (a *App) closeStores() {
	a.closeOnce.Do(func() {
		if a.History != nil {
			if err := a.History.Close(); err != nil {
				a.Log.Warn("history close failed", "error", err)
			}
		}
		if a.snapshots != nil {
			if err := a.snapshots.Close(); err != nil {
				a.Log.Warn("session store close failed", "error", err)
			}
		}
	})
}

// Resources samples every running service and project.
func (a *App) Resources() []metrics.Usage {
	pids := make(map[string]int)
	for _, in := range a.Services.List() {
		if in.PID > 0 {
			pids[in.ID] = in.PID
		}
	}
	for _, in := range a.Projects.List() {
		if in.Live() {
			pids[in.ProjectID] = in.PID
		}
	}
	return metrics.Sample(pids)
}
