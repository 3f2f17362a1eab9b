package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"bossspawner/internal/activation"
	"bossspawner/internal/auth"
	"bossspawner/internal/config"
	"bossspawner/internal/game"
	"bossspawner/internal/marker"
	"bossspawner/internal/registry"
	"bossspawner/internal/server"
	"bossspawner/internal/serverapp"
	"bossspawner/internal/spawner"
	"bossspawner/internal/telemetry"
	"bossspawner/internal/world"
)

// app is the spawner process: one world, one registry and the loop that owns
// them, plus the HTTP surface.
type app struct {
	cfg        *config.Config
	configPath string
	log        *zap.Logger
	level      zap.AtomicLevel

	clock   game.Clock
	world   *world.Memory
	sim     *spawner.Simulator
	relay   *marker.Relay
	remote  *marker.Memory
	store   *activation.Store
	events  *telemetry.MemoryRepository
	reg     *registry.Registry
	loop    *game.Loop
	handler http.Handler
}

func newApp(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:        cfg,
		configPath: configPath,
		log:        logger,
		level:      level,
		clock:      game.InLocation(game.RealClock{}, loc),
		world:      world.NewMemory(),
		relay:      marker.NewRelay(logger),
		remote:     marker.NewMemory(),
	}
	a.sim = spawner.NewSimulator(a.world, logger)
	a.events = telemetry.NewMemoryRepository(0, a.clock.Now)

	backend, err := activation.NewFileBackend(cfg.Server.DataDir)
	if err != nil {
		return nil, fmt.Errorf("activation backend: %w", err)
	}
	a.store = activation.NewStore(backend, logger)
	if err := a.store.Load(); err != nil {
		// Start clean rather than refuse to run; bosses pick new positions.
		logger.Warn("activation store unreadable; starting empty", zap.Error(err))
	}

	a.reg, err = registry.New(cfg, registry.Deps{
		World:     a.world,
		Spawner:   a.sim,
		Markers:   a.relay,
		Store:     a.store,
		Clock:     a.clock,
		Rand:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		Logger:    logger,
		Telemetry: a.events,
		Loader:    a.loadConfig,
	})
	if err != nil {
		return nil, err
	}

	a.loop = game.NewLoop(a.clock, cfg.TickInterval, logger,
		a.reg,
		game.TickerFunc(a.sim.Update),
	)

	a.handler, err = serverapp.NewHandler(serverapp.Options{
		Admin: &server.Admin{
			Registry: a.reg,
			Loop:     a.loop,
			Events:   a.events,
			Markers:  a.relay,
			Remote:   a.remote,
			Check:    auth.BearerToken(cfg.Server.AdminToken),
			Clock:    a.clock,
		},
		UseDiskStatic: serverapp.UseDiskStaticByEnv(),
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Server.AdminToken == "" {
		logger.Warn("no admin token configured; admin API is locked")
	}
	return a, nil
}

// loadConfig rereads the config file for a reload. It runs on the loop.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.Log.Level); err == nil {
		a.level.SetLevel(lvl.Level())
	}
	if cfg.Timezone != a.cfg.Timezone {
		a.log.Warn("timezone changes apply after a restart", zap.String("timezone", cfg.Timezone))
	}
	return cfg, nil
}

// run serves until ctx ends, then detaches every boss and flushes state.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errc := make(chan error, 2)

	loopDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(loopDone)
		if err := a.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errc <- fmt.Errorf("tick loop: %w", err)
		}
	}()

	for _, url := range a.cfg.Marker.Follow {
		f := &marker.Follower{URL: url, Dst: a.remote, Log: a.log}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.Run(ctx)
		}()
	}

	watcher, err := config.NewWatcher(a.configPath)
	if err != nil {
		a.log.Warn("config hot reload disabled", zap.Error(err))
	} else {
		defer watcher.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.watch(ctx, watcher)
		}()
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", zap.Error(err))
	}
	a.relay.Close()

	// The loop has stopped, so this goroutine is now the only writer.
	<-loopDone
	a.reg.Shutdown()

	wg.Wait()
	a.log.Info("stopped")
	return runErr
}

func (a *app) watch(ctx context.Context, w *config.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-w.Events:
			if !ok {
				return
			}
			a.log.Info("config changed; reloading", zap.String("path", path))
			if err := a.loop.Do(ctx, a.reg.Reload); err != nil {
				a.log.Warn("reload failed", zap.Error(err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			a.log.Warn("config watch error", zap.Error(err))
		}
	}
}
