package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/entkv/internal/config"
	"github.com/dokzlo13/entkv/internal/store"
)

// ErrNoScript is returned by RunScript when neither a path nor a configured script is given.
var ErrNoScript = errors.New("no script to run")

// App is the main application container that manages all services and their lifecycle.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new App instance with all services initialized but not started.
// The backend is dialed once; ctx bounds that first dial.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	services, err := NewServices(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Start starts background services.
// The provided context is used for cancellation.
func (a *App) Start(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.services.Start(a.ctx)
	log.Info().Str("backend", a.cfg.Backend.Type).Msg("entkv started")
}

// Stop gracefully shuts down all services.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}

	if a.services != nil {
		return a.services.Stop()
	}

	return nil
}

// Wait blocks until the application context is cancelled.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// Store returns the entity store.
func (a *App) Store() *store.Store {
	return a.services.Store
}

// RunScript executes a Lua script against the store. An empty path runs the
// configured script.
func (a *App) RunScript(ctx context.Context, path string) error {
	if path == "" && a.cfg.Script == "" {
		return ErrNoScript
	}
	return a.services.Lua.RunScript(ctx, path)
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
