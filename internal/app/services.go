package app

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/entkv/internal/config"
	"github.com/dokzlo13/entkv/internal/events"
	"github.com/dokzlo13/entkv/internal/idgen"
	"github.com/dokzlo13/entkv/internal/kv"
	"github.com/dokzlo13/entkv/internal/store"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	Client    *kv.Supervisor
	Janitor   *kv.Janitor
	Publisher events.Publisher

	// Entity store
	Store *store.Store

	// Scripting
	Lua *LuaService
}

// NewServices creates all services with proper dependency injection.
func NewServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	dial, err := NewDialer(cfg.Backend)
	if err != nil {
		return nil, err
	}

	// Connect to the backend; later connectivity failures are redialed in the background
	s.Client, err = kv.NewSupervisor(ctx, dial, reconnectConfig(cfg.Reconnect))
	if err != nil {
		return nil, err
	}

	if needsJanitor(cfg.Backend.Type) {
		s.Janitor = kv.NewJanitor(s.Client)
	}

	// Initialize event publisher
	if cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.Events.NATSURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Publisher = pub
		log.Info().Str("url", cfg.Events.NATSURL).Msg("Publishing entity events to NATS")
	} else {
		s.Publisher = &events.NoopPublisher{}
	}

	newID, err := idgen.New(idgen.Format(cfg.IDs))
	if err != nil {
		s.Close()
		return nil, err
	}

	describeRules(cfg)

	// Initialize entity store
	s.Store = store.New(s.Client,
		store.WithRegistryTable(cfg.Registry.Table),
		store.WithResolver(NewResolver(cfg)),
		store.WithIDGenerator(newID),
		store.WithPublisher(s.Publisher, cfg.Events.SubjectPrefix),
	)

	// Initialize Lua service
	baseDir := ""
	if cfg.Script != "" {
		baseDir = filepath.Dir(cfg.Script)
	}
	s.Lua = NewLuaService(cfg, s.Store, baseDir)

	return s, nil
}

// Start starts background services.
func (s *Services) Start(ctx context.Context) {
	if s.Janitor != nil {
		s.Janitor.Start(ctx, s.cfg.CleanupInterval.Duration())
	}
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	if s.Janitor != nil {
		s.Janitor.Stop()
	}
	return s.Close()
}

// Close releases all resources.
func (s *Services) Close() error {
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.Store != nil {
		// Closes the publisher and the client
		return s.Store.Close()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Client != nil {
		return s.Client.Close()
	}
	return nil
}
