package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/entkv/internal/config"
	"github.com/dokzlo13/entkv/internal/expire"
	"github.com/dokzlo13/entkv/internal/kv"
)

// NewDialer returns the dialer of the configured backend.
func NewDialer(cfg config.BackendConfig) (kv.Dialer, error) {
	switch cfg.Type {
	case config.BackendMemory:
		return func(ctx context.Context) (kv.Client, error) {
			log.Warn().Msg("Using in-memory backend, data is lost on exit")
			return kv.NewMemoryClient(), nil
		}, nil

	case config.BackendSQLite:
		path := cfg.SQLite.Path
		return func(ctx context.Context) (kv.Client, error) {
			client, err := kv.OpenSQLite(path)
			if err != nil {
				return nil, err
			}
			log.Info().Str("path", path).Msg("Opened SQLite backend")
			return client, nil
		}, nil

	case config.BackendRedis:
		opts := kv.RedisOptions{
			URL:         cfg.Redis.URL,
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout.Duration(),
		}
		return func(ctx context.Context) (kv.Client, error) {
			client, err := kv.DialRedis(ctx, opts)
			if err != nil {
				return nil, err
			}
			log.Info().Str("addr", client.Native().Options().Addr).Msg("Connected to Redis")
			return client, nil
		}, nil
	}

	return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
}

// NewResolver builds the expiry resolver from the global defaults and entityspec rules.
func NewResolver(cfg *config.Config) *expire.Resolver {
	defaults := expire.Spec{
		TTL:      cfg.Expire.Ptr(),
		ExpireAt: cfg.ExpireAt.Ptr(),
	}

	rules := make([]expire.Rule, 0, len(cfg.EntitySpec))
	for _, spec := range cfg.EntitySpec {
		rules = append(rules, expire.Rule{
			Pattern: expire.ParsePattern(spec.Pattern),
			Spec: expire.Spec{
				TTL:      spec.Expire.Ptr(),
				ExpireAt: spec.ExpireAt.Ptr(),
			},
		})
	}

	return expire.NewResolver(defaults, rules)
}

// needsJanitor reports whether the backend relies on sweeping for expiry.
func needsJanitor(backend string) bool {
	return backend != config.BackendRedis
}

// reconnectConfig converts the configured backoff bounds.
func reconnectConfig(cfg config.ReconnectConfig) kv.ReconnectConfig {
	return kv.ReconnectConfig{
		MinWait:    cfg.MinWait.Duration(),
		MaxWait:    cfg.MaxWait.Duration(),
		Multiplier: cfg.Multiplier,
	}
}

// describeRules logs the effective rule table at debug level.
func describeRules(cfg *config.Config) {
	for _, spec := range cfg.EntitySpec {
		log.Debug().
			Str("pattern", spec.Pattern).
			Bool("ttl", spec.Expire != nil).
			Bool("expire_at", spec.ExpireAt != nil).
			Msg("Expiry rule")
	}
}
