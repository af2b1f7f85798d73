package kv

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrSupervisorClosed is returned by operations after Close.
var ErrSupervisorClosed = errors.New("kv: supervisor closed")

// Dialer opens a new connection to the store.
type Dialer func(ctx context.Context) (Client, error)

// ReconnectConfig contains configuration for reconnection backoff.
type ReconnectConfig struct {
	MinWait    time.Duration // First wait after a failed dial
	MaxWait    time.Duration // Upper bound on the wait between dials
	Multiplier float64       // Backoff multiplier
}

// DefaultReconnectConfig returns the default backoff bounds.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MinWait:    16 * time.Millisecond,
		MaxWait:    65336 * time.Millisecond,
		Multiplier: 2.0,
	}
}

// Supervisor is a Client that owns the store connection. When an operation
// fails with a connectivity error, the error is returned to the caller as-is
// and a background loop redials with exponential backoff. Operations issued
// while disconnected fail fast with ErrNotConnected.
type Supervisor struct {
	dial   Dialer
	config ReconnectConfig

	mu           sync.RWMutex
	client       Client
	reconnecting bool
	closed       bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor dials the store once and returns a supervisor owning the connection.
func NewSupervisor(ctx context.Context, dial Dialer, config ReconnectConfig) (*Supervisor, error) {
	if config.MinWait <= 0 {
		config.MinWait = DefaultReconnectConfig().MinWait
	}
	if config.MaxWait < config.MinWait {
		config.MaxWait = config.MinWait
	}
	if config.Multiplier < 1 {
		config.Multiplier = DefaultReconnectConfig().Multiplier
	}

	client, err := dial(ctx)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		dial:   dial,
		config: config,
		client: client,
		ctx:    sctx,
		cancel: cancel,
	}, nil
}

// Connected reports whether a live connection is currently held.
func (s *Supervisor) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// Current returns the connection currently held, or nil while reconnecting.
func (s *Supervisor) Current() Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

func (s *Supervisor) acquire() (Client, error) {
	s.mu.RLock()
	client, closed := s.client, s.closed
	s.mu.RUnlock()

	if closed {
		return nil, ErrSupervisorClosed
	}
	if client == nil {
		return nil, ErrNotConnected
	}
	return client, nil
}

// observe inspects the outcome of an operation on client and starts the
// reconnect loop on connectivity failures. The error is returned unchanged.
func (s *Supervisor) observe(client Client, err error) error {
	if !IsConnectivity(err) {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.reconnecting || s.client != client {
		return err
	}

	log.Warn().Err(err).Msg("Store connection lost, reconnecting")

	s.client = nil
	s.reconnecting = true
	_ = client.Close()

	s.wg.Add(1)
	go s.reconnect()

	return err
}

// reconnect dials until it succeeds or the supervisor closes.
func (s *Supervisor) reconnect() {
	defer s.wg.Done()

	retryCount := 0
	currentWait := s.config.MinWait

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		client, err := s.dial(s.ctx)
		if err == nil {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				_ = client.Close()
				return
			}
			s.client = client
			s.reconnecting = false
			s.mu.Unlock()

			log.Info().Int("retries", retryCount).Msg("Store reconnect ok")
			return
		}

		retryCount++
		log.Warn().
			Err(err).
			Dur("wait", currentWait).
			Int("retry", retryCount).
			Msg("Store reconnect failed")

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(currentWait):
		}

		// Calculate next wait with multiplier, capped at max
		nextWait := time.Duration(float64(currentWait) * s.config.Multiplier)
		if nextWait > s.config.MaxWait {
			nextWait = s.config.MaxWait
		}
		currentWait = nextWait
	}
}

// Get implements Client.
func (s *Supervisor) Get(ctx context.Context, key string) ([]byte, error) {
	client, err := s.acquire()
	if err != nil {
		return nil, err
	}
	value, err := client.Get(ctx, key)
	return value, s.observe(client, err)
}

// Set implements Client.
func (s *Supervisor) Set(ctx context.Context, key string, value []byte) error {
	client, err := s.acquire()
	if err != nil {
		return err
	}
	return s.observe(client, client.Set(ctx, key, value))
}

// Delete implements Client.
func (s *Supervisor) Delete(ctx context.Context, keys ...string) (int64, error) {
	client, err := s.acquire()
	if err != nil {
		return 0, err
	}
	n, err := client.Delete(ctx, keys...)
	return n, s.observe(client, err)
}

// Keys implements Client.
func (s *Supervisor) Keys(ctx context.Context, prefix string) ([]string, error) {
	client, err := s.acquire()
	if err != nil {
		return nil, err
	}
	keys, err := client.Keys(ctx, prefix)
	return keys, s.observe(client, err)
}

// Expire implements Client.
func (s *Supervisor) Expire(ctx context.Context, key string, ttl time.Duration) error {
	client, err := s.acquire()
	if err != nil {
		return err
	}
	return s.observe(client, client.Expire(ctx, key, ttl))
}

// ExpireAt implements Client.
func (s *Supervisor) ExpireAt(ctx context.Context, key string, at time.Time) error {
	client, err := s.acquire()
	if err != nil {
		return err
	}
	return s.observe(client, client.ExpireAt(ctx, key, at))
}

// HashGet implements Client.
func (s *Supervisor) HashGet(ctx context.Context, table, field string) ([]byte, error) {
	client, err := s.acquire()
	if err != nil {
		return nil, err
	}
	value, err := client.HashGet(ctx, table, field)
	return value, s.observe(client, err)
}

// HashSet implements Client.
func (s *Supervisor) HashSet(ctx context.Context, table, field string, value []byte) error {
	client, err := s.acquire()
	if err != nil {
		return err
	}
	return s.observe(client, client.HashSet(ctx, table, field, value))
}

// CleanupExpired sweeps the current connection if its backend needs sweeping.
func (s *Supervisor) CleanupExpired(ctx context.Context) (int64, error) {
	client, err := s.acquire()
	if err != nil {
		return 0, err
	}
	expirer, ok := client.(Expirer)
	if !ok {
		return 0, nil
	}
	n, err := expirer.CleanupExpired(ctx)
	return n, s.observe(client, err)
}

// Close stops any reconnect loop and closes the current connection.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	client := s.client
	s.client = nil
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	if client != nil {
		return client.Close()
	}
	return nil
}
