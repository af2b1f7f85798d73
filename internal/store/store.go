// Package store persists entities on a key-value client.
//
// Each record lives at "{base_}{name}_{id}" as a JSON object. Per-type field
// kinds are kept in a shared hash table so dates and nested objects survive the
// round trip. Saves may expire records according to the configured rules.
//
// List and remove enumerate every key of a type on each call; there is no
// secondary index and no pagination.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/entkv/internal/codec"
	"github.com/dokzlo13/entkv/internal/entity"
	"github.com/dokzlo13/entkv/internal/events"
	"github.com/dokzlo13/entkv/internal/expire"
	"github.com/dokzlo13/entkv/internal/idgen"
	"github.com/dokzlo13/entkv/internal/kv"
	"github.com/dokzlo13/entkv/internal/typemap"
)

var (
	// ErrMissingID is returned by Load without an identifier.
	ErrMissingID = errors.New("store: id is required")

	// ErrInvalidEntity is returned for a nil entity or a type without a name.
	ErrInvalidEntity = errors.New("store: entity type name is required")
)

// SaveOptions are per-call settings for Save.
type SaveOptions struct {
	Expire   *time.Duration // Overrides every configured TTL/expire-at
	ExpireAt *time.Time     // Overrides configured settings when Expire is nil
	ID       string         // Used when the entity has no identifier
}

// Filter selects records whose decoded fields all equal the given values.
// The "id" key compares against the identifier.
type Filter map[string]any

// Matches reports whether e satisfies every condition of the filter.
func (f Filter) Matches(e *entity.Entity) bool {
	for name, want := range f {
		if name == "id" {
			if want == nil || e.ID != entity.IDString(want) {
				return false
			}
			continue
		}
		got, ok := e.Get(name)
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// RemoveQuery selects the records Remove deletes.
type RemoveQuery struct {
	All    bool
	Filter Filter
}

// Store is the entity persistence facade.
// Calls may run concurrently; nothing is locked across the steps of a call.
type Store struct {
	client      kv.Client
	registry    *typemap.Registry
	resolver    *expire.Resolver
	newID       idgen.Generator
	publisher   events.Publisher
	topicPrefix string
}

// Option configures a Store.
type Option func(*Store)

// WithResolver sets the expiry resolver. Without it nothing expires.
func WithResolver(r *expire.Resolver) Option {
	return func(s *Store) { s.resolver = r }
}

// WithIDGenerator sets how missing identifiers are generated.
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Store) { s.newID = g }
}

// WithPublisher sets where change events go, under topics "<prefix>.<table>.<kind>".
func WithPublisher(p events.Publisher, prefix string) Option {
	return func(s *Store) {
		s.publisher = p
		s.topicPrefix = prefix
	}
}

// WithRegistryTable sets the hash table holding type maps.
func WithRegistryTable(table string) Option {
	return func(s *Store) { s.registry = typemap.NewRegistry(s.client, table) }
}

// New creates a store on client. The store owns its type map registry.
func New(client kv.Client, opts ...Option) *Store {
	s := &Store{
		client:    client,
		resolver:  expire.NewResolver(expire.Spec{}, nil),
		newID:     idgen.UUID,
		publisher: &events.NoopPublisher{},
	}
	s.registry = typemap.NewRegistry(client, "")
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the store's type map registry.
func (s *Store) Registry() *typemap.Registry {
	return s.registry
}

// Client returns the underlying key-value client.
func (s *Store) Client() kv.Client {
	return s.client
}

// Close closes the publisher and the client.
func (s *Store) Close() error {
	if err := s.publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close event publisher")
	}
	return s.client.Close()
}

// Save writes e and applies its expiry. An entity without an identifier gets
// opts.ID or a generated one; e is updated in place and returned.
//
// A failure to merge the type map is logged and the write goes ahead. A failed
// write aborts before any expiry is applied.
func (s *Store) Save(ctx context.Context, e *entity.Entity, opts SaveOptions) (*entity.Entity, error) {
	if e == nil || e.Canon.Name == "" {
		return nil, ErrInvalidEntity
	}

	if e.ID == "" {
		if opts.ID != "" {
			e.ID = opts.ID
		} else {
			id, err := s.newID()
			if err != nil {
				return nil, err
			}
			e.ID = id
		}
	}

	key := entity.Key(e.Canon, e.ID)

	if _, err := s.registry.MergeAndPersist(ctx, typemap.Derive(e)); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to merge type map, saving record anyway")
	}

	data, err := codec.Encode(e)
	if err != nil {
		return nil, err
	}

	if err := s.client.Set(ctx, key, data); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", key, err)
	}

	res := s.resolver.Resolve(e.Canon, expire.Spec{TTL: opts.Expire, ExpireAt: opts.ExpireAt})
	if err := s.applyExpiry(ctx, key, res); err != nil {
		return nil, err
	}

	log.Debug().
		Str("key", key).
		Stringer("expiry", res.Mode).
		Msg("Saved entity")

	s.publish(ctx, entity.TableName(e.Canon), events.KindSaved, events.EntitySaved{
		Table:  entity.TableName(e.Canon),
		ID:     e.ID,
		Key:    key,
		Fields: e.Map(),
	})

	return e, nil
}

func (s *Store) applyExpiry(ctx context.Context, key string, res expire.Resolution) error {
	switch res.Mode {
	case expire.Relative:
		if err := s.client.Expire(ctx, key, res.TTL); err != nil {
			return fmt.Errorf("failed to set ttl on %s: %w", key, err)
		}
	case expire.Absolute:
		if err := s.client.ExpireAt(ctx, key, res.At); err != nil {
			return fmt.Errorf("failed to set expire-at on %s: %w", key, err)
		}
	}
	return nil
}

// Load reads one record. A missing record returns (nil, nil).
func (s *Store) Load(ctx context.Context, canon entity.Canon, id string) (*entity.Entity, error) {
	if canon.Name == "" {
		return nil, ErrInvalidEntity
	}
	if id == "" {
		return nil, ErrMissingID
	}

	m, _, err := s.registry.Fetch(ctx, entity.TableName(canon))
	if err != nil {
		return nil, err
	}

	key := entity.Key(canon, id)
	data, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if data == nil {
		log.Debug().Str("key", key).Msg("Entity not found")
		return nil, nil
	}

	e, err := codec.Decode(canon, data, m)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	if e.ID == "" {
		e.ID = id
	}
	return e, nil
}

// List returns every record of the type matching filter. An empty filter
// matches all records. Keys are read one by one.
func (s *Store) List(ctx context.Context, canon entity.Canon, filter Filter) ([]*entity.Entity, error) {
	matched, err := s.listKeys(ctx, canon, filter)
	if err != nil {
		return nil, err
	}
	list := make([]*entity.Entity, 0, len(matched))
	for _, m := range matched {
		list = append(list, m.e)
	}
	return list, nil
}

// listed is a matched record with the key it was read from.
type listed struct {
	key string
	e   *entity.Entity
}

func (s *Store) listKeys(ctx context.Context, canon entity.Canon, filter Filter) ([]listed, error) {
	if canon.Name == "" {
		return nil, ErrInvalidEntity
	}

	table := entity.TableName(canon)
	m, _, err := s.registry.Fetch(ctx, table)
	if err != nil {
		return nil, err
	}

	keys, err := s.client.Keys(ctx, entity.Prefix(canon))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}

	matched := make([]listed, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", key, err)
		}
		// Expired or removed since the scan.
		if data == nil {
			continue
		}

		e, err := codec.Decode(canon, data, m)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		if filter.Matches(e) {
			matched = append(matched, listed{key: key, e: e})
		}
	}

	log.Debug().Str("table", table).Int("scanned", len(keys)).Int("matched", len(matched)).Msg("Listed entities")
	return matched, nil
}

// Remove deletes every record of the type when q.All is set, otherwise the
// records List returns for q.Filter. It returns how many keys were deleted.
func (s *Store) Remove(ctx context.Context, canon entity.Canon, q RemoveQuery) (int64, error) {
	if canon.Name == "" {
		return 0, ErrInvalidEntity
	}

	table := entity.TableName(canon)

	var keys []string
	if q.All {
		scanned, err := s.client.Keys(ctx, entity.Prefix(canon))
		if err != nil {
			return 0, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		keys = scanned
	} else {
		matched, err := s.listKeys(ctx, canon, q.Filter)
		if err != nil {
			return 0, err
		}
		for _, m := range matched {
			keys = append(keys, m.key)
		}
	}

	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := s.client.Delete(ctx, keys...)
	if err != nil {
		return 0, fmt.Errorf("failed to remove from %s: %w", table, err)
	}

	log.Debug().Str("table", table).Int64("deleted", deleted).Bool("all", q.All).Msg("Removed entities")

	s.publish(ctx, table, events.KindRemoved, events.EntitiesRemoved{
		Table:   table,
		Keys:    keys,
		All:     q.All,
		Deleted: deleted,
	})

	return deleted, nil
}

// publish emits a change event. Failures are logged, never returned.
func (s *Store) publish(ctx context.Context, table, kind string, event any) {
	topic := events.Topic(s.topicPrefix, table, kind)
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to publish event")
	}
}
