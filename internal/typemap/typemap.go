// Package typemap tracks, per entity type, which fields hold scalars, dates or
// nested objects. The maps live in a hash table in the store itself so records
// written under an evolving field set stay decodable.
package typemap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/entkv/internal/entity"
)

// DefaultTable is the hash table holding every persisted type map.
const DefaultTable = "entity_type_map"

// Map is the field classification of one entity type.
// The JSON shape is the persisted format.
type Map struct {
	Type   string                 `json:"id"`
	Fields map[string]entity.Kind `json:"map"`
}

// Len returns the number of known fields.
func (m Map) Len() int {
	return len(m.Fields)
}

// Kind returns the kind of a field and whether it is known.
func (m Map) Kind(field string) (entity.Kind, bool) {
	k, ok := m.Fields[field]
	return k, ok
}

func (m Map) clone() Map {
	fields := make(map[string]entity.Kind, len(m.Fields))
	for name, k := range m.Fields {
		fields[name] = k
	}
	return Map{Type: m.Type, Fields: fields}
}

// Derive classifies the entity's current field values.
// It depends only on the entity, never on persisted state.
func Derive(e *entity.Entity) Map {
	m := Map{
		Type:   entity.TableName(e.Canon),
		Fields: make(map[string]entity.Kind, len(e.Fields)),
	}
	for name, v := range e.Fields {
		m.Fields[name] = v.Kind()
	}
	return m
}

// Registry reads and writes type maps through a hash table on the store.
// The store is the source of truth; the cache is refreshed on every merge and fetch.
type Registry struct {
	client HashClient
	table  string

	mu    sync.RWMutex
	cache map[string]Map
}

// HashClient is the part of the key-value client the registry needs.
type HashClient interface {
	HashGet(ctx context.Context, table, field string) ([]byte, error)
	HashSet(ctx context.Context, table, field string, value []byte) error
}

// NewRegistry creates a registry storing maps in the given hash table.
// An empty table name selects DefaultTable.
func NewRegistry(client HashClient, table string) *Registry {
	if table == "" {
		table = DefaultTable
	}
	return &Registry{
		client: client,
		table:  table,
		cache:  make(map[string]Map),
	}
}

// Table returns the hash table name.
func (r *Registry) Table() string {
	return r.table
}

// Fetch reads the persisted map for a type. A missing map is not an error.
func (r *Registry) Fetch(ctx context.Context, typeName string) (Map, bool, error) {
	raw, err := r.client.HashGet(ctx, r.table, typeName)
	if err != nil {
		return Map{}, false, fmt.Errorf("failed to read type map %s: %w", typeName, err)
	}
	if raw == nil {
		return Map{}, false, nil
	}

	m, err := parse(typeName, raw)
	if err != nil {
		return Map{}, false, err
	}

	r.remember(m)
	return m, true, nil
}

// MergeAndPersist folds a derived map into the persisted one.
//
// With no persisted map, derived is written and returned. When derived knows
// fewer fields than the persisted map, the persisted map is returned as-is and
// nothing is written. Otherwise derived entries overwrite persisted ones field by
// field, and the merged map is written and returned. Fields are never removed.
func (r *Registry) MergeAndPersist(ctx context.Context, derived Map) (Map, error) {
	persisted, found, err := r.Fetch(ctx, derived.Type)
	if err != nil {
		return Map{}, err
	}

	merged := derived.clone()
	if found {
		if derived.Len() < persisted.Len() {
			log.Debug().
				Str("type", derived.Type).
				Int("derived", derived.Len()).
				Int("persisted", persisted.Len()).
				Msg("Derived type map smaller than persisted, keeping persisted")
			return persisted, nil
		}

		merged = persisted.clone()
		for name, k := range derived.Fields {
			merged.Fields[name] = k
		}
	}

	if err := r.persist(ctx, merged); err != nil {
		return Map{}, err
	}

	r.remember(merged)
	return merged, nil
}

// Cached returns the last map seen for a type without touching the store.
func (r *Registry) Cached(typeName string) (Map, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.cache[typeName]
	if !ok {
		return Map{}, false
	}
	return m.clone(), true
}

func (r *Registry) remember(m Map) {
	r.mu.Lock()
	r.cache[m.Type] = m.clone()
	r.mu.Unlock()
}

func (r *Registry) persist(ctx context.Context, m Map) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal type map %s: %w", m.Type, err)
	}
	if err := r.client.HashSet(ctx, r.table, m.Type, data); err != nil {
		return fmt.Errorf("failed to write type map %s: %w", m.Type, err)
	}
	return nil
}

func parse(typeName string, raw []byte) (Map, error) {
	var m Map
	if err := json.Unmarshal(raw, &m); err != nil {
		return Map{}, fmt.Errorf("failed to parse type map %s: %w", typeName, err)
	}
	if m.Type == "" {
		m.Type = typeName
	}
	if m.Fields == nil {
		m.Fields = make(map[string]entity.Kind)
	}
	for name, k := range m.Fields {
		if !k.Valid() {
			log.Warn().Str("type", typeName).Str("field", name).Str("kind", string(k)).
				Msg("Unknown field kind in type map, ignoring field")
			delete(m.Fields, name)
		}
	}
	return m, nil
}
