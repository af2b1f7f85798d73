// Package events publishes entity change notifications.
package events

import (
	"context"
	"strings"
)

// Event kinds, used as the last topic segment.
const (
	KindSaved   = "saved"
	KindRemoved = "removed"
)

// DefaultPrefix is the first topic segment when none is configured.
const DefaultPrefix = "entkv"

// EntitySaved is published after a record is written.
type EntitySaved struct {
	Table  string         `json:"table"`
	ID     string         `json:"id"`
	Key    string         `json:"key"`
	Fields map[string]any `json:"fields"`
}

// EntitiesRemoved is published after records are deleted.
type EntitiesRemoved struct {
	Table   string   `json:"table"`
	Keys    []string `json:"keys"`
	All     bool     `json:"all,omitempty"`
	Deleted int64    `json:"deleted"`
}

// Topic builds "<prefix>.<table>.<kind>".
func Topic(prefix, table, kind string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return strings.Join([]string{prefix, table, kind}, ".")
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
