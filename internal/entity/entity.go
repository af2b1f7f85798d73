// Package entity defines the records persisted by the store: a typed, identified
// set of named fields, plus the naming rules that map entity types onto keys.
package entity

import (
	"sort"
	"strings"
)

// Canon is the canonical type descriptor of an entity.
// Base is an optional namespace; Name is required.
type Canon struct {
	Base string
	Name string
}

// ParseCanon parses "zone/base/name", "base/name" or "name".
// A "-" component means unset. The zone is accepted and ignored.
func ParseCanon(s string) Canon {
	parts := strings.Split(s, "/")
	for i, p := range parts {
		if p == "-" {
			parts[i] = ""
		}
	}

	switch len(parts) {
	case 1:
		return Canon{Name: parts[0]}
	case 2:
		return Canon{Base: parts[0], Name: parts[1]}
	default:
		n := len(parts)
		return Canon{Base: parts[n-2], Name: parts[n-1]}
	}
}

// String returns the canonical "base/name" form, using "-" for an unset base.
func (c Canon) String() string {
	base := c.Base
	if base == "" {
		base = "-"
	}
	return base + "/" + c.Name
}

// Entity is a typed, identified record.
type Entity struct {
	Canon  Canon
	ID     string
	Fields map[string]Value
}

// New creates an empty entity of the given type.
func New(canon Canon) *Entity {
	return &Entity{
		Canon:  canon,
		Fields: make(map[string]Value),
	}
}

// FromMap creates an entity whose fields are classified from plain Go values.
// An "id" member becomes the identifier instead of a field.
func FromMap(canon Canon, fields map[string]any) *Entity {
	e := New(canon)
	for name, v := range fields {
		if name == "id" {
			if v != nil {
				e.ID = IDString(v)
			}
			continue
		}
		e.Fields[name] = Classify(v)
	}
	return e
}

// Set stores a field value.
func (e *Entity) Set(name string, v Value) *Entity {
	if e.Fields == nil {
		e.Fields = make(map[string]Value)
	}
	e.Fields[name] = v
	return e
}

// Get returns a field value.
func (e *Entity) Get(name string) (Value, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// FieldNames returns the field names in sorted order.
func (e *Entity) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns the entity as plain Go values, including the identifier.
func (e *Entity) Map() map[string]any {
	m := make(map[string]any, len(e.Fields)+1)
	for name, v := range e.Fields {
		m[name] = v.Interface()
	}
	if e.ID != "" {
		m["id"] = e.ID
	}
	return m
}
