// Package codec converts entities to and from the records stored at their keys.
//
// A stored record is a JSON object. Scalars are stored as-is; dates and nested
// objects are stored as strings holding their own JSON encoding, so the record
// alone does not say which strings are dates or objects. The type map supplies
// that on decode.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/entkv/internal/entity"
	"github.com/dokzlo13/entkv/internal/typemap"
)

// ErrDecode is returned for stored records that are not JSON objects.
var ErrDecode = errors.New("codec: malformed record")

// idField holds the identifier in every stored record.
const idField = "id"

// Record is a stored record before or after JSON encoding.
type Record map[string]any

// Encode produces the stored form of e. The kind of each field comes from its
// tagged value, so no type map is needed.
func Encode(e *entity.Entity) ([]byte, error) {
	rec, err := EncodeRecord(e)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", entity.Key(e.Canon, e.ID), err)
	}
	return data, nil
}

// EncodeRecord is Encode without the final JSON step.
func EncodeRecord(e *entity.Entity) (Record, error) {
	rec := make(Record, len(e.Fields)+1)
	for name, v := range e.Fields {
		if name == idField {
			continue
		}
		switch v.Kind() {
		case entity.KindDate, entity.KindObject:
			s, err := json.Marshal(v.Interface())
			if err != nil {
				return nil, fmt.Errorf("failed to encode field %s: %w", name, err)
			}
			rec[name] = string(s)
		default:
			rec[name] = v.Interface()
		}
	}
	rec[idField] = e.ID
	return rec, nil
}

// Decode rebuilds an entity of type canon from a stored record.
//
// Only fields present in both the record and m are restored. Fields the map
// doesn't know are dropped; map fields the record lacks are left out. The
// identifier is always restored. Field values that don't fit their mapped
// kind are kept as scalars.
func Decode(canon entity.Canon, data []byte, m typemap.Map) (*entity.Entity, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: record is not an object", ErrDecode)
	}
	return DecodeRecord(canon, rec, m)
}

// DecodeRecord is Decode on an already parsed record.
func DecodeRecord(canon entity.Canon, rec Record, m typemap.Map) (*entity.Entity, error) {
	e := entity.New(canon)
	if id, ok := rec[idField]; ok && id != nil {
		e.ID = entity.IDString(id)
	}

	for name, raw := range rec {
		if name == idField {
			continue
		}
		kind, ok := m.Kind(name)
		if !ok {
			continue
		}

		e.Fields[name] = decodeField(name, kind, raw)
	}
	return e, nil
}

// decodeField restores a field under its mapped kind. A value stored under an
// earlier kind of the field is kept rather than failing the record: numbers
// under a date kind are unix milliseconds, anything else undecodable stays a
// scalar.
func decodeField(name string, kind entity.Kind, raw any) entity.Value {
	switch kind {
	case entity.KindObject:
		switch v := raw.(type) {
		case string:
			var obj any
			if err := json.Unmarshal([]byte(v), &obj); err == nil {
				return entity.Object(obj)
			}
		case map[string]any, []any:
			return entity.Object(v)
		}

	case entity.KindDate:
		switch v := raw.(type) {
		case string:
			var t time.Time
			if err := json.Unmarshal([]byte(v), &t); err == nil {
				return entity.Date(t)
			}
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return entity.Date(t)
			}
		case float64:
			return entity.Date(time.UnixMilli(int64(v)).UTC())
		}

	default:
		return entity.Scalar(raw)
	}

	log.Debug().
		Str("field", name).
		Str("kind", string(kind)).
		Str("stored", fmt.Sprintf("%T", raw)).
		Msg("Field does not match its mapped kind, keeping raw value")
	return entity.Scalar(raw)
}
