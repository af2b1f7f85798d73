package entity

import (
	"fmt"
	"strconv"
)

// Separator joins the components of table names and keys.
// Type names and bases must not contain it; nothing is escaped.
const Separator = "_"

// TableName returns "{base}_{name}", or "{name}" when the type has no base.
func TableName(c Canon) string {
	if c.Base != "" {
		return c.Base + Separator + c.Name
	}
	return c.Name
}

// Key returns the storage key of one record: "{table}_{id}".
func Key(c Canon, id string) string {
	return TableName(c) + Separator + id
}

// Prefix returns the prefix shared by every key of the type.
func Prefix(c Canon) string {
	return TableName(c) + Separator
}

// KeyPattern returns the glob matching every key of the type: "{table}_*".
func KeyPattern(c Canon) string {
	return Prefix(c) + "*"
}

// IDString renders a caller-supplied identifier as a key component.
// Whole numbers print without a fractional part so 1 and 1.0 share a key.
func IDString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id == float64(int64(id)) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	case float32:
		return IDString(float64(id))
	default:
		return fmt.Sprint(v)
	}
}
