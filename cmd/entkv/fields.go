package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// splitField splits "key=value" at the first '='.
func splitField(s string) (string, string, bool) {
	i := strings.IndexByte(s, '=')
	if i <= 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// literal decodes v as a JSON literal (number, boolean, null, quoted string,
// object or array), falling back to the plain string.
func literal(v string) any {
	var out any
	if err := json.Unmarshal([]byte(v), &out); err == nil {
		return out
	}
	return v
}

// parseFilter turns repeated key=value flags into a filter map.
func parseFilter(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := splitField(p)
		if !ok {
			return nil, fmt.Errorf("invalid filter %q (expected key=value)", p)
		}
		filter[k] = literal(v)
	}
	return filter, nil
}

// parseFields decodes a JSON object of fields. Names listed in dates must
// hold RFC 3339 strings and become date values.
func parseFields(raw string, dates []string) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("fields must be a JSON object: %w", err)
	}
	if fields == nil {
		fields = make(map[string]any)
	}

	for _, name := range dates {
		s, ok := fields[name].(string)
		if !ok {
			return nil, fmt.Errorf("date field %q must be an RFC 3339 string", name)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("date field %q: %w", name, err)
		}
		fields[name] = t
	}
	return fields, nil
}
