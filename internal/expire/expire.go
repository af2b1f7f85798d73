// Package expire decides how long a saved record lives.
//
// A save can carry its own settings; otherwise the most specific per-type rule
// applies, then the global default. The first present setting wins, in order:
// call TTL, call expire-at, rule TTL, rule expire-at, default TTL, default
// expire-at. A zero TTL or zero time means no expiry.
package expire

import (
	"sort"
	"time"

	"github.com/dokzlo13/entkv/internal/entity"
)

// Spec holds optional expiry settings. Nil means "not set here".
type Spec struct {
	TTL      *time.Duration
	ExpireAt *time.Time
}

// IsZero reports whether neither setting is present.
func (s Spec) IsZero() bool {
	return s.TTL == nil && s.ExpireAt == nil
}

// TTL returns a Spec with only a relative expiry.
func TTL(d time.Duration) Spec {
	return Spec{TTL: &d}
}

// At returns a Spec with only an absolute expiry.
func At(t time.Time) Spec {
	return Spec{ExpireAt: &t}
}

// Mode says which primitive, if any, applies a Resolution.
type Mode int

const (
	None Mode = iota
	Relative
	Absolute
)

func (m Mode) String() string {
	switch m {
	case Relative:
		return "ttl"
	case Absolute:
		return "expire_at"
	default:
		return "none"
	}
}

// Resolution is the effective expiry of one save.
type Resolution struct {
	Mode Mode
	TTL  time.Duration
	At   time.Time
}

// Pattern selects entity types. An empty, "-" or "*" component matches anything.
type Pattern struct {
	Base string
	Name string
}

// ParsePattern parses the canonical "zone/base/name" form used in configuration.
func ParsePattern(s string) Pattern {
	c := entity.ParseCanon(s)
	return Pattern{Base: wildcard(c.Base), Name: wildcard(c.Name)}
}

func wildcard(s string) string {
	if s == "*" || s == "-" {
		return ""
	}
	return s
}

// Matches reports whether the pattern selects canon.
func (p Pattern) Matches(c entity.Canon) bool {
	if p.Base != "" && p.Base != c.Base {
		return false
	}
	if p.Name != "" && p.Name != c.Name {
		return false
	}
	return true
}

// specificity ranks patterns: base+name, then name only, then base only, then wildcard.
func (p Pattern) specificity() int {
	score := 0
	if p.Name != "" {
		score += 2
	}
	if p.Base != "" {
		score++
	}
	return score
}

// Rule binds a pattern to an expiry spec.
type Rule struct {
	Pattern Pattern
	Spec    Spec
}

// Resolver resolves expiry for saves. It is immutable after construction.
type Resolver struct {
	defaults Spec
	rules    []Rule
}

// NewResolver orders the rules by specificity once; rules of equal
// specificity keep their declaration order.
func NewResolver(defaults Spec, rules []Rule) *Resolver {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Pattern.specificity() > ordered[j].Pattern.specificity()
	})
	return &Resolver{defaults: defaults, rules: ordered}
}

// Match returns the spec of the most specific rule selecting canon.
func (r *Resolver) Match(c entity.Canon) (Spec, bool) {
	for _, rule := range r.rules {
		if rule.Pattern.Matches(c) {
			return rule.Spec, true
		}
	}
	return Spec{}, false
}

// Resolve computes the effective expiry of a save of canon.
func (r *Resolver) Resolve(c entity.Canon, override Spec) Resolution {
	matched, _ := r.Match(c)

	for _, s := range []Spec{override, matched, r.defaults} {
		if s.TTL != nil {
			return relative(*s.TTL)
		}
		if s.ExpireAt != nil {
			return absolute(*s.ExpireAt)
		}
	}
	return Resolution{}
}

func relative(d time.Duration) Resolution {
	if d <= 0 {
		return Resolution{}
	}
	return Resolution{Mode: Relative, TTL: d}
}

func absolute(t time.Time) Resolution {
	if t.IsZero() || t.Unix() == 0 {
		return Resolution{}
	}
	return Resolution{Mode: Absolute, At: t}
}
