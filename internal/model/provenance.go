package model

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Provenance is the private extended-property map stamped on every mirror.
// It is the only durable sync state.
type Provenance map[string]string

// Keys returns the keys in sorted order.
func (p Provenance) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Clone returns a copy of p. A nil map clones to an empty one.
func (p Provenance) Clone() Provenance {
	out := make(Provenance, len(p))
	maps.Copy(out, p)
	return out
}

// Get returns the value for key, or "" when absent.
func (p Provenance) Get(key string) string {
	return p[key]
}

// Flag reports whether key is set to "true".
func (p Provenance) Flag(key string) bool {
	return p[key] == "true"
}

// Int returns the integer value of key, or 0 when absent or malformed.
func (p Provenance) Int(key string) int {
	n, err := strconv.Atoi(p[key])
	if err != nil {
		return 0
	}
	return n
}

// String renders the map as "k=v" pairs in key order.
func (p Provenance) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, k+"="+p[k])
	}
	return strings.Join(parts, ", ")
}
