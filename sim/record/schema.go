package record

import "slices"

// Schema is the append-only set of enabled record keys. A key is enabled
// either bare or qualified by a prefix ("prefix.key"); only enabled keys
// ever reach a sink. Keys are never removed for the lifetime of a session.
type Schema struct {
	keys map[string]struct{}
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{keys: make(map[string]struct{})}
}

// Qualify joins prefix and key. An empty prefix yields the bare key.
func Qualify(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Enable adds the qualified form of each key. Re-enabling is a no-op.
func (s *Schema) Enable(keys []string, prefix string) {
	for _, k := range keys {
		s.keys[Qualify(prefix, k)] = struct{}{}
	}
}

// Enabled reports whether the qualified key has been enabled.
func (s *Schema) Enabled(qualified string) bool {
	_, ok := s.keys[qualified]
	return ok
}

// Len returns the number of enabled keys.
func (s *Schema) Len() int { return len(s.keys) }

// Keys returns the enabled keys in sorted order.
func (s *Schema) Keys() []string {
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
