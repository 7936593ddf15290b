package storage

import "strings"

// Scope is an ordered set of distinct capability tokens. Equality and
// containment are set-based and order-independent; the space-delimited wire
// form appears only in ParseScope and String.
type Scope []string

// ParseScope parses a space-delimited scope string into a Scope, dropping
// empty and duplicate tokens while preserving first-seen order.
func ParseScope(s string) Scope {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(fields))
	scope := make(Scope, 0, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		scope = append(scope, f)
	}
	return scope
}

// String returns the space-joined wire form.
func (s Scope) String() string {
	return strings.Join(s, " ")
}

// IsEmpty reports whether the scope contains no tokens.
func (s Scope) IsEmpty() bool {
	return len(s) == 0
}

// Has reports whether the scope contains the given token.
func (s Scope) Has(token string) bool {
	for _, t := range s {
		if t == token {
			return true
		}
	}
	return false
}

// Contains reports whether other is a subset of s.
func (s Scope) Contains(other Scope) bool {
	for _, t := range other {
		if !s.Has(t) {
			return false
		}
	}
	return true
}

// Equal reports whether s and other contain the same set of tokens,
// regardless of order.
func (s Scope) Equal(other Scope) bool {
	return len(s) == len(other) && s.Contains(other) && other.Contains(s)
}
