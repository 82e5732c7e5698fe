package permissions

import "sort"

// Set is an effective permission set
type Set map[Permission]struct{}

// Has reports set containment
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Codes returns the set's codes sorted, for stable serialization
func (s Set) Codes() []Permission {
	codes := make([]Permission, 0, len(s))
	for p := range s {
		codes = append(codes, p)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// NewSet builds a set from a list of codes
func NewSet(codes ...Permission) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// EffectiveSet computes the union of the baseline permissions of every role
// and the membership's direct grants. Codes absent from the catalog are
// skipped so a retired code in the role map cannot break resolution.
// Deterministic: role order and grant order never change the result.
func EffectiveSet(reg *Registry, roles []Role, direct []Permission) Set {
	set := make(Set)
	for _, role := range roles {
		for _, p := range reg.BaselineFor(role) {
			if IsKnown(p) {
				set[p] = struct{}{}
			}
		}
	}
	for _, p := range direct {
		if IsKnown(p) {
			set[p] = struct{}{}
		}
	}
	return set
}
