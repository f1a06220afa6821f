package rbac

import (
	"encoding/json"
	"sort"
)

// PermissionSet is an unordered set of permission ids
type PermissionSet map[PermissionID]struct{}

// NewPermissionSet builds a set from ids
func NewPermissionSet(ids ...PermissionID) PermissionSet {
	s := make(PermissionSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// SetFromStrings builds a set from raw string ids, skipping empty values
func SetFromStrings(ids []string) PermissionSet {
	s := make(PermissionSet, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		s[PermissionID(id)] = struct{}{}
	}
	return s
}

// Has reports membership. A nil set contains nothing.
func (s PermissionSet) Has(id PermissionID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of ids in the set
func (s PermissionSet) Len() int {
	return len(s)
}

// Union returns a new set with the ids of s and other
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Difference returns a new set with the ids of s that are not in other
func (s PermissionSet) Difference(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s))
	for id := range s {
		if _, drop := other[id]; !drop {
			out[id] = struct{}{}
		}
	}
	return out
}

// Clone returns an independent copy
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold the same ids
func (s PermissionSet) Equal(other PermissionSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if _, ok := other[id]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the ids in lexical order
func (s PermissionSet) Sorted() []PermissionID {
	ids := make([]PermissionID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Strings returns the ids as sorted strings
func (s PermissionSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, id := range sorted {
		out[i] = string(id)
	}
	return out
}

// MarshalJSON encodes the set as a sorted array
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes a JSON array of ids
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = SetFromStrings(ids)
	return nil
}
