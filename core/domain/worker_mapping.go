package domain

import (
	"fmt"
	"sort"
)

// OwnerKind is what a calendar maps to. It doubles as the integration's mapping_type.
type OwnerKind string

const (
	OwnerEmployee OwnerKind = "employee"
	OwnerResource OwnerKind = "resource"
)

func (k OwnerKind) Valid() bool {
	return k == OwnerEmployee || k == OwnerResource
}

// OwnerRef identifies an employee or resource.
type OwnerRef struct {
	Kind OwnerKind `json:"kind"`
	ID   int64     `json:"id"`
}

func (o OwnerRef) String() string {
	return fmt.Sprintf("%s:%d", o.Kind, o.ID)
}

// Owner is an entry of the owner directory.
type Owner struct {
	ID   int64     `json:"id" db:"id"`
	Kind OwnerKind `json:"kind" db:"kind"`
	Name string    `json:"name" db:"name"`
}

func (o Owner) Ref() OwnerRef {
	return OwnerRef{Kind: o.Kind, ID: o.ID}
}

// CalendarMapping is the calendar_id -> owner table of one integration.
type CalendarMapping map[string]OwnerRef

// IsComplete is true only if every selected calendar has an entry.
func (m CalendarMapping) IsComplete(selected []string) bool {
	return len(m.Unmapped(selected)) == 0
}

// Unmapped returns the selected calendars without an entry, sorted and deduplicated.
func (m CalendarMapping) Unmapped(selected []string) []string {
	seen := make(map[string]struct{}, len(selected))
	var missing []string
	for _, id := range selected {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := m[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

// Owners returns the distinct owners referenced by the selected calendars.
func (m CalendarMapping) Owners(selected []string) []OwnerRef {
	seen := make(map[OwnerRef]struct{})
	var owners []OwnerRef
	for _, id := range selected {
		ref, ok := m[id]
		if !ok {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		owners = append(owners, ref)
	}
	sort.Slice(owners, func(i, j int) bool {
		if owners[i].Kind != owners[j].Kind {
			return owners[i].Kind < owners[j].Kind
		}
		return owners[i].ID < owners[j].ID
	})
	return owners
}
