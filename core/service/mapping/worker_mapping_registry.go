package mapping

import (
	"context"
	"fmt"

	"booking_server/core/domain"
	"booking_server/core/port/out"
	"booking_server/pkg/apperr"

	"github.com/google/uuid"
)

// Registry owns the calendar -> owner table of every business and the completeness gate.
type Registry struct {
	repo   out.MappingRepository
	owners out.OwnerDirectory
}

func NewRegistry(repo out.MappingRepository, owners out.OwnerDirectory) *Registry {
	return &Registry{repo: repo, owners: owners}
}

// SetMapping assigns calendarID to owner, replacing any previous entry.
// The owner must be an active employee or resource of the business.
func (r *Registry) SetMapping(ctx context.Context, businessID uuid.UUID, calendarID string, owner domain.OwnerRef) error {
	if calendarID == "" {
		return apperr.InvalidInput("calendar_id", "must not be empty")
	}
	if !owner.Kind.Valid() {
		return apperr.InvalidInput("owner_kind", fmt.Sprintf("unknown owner kind %q", owner.Kind))
	}

	active, err := r.owners.ListActiveOwners(ctx, businessID, owner.Kind)
	if err != nil {
		return apperr.DatabaseError("list owners", err)
	}
	found := false
	for _, o := range active {
		if o.Ref() == owner {
			found = true
			break
		}
	}
	if !found {
		return apperr.NotFound(string(owner.Kind)).WithDetail("owner_id", owner.ID)
	}

	if err := r.repo.UpsertMapping(ctx, businessID, calendarID, owner); err != nil {
		return apperr.DatabaseError("upsert mapping", err)
	}
	return nil
}

// Mapping returns the current table; an empty map when nothing is mapped.
func (r *Registry) Mapping(ctx context.Context, businessID uuid.UUID) (domain.CalendarMapping, error) {
	m, err := r.repo.GetMapping(ctx, businessID)
	if err != nil {
		return nil, apperr.DatabaseError("get mapping", err)
	}
	if m == nil {
		m = domain.CalendarMapping{}
	}
	return m, nil
}

// IsComplete reports whether every selected calendar is mapped.
func (r *Registry) IsComplete(ctx context.Context, businessID uuid.UUID, selected []string) (bool, error) {
	unmapped, err := r.UnmappedCalendars(ctx, businessID, selected)
	if err != nil {
		return false, err
	}
	return len(unmapped) == 0, nil
}

func (r *Registry) UnmappedCalendars(ctx context.Context, businessID uuid.UUID, selected []string) ([]string, error) {
	m, err := r.Mapping(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return m.Unmapped(selected), nil
}

// RequireComplete returns the mapping when complete, or a MAPPING_INCOMPLETE error naming the gaps.
func (r *Registry) RequireComplete(ctx context.Context, businessID uuid.UUID, selected []string) (domain.CalendarMapping, error) {
	if len(selected) == 0 {
		return nil, apperr.MappingIncomplete(nil)
	}
	m, err := r.Mapping(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if unmapped := m.Unmapped(selected); len(unmapped) > 0 {
		return nil, apperr.MappingIncomplete(unmapped)
	}
	return m, nil
}

// Clear removes every entry of the business.
func (r *Registry) Clear(ctx context.Context, businessID uuid.UUID) error {
	if err := r.repo.ClearMappings(ctx, businessID); err != nil {
		return apperr.DatabaseError("clear mappings", err)
	}
	return nil
}
