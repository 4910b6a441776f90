package mapping

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"booking_server/core/domain"
	"booking_server/pkg/apperr"

	"github.com/google/uuid"
)

type fakeMappingRepo struct {
	entries map[uuid.UUID]domain.CalendarMapping
	err     error
}

func newFakeMappingRepo() *fakeMappingRepo {
	return &fakeMappingRepo{entries: make(map[uuid.UUID]domain.CalendarMapping)}
}

func (f *fakeMappingRepo) UpsertMapping(ctx context.Context, businessID uuid.UUID, calendarID string, owner domain.OwnerRef) error {
	if f.err != nil {
		return f.err
	}
	if f.entries[businessID] == nil {
		f.entries[businessID] = domain.CalendarMapping{}
	}
	f.entries[businessID][calendarID] = owner
	return nil
}

func (f *fakeMappingRepo) GetMapping(ctx context.Context, businessID uuid.UUID) (domain.CalendarMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := domain.CalendarMapping{}
	for k, v := range f.entries[businessID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeMappingRepo) ClearMappings(ctx context.Context, businessID uuid.UUID) error {
	delete(f.entries, businessID)
	return f.err
}

type fakeDirectory struct {
	owners []domain.Owner
}

func (f *fakeDirectory) ListActiveOwners(ctx context.Context, businessID uuid.UUID, kind domain.OwnerKind) ([]domain.Owner, error) {
	var out []domain.Owner
	for _, o := range f.owners {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out, nil
}

func newRegistry() (*Registry, *fakeMappingRepo) {
	repo := newFakeMappingRepo()
	dir := &fakeDirectory{owners: []domain.Owner{
		{ID: 1, Kind: domain.OwnerEmployee, Name: "Ana"},
		{ID: 2, Kind: domain.OwnerEmployee, Name: "Bruno"},
		{ID: 9, Kind: domain.OwnerResource, Name: "Chair 1"},
	}}
	return NewRegistry(repo, dir), repo
}

func TestRegistry_SetMapping(t *testing.T) {
	ctx := context.Background()
	biz := uuid.New()

	tests := []struct {
		name     string
		calendar string
		owner    domain.OwnerRef
		wantCode string
	}{
		{"active employee", "cal-a", domain.OwnerRef{Kind: domain.OwnerEmployee, ID: 1}, ""},
		{"active resource", "cal-b", domain.OwnerRef{Kind: domain.OwnerResource, ID: 9}, ""},
		{"unknown owner", "cal-c", domain.OwnerRef{Kind: domain.OwnerEmployee, ID: 77}, apperr.CodeNotFound},
		{"kind mismatch", "cal-c", domain.OwnerRef{Kind: domain.OwnerResource, ID: 1}, apperr.CodeNotFound},
		{"invalid kind", "cal-c", domain.OwnerRef{Kind: "room", ID: 1}, apperr.CodeInvalidInput},
		{"empty calendar", "", domain.OwnerRef{Kind: domain.OwnerEmployee, ID: 1}, apperr.CodeInvalidInput},
	}

	reg, _ := newRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.SetMapping(ctx, biz, tt.calendar, tt.owner)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !apperr.IsCode(err, tt.wantCode) {
				t.Errorf("error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestRegistry_RequireComplete(t *testing.T) {
	ctx := context.Background()
	biz := uuid.New()
	reg, _ := newRegistry()

	selected := []string{"cal-a", "cal-b"}
	if err := reg.SetMapping(ctx, biz, "cal-a", domain.OwnerRef{Kind: domain.OwnerEmployee, ID: 1}); err != nil {
		t.Fatal(err)
	}

	_, err := reg.RequireComplete(ctx, biz, selected)
	if !apperr.IsCode(err, apperr.CodeMappingIncomplete) {
		t.Fatalf("expected MAPPING_INCOMPLETE, got %v", err)
	}
	details := apperr.AsAppError(err).Details["unmapped_calendars"]
	if !reflect.DeepEqual(details, []string{"cal-b"}) {
		t.Errorf("unmapped = %v, want [cal-b]", details)
	}

	complete, err := reg.IsComplete(ctx, biz, selected)
	if err != nil || complete {
		t.Errorf("IsComplete = %v, %v; want false", complete, err)
	}

	if err := reg.SetMapping(ctx, biz, "cal-b", domain.OwnerRef{Kind: domain.OwnerEmployee, ID: 2}); err != nil {
		t.Fatal(err)
	}
	m, err := reg.RequireComplete(ctx, biz, selected)
	if err != nil {
		t.Fatalf("expected complete mapping, got %v", err)
	}
	if m["cal-b"].ID != 2 {
		t.Errorf("cal-b owner = %v", m["cal-b"])
	}

	if _, err := reg.RequireComplete(ctx, biz, nil); !apperr.IsCode(err, apperr.CodeMappingIncomplete) {
		t.Errorf("empty selection must not pass the gate, got %v", err)
	}
}

func TestRegistry_RemapReplaces(t *testing.T) {
	ctx := context.Background()
	biz := uuid.New()
	reg, _ := newRegistry()

	_ = reg.SetMapping(ctx, biz, "cal-a", domain.OwnerRef{Kind: domain.OwnerEmployee, ID: 1})
	_ = reg.SetMapping(ctx, biz, "cal-a", domain.OwnerRef{Kind: domain.OwnerEmployee, ID: 2})

	m, _ := reg.Mapping(ctx, biz)
	if len(m) != 1 || m["cal-a"].ID != 2 {
		t.Errorf("mapping = %v", m)
	}

	if err := reg.Clear(ctx, biz); err != nil {
		t.Fatal(err)
	}
	m, _ = reg.Mapping(ctx, biz)
	if len(m) != 0 {
		t.Errorf("mapping after clear = %v", m)
	}
}

func TestRegistry_RepositoryFailure(t *testing.T) {
	reg, repo := newRegistry()
	repo.err = errors.New("connection refused")

	_, err := reg.Mapping(context.Background(), uuid.New())
	if !apperr.IsCode(err, apperr.CodeDatabaseError) {
		t.Errorf("expected DATABASE_ERROR, got %v", err)
	}
}
