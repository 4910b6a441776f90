package persistence

import (
	"context"

	"booking_server/core/domain"
	"booking_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var _ out.MappingRepository = (*MappingAdapter)(nil)

// MappingAdapter implements out.MappingRepository using PostgreSQL.
type MappingAdapter struct {
	db *sqlx.DB
}

func NewMappingAdapter(db *sqlx.DB) *MappingAdapter {
	return &MappingAdapter{db: db}
}

type mappingRow struct {
	CalendarID string `db:"calendar_id"`
	OwnerKind  string `db:"owner_kind"`
	OwnerID    int64  `db:"owner_id"`
}

func (a *MappingAdapter) UpsertMapping(ctx context.Context, businessID uuid.UUID, calendarID string, owner domain.OwnerRef) error {
	query := `
		INSERT INTO calendar_mappings (business_id, calendar_id, owner_kind, owner_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id, calendar_id) DO UPDATE SET
			owner_kind = EXCLUDED.owner_kind,
			owner_id = EXCLUDED.owner_id,
			updated_at = NOW()`

	_, err := a.db.ExecContext(ctx, query, businessID, calendarID, string(owner.Kind), owner.ID)
	return err
}

// GetMapping returns an empty mapping when nothing is stored.
func (a *MappingAdapter) GetMapping(ctx context.Context, businessID uuid.UUID) (domain.CalendarMapping, error) {
	var rows []mappingRow
	query := `SELECT calendar_id, owner_kind, owner_id FROM calendar_mappings WHERE business_id = $1`
	if err := a.db.SelectContext(ctx, &rows, query, businessID); err != nil {
		return nil, err
	}

	mapping := make(domain.CalendarMapping, len(rows))
	for _, r := range rows {
		mapping[r.CalendarID] = domain.OwnerRef{Kind: domain.OwnerKind(r.OwnerKind), ID: r.OwnerID}
	}
	return mapping, nil
}

func (a *MappingAdapter) ClearMappings(ctx context.Context, businessID uuid.UUID) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM calendar_mappings WHERE business_id = $1`, businessID)
	return err
}
