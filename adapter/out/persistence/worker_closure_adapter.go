package persistence

import (
	"context"
	"database/sql"
	"time"

	"booking_server/core/domain"
	"booking_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var _ out.ClosureStore = (*ClosureAdapter)(nil)

// ClosureAdapter implements out.ClosureStore using PostgreSQL.
type ClosureAdapter struct {
	db *sqlx.DB
}

func NewClosureAdapter(db *sqlx.DB) *ClosureAdapter {
	return &ClosureAdapter{db: db}
}

type closureRow struct {
	ID              int64          `db:"id"`
	BusinessID      uuid.UUID      `db:"business_id"`
	OwnerKind       string         `db:"owner_kind"`
	OwnerID         int64          `db:"owner_id"`
	StartsOn        time.Time      `db:"starts_on"`
	EndsOn          time.Time      `db:"ends_on"`
	ExternalEventID string         `db:"external_event_id"`
	Summary         sql.NullString `db:"summary"`
}

func (r *closureRow) toEntity() *domain.Closure {
	c := &domain.Closure{
		ID:              r.ID,
		BusinessID:      r.BusinessID,
		OwnerKind:       domain.OwnerKind(r.OwnerKind),
		OwnerID:         r.OwnerID,
		StartsOn:        r.StartsOn,
		EndsOn:          r.EndsOn,
		ExternalEventID: r.ExternalEventID,
	}
	if r.Summary.Valid {
		c.Summary = r.Summary.String
	}
	return c
}

// UpsertClosure inserts or moves the closure imported from the same external event.
func (a *ClosureAdapter) UpsertClosure(ctx context.Context, closure *domain.Closure) (*domain.Closure, error) {
	if closure == nil || closure.ExternalEventID == "" || !closure.EndsOn.After(closure.StartsOn) {
		return nil, ErrInvalidInput
	}

	query := `
		INSERT INTO owner_closures (
			business_id, owner_kind, owner_id, starts_on, ends_on, external_event_id, summary
		) VALUES (
			$1, $2, $3, $4, $5, $6, NULLIF($7, '')
		)
		ON CONFLICT (business_id, external_event_id) DO UPDATE SET
			owner_kind = EXCLUDED.owner_kind,
			owner_id = EXCLUDED.owner_id,
			starts_on = EXCLUDED.starts_on,
			ends_on = EXCLUDED.ends_on,
			summary = EXCLUDED.summary,
			updated_at = NOW()
		RETURNING id, business_id, owner_kind, owner_id, starts_on, ends_on, external_event_id, summary`

	var row closureRow
	err := a.db.QueryRowxContext(ctx, query,
		closure.BusinessID, string(closure.OwnerKind), closure.OwnerID,
		closure.StartsOn, closure.EndsOn, closure.ExternalEventID, closure.Summary,
	).StructScan(&row)
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// DeleteFutureClosures removes imported closures ending after from.
func (a *ClosureAdapter) DeleteFutureClosures(ctx context.Context, businessID uuid.UUID, from time.Time) (int, error) {
	result, err := a.db.ExecContext(ctx,
		`DELETE FROM owner_closures WHERE business_id = $1 AND ends_on > $2`,
		businessID, from)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}
