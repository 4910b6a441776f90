package persistence

import (
	"context"

	"booking_server/core/domain"
	"booking_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var _ out.OwnerDirectory = (*OwnerAdapter)(nil)

// OwnerAdapter reads the employee and resource directories.
type OwnerAdapter struct {
	db *sqlx.DB
}

func NewOwnerAdapter(db *sqlx.DB) *OwnerAdapter {
	return &OwnerAdapter{db: db}
}

var ownerQueries = map[domain.OwnerKind]string{
	domain.OwnerEmployee: `
		SELECT id, 'employee' AS kind, name
		FROM employees
		WHERE business_id = $1 AND is_active = true
		ORDER BY name, id`,
	domain.OwnerResource: `
		SELECT id, 'resource' AS kind, name
		FROM resources
		WHERE business_id = $1 AND is_active = true
		ORDER BY name, id`,
}

func (a *OwnerAdapter) ListActiveOwners(ctx context.Context, businessID uuid.UUID, kind domain.OwnerKind) ([]domain.Owner, error) {
	query, ok := ownerQueries[kind]
	if !ok {
		return nil, ErrInvalidInput
	}

	var owners []domain.Owner
	if err := a.db.SelectContext(ctx, &owners, query, businessID); err != nil {
		return nil, err
	}
	return owners, nil
}
