package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"booking_server/core/domain"
	"booking_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var _ out.IntegrationRepository = (*IntegrationAdapter)(nil)

// IntegrationAdapter implements out.IntegrationRepository using PostgreSQL.
type IntegrationAdapter struct {
	db *sqlx.DB
}

// NewIntegrationAdapter creates a new IntegrationAdapter.
func NewIntegrationAdapter(db *sqlx.DB) *IntegrationAdapter {
	return &IntegrationAdapter{db: db}
}

// integrationRow represents the calendar_integrations row of one business.
type integrationRow struct {
	BusinessID                 uuid.UUID      `db:"business_id"`
	Connected                  bool           `db:"connected"`
	Phase                      string         `db:"phase"`
	SelectedCalendarIDs        pq.StringArray `db:"selected_calendar_ids"`
	MappingType                string         `db:"mapping_type"`
	CalendarSelectionCompleted bool           `db:"calendar_selection_completed"`
	MappingCompleted           bool           `db:"mapping_completed"`
	InitialImportCompleted     bool           `db:"initial_import_completed"`
	ConflictResolutionStrategy string         `db:"conflict_resolution_strategy"`
	ExternalWinsConfirmedAt    sql.NullTime   `db:"external_wins_confirmed_at"`
	LastSyncAt                 sql.NullTime   `db:"last_sync_at"`
	LastError                  sql.NullString `db:"last_error"`
	ConnectedAt                sql.NullTime   `db:"connected_at"`
	DisconnectedAt             sql.NullTime   `db:"disconnected_at"`
	CreatedAt                  time.Time      `db:"created_at"`
	UpdatedAt                  time.Time      `db:"updated_at"`
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *integrationRow) toEntity() *domain.IntegrationState {
	state := &domain.IntegrationState{
		BusinessID:                 r.BusinessID,
		Connected:                  r.Connected,
		Phase:                      domain.LifecyclePhase(r.Phase),
		SelectedCalendarIDs:        []string(r.SelectedCalendarIDs),
		MappingType:                domain.OwnerKind(r.MappingType),
		CalendarSelectionCompleted: r.CalendarSelectionCompleted,
		MappingCompleted:           r.MappingCompleted,
		InitialImportCompleted:     r.InitialImportCompleted,
		ConflictResolutionStrategy: domain.ResolutionStrategyKind(r.ConflictResolutionStrategy),
		ExternalWinsConfirmedAt:    nullTimePtr(r.ExternalWinsConfirmedAt),
		LastSyncAt:                 nullTimePtr(r.LastSyncAt),
		ConnectedAt:                nullTimePtr(r.ConnectedAt),
		DisconnectedAt:             nullTimePtr(r.DisconnectedAt),
		CreatedAt:                  r.CreatedAt,
		UpdatedAt:                  r.UpdatedAt,
	}
	if r.LastError.Valid {
		state.LastError = r.LastError.String
	}
	return state
}

// Get returns (nil, nil) when the business never connected.
func (a *IntegrationAdapter) Get(ctx context.Context, businessID uuid.UUID) (*domain.IntegrationState, error) {
	query := `SELECT * FROM calendar_integrations WHERE business_id = $1`

	var row integrationRow
	err := a.db.QueryRowxContext(ctx, query, businessID).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toEntity(), nil
}

// Save writes the whole aggregate.
func (a *IntegrationAdapter) Save(ctx context.Context, state *domain.IntegrationState) error {
	if state == nil || state.BusinessID == uuid.Nil {
		return ErrInvalidInput
	}

	query := `
		INSERT INTO calendar_integrations (
			business_id, connected, phase, selected_calendar_ids, mapping_type,
			calendar_selection_completed, mapping_completed, initial_import_completed,
			conflict_resolution_strategy, external_wins_confirmed_at, last_sync_at, last_error,
			connected_at, disconnected_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, NULLIF($12, ''),
			$13, $14, $15, $16
		)
		ON CONFLICT (business_id) DO UPDATE SET
			connected = EXCLUDED.connected,
			phase = EXCLUDED.phase,
			selected_calendar_ids = EXCLUDED.selected_calendar_ids,
			mapping_type = EXCLUDED.mapping_type,
			calendar_selection_completed = EXCLUDED.calendar_selection_completed,
			mapping_completed = EXCLUDED.mapping_completed,
			initial_import_completed = EXCLUDED.initial_import_completed,
			conflict_resolution_strategy = EXCLUDED.conflict_resolution_strategy,
			external_wins_confirmed_at = EXCLUDED.external_wins_confirmed_at,
			last_sync_at = EXCLUDED.last_sync_at,
			last_error = EXCLUDED.last_error,
			connected_at = EXCLUDED.connected_at,
			disconnected_at = EXCLUDED.disconnected_at,
			updated_at = EXCLUDED.updated_at`

	selected := state.SelectedCalendarIDs
	if selected == nil {
		selected = []string{}
	}

	_, err := a.db.ExecContext(ctx, query,
		state.BusinessID, state.Connected, string(state.Phase), pq.Array(selected), string(state.MappingType),
		state.CalendarSelectionCompleted, state.MappingCompleted, state.InitialImportCompleted,
		string(state.ConflictResolutionStrategy), toNullTime(state.ExternalWinsConfirmedAt),
		toNullTime(state.LastSyncAt), state.LastError,
		toNullTime(state.ConnectedAt), toNullTime(state.DisconnectedAt), state.CreatedAt, state.UpdatedAt,
	)
	return err
}
