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

var _ out.AppointmentStore = (*AppointmentAdapter)(nil)

// AppointmentAdapter implements out.AppointmentStore using PostgreSQL.
type AppointmentAdapter struct {
	db *sqlx.DB
}

// NewAppointmentAdapter creates a new AppointmentAdapter.
func NewAppointmentAdapter(db *sqlx.DB) *AppointmentAdapter {
	return &AppointmentAdapter{db: db}
}

// appointmentRow represents the database row for an appointment.
type appointmentRow struct {
	ID              int64          `db:"id"`
	BusinessID      uuid.UUID      `db:"business_id"`
	OwnerKind       string         `db:"owner_kind"`
	OwnerID         int64          `db:"owner_id"`
	StartsAt        time.Time      `db:"starts_at"`
	DurationMinutes int            `db:"duration_minutes"`
	Status          string         `db:"status"`
	Source          string         `db:"source"`
	ExternalEventID sql.NullString `db:"external_event_id"`
	Summary         sql.NullString `db:"summary"`
	CancelReason    sql.NullString `db:"cancel_reason"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r *appointmentRow) toEntity() *domain.InternalAppointment {
	appt := &domain.InternalAppointment{
		ID:              r.ID,
		BusinessID:      r.BusinessID,
		OwnerKind:       domain.OwnerKind(r.OwnerKind),
		OwnerID:         r.OwnerID,
		StartsAt:        r.StartsAt,
		DurationMinutes: r.DurationMinutes,
		Status:          domain.AppointmentStatus(r.Status),
		Source:          domain.AppointmentSource(r.Source),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.ExternalEventID.Valid {
		id := r.ExternalEventID.String
		appt.ExternalEventID = &id
	}
	if r.Summary.Valid {
		appt.Summary = r.Summary.String
	}
	if r.CancelReason.Valid {
		appt.CancelReason = r.CancelReason.String
	}
	return appt
}

const appointmentColumns = `
	id, business_id, owner_kind, owner_id, starts_at, duration_minutes,
	status, source, external_event_id, summary, cancel_reason, created_at, updated_at`

func (a *AppointmentAdapter) selectAppointments(ctx context.Context, query string, args ...any) ([]*domain.InternalAppointment, error) {
	var rows []appointmentRow
	if err := a.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	appts := make([]*domain.InternalAppointment, 0, len(rows))
	for i := range rows {
		appts = append(appts, rows[i].toEntity())
	}
	return appts, nil
}

// FindActiveAppointments returns pending/confirmed appointments of the owners overlapping [from, to).
func (a *AppointmentAdapter) FindActiveAppointments(ctx context.Context, businessID uuid.UUID, owners []domain.OwnerRef, from, to time.Time) ([]*domain.InternalAppointment, error) {
	if len(owners) == 0 {
		return nil, nil
	}
	kinds := make([]string, len(owners))
	ids := make([]int64, len(owners))
	for i, o := range owners {
		kinds[i] = string(o.Kind)
		ids[i] = o.ID
	}

	query := `SELECT` + appointmentColumns + `
		FROM appointments
		WHERE business_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND (owner_kind, owner_id) IN (SELECT * FROM unnest($2::text[], $3::bigint[]))
		  AND starts_at < $5
		  AND starts_at + make_interval(mins => duration_minutes) > $4
		ORDER BY starts_at, id`

	return a.selectAppointments(ctx, query, businessID, pq.Array(kinds), pq.Array(ids), from, to)
}

// UpsertAppointment inserts a new appointment or, for a known external_event_id, moves the existing one.
// Terminal statuses (completed, cancelled, no_show) are never reopened by an import.
func (a *AppointmentAdapter) UpsertAppointment(ctx context.Context, appt *domain.InternalAppointment) (*domain.InternalAppointment, error) {
	if appt == nil || appt.DurationMinutes <= 0 {
		return nil, ErrInvalidInput
	}

	var externalID sql.NullString
	if appt.ExternalEventID != nil {
		externalID = sql.NullString{String: *appt.ExternalEventID, Valid: true}
	}

	query := `
		INSERT INTO appointments (
			business_id, owner_kind, owner_id, starts_at, duration_minutes,
			status, source, external_event_id, summary
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, NULLIF($9, '')
		)
		ON CONFLICT (business_id, external_event_id) WHERE external_event_id IS NOT NULL DO UPDATE SET
			owner_kind = EXCLUDED.owner_kind,
			owner_id = EXCLUDED.owner_id,
			starts_at = EXCLUDED.starts_at,
			duration_minutes = EXCLUDED.duration_minutes,
			summary = EXCLUDED.summary,
			status = CASE
				WHEN appointments.status IN ('completed', 'cancelled', 'no_show') THEN appointments.status
				ELSE EXCLUDED.status
			END,
			updated_at = NOW()
		RETURNING` + appointmentColumns

	var row appointmentRow
	err := a.db.QueryRowxContext(ctx, query,
		appt.BusinessID, string(appt.OwnerKind), appt.OwnerID, appt.StartsAt, appt.DurationMinutes,
		string(appt.Status), string(appt.Source), externalID, appt.Summary,
	).StructScan(&row)
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// CancelAppointment marks an appointment cancelled with the given reason.
func (a *AppointmentAdapter) CancelAppointment(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE appointments
		SET status = 'cancelled', cancel_reason = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAppointments hard-deletes the given appointments and returns how many were removed.
func (a *AppointmentAdapter) DeleteAppointments(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := a.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

// UnlinkExternalReference clears external_event_id but keeps the appointments.
func (a *AppointmentAdapter) UnlinkExternalReference(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		UPDATE appointments
		SET external_event_id = NULL, updated_at = NOW()
		WHERE id = ANY($1) AND external_event_id IS NOT NULL`

	result, err := a.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

func (a *AppointmentAdapter) FindExternallySourced(ctx context.Context, businessID uuid.UUID, from time.Time) ([]*domain.InternalAppointment, error) {
	query := `SELECT` + appointmentColumns + `
		FROM appointments
		WHERE business_id = $1 AND source = 'external_calendar' AND starts_at >= $2
		ORDER BY starts_at, id`

	return a.selectAppointments(ctx, query, businessID, from)
}

func (a *AppointmentAdapter) FindLinkedManual(ctx context.Context, businessID uuid.UUID) ([]*domain.InternalAppointment, error) {
	query := `SELECT` + appointmentColumns + `
		FROM appointments
		WHERE business_id = $1 AND source = 'manual' AND external_event_id IS NOT NULL
		ORDER BY id`

	return a.selectAppointments(ctx, query, businessID)
}

// GetAppointment returns (nil, nil) when the id is unknown.
func (a *AppointmentAdapter) GetAppointment(ctx context.Context, id int64) (*domain.InternalAppointment, error) {
	query := `SELECT` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var row appointmentRow
	err := a.db.QueryRowxContext(ctx, query, id).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toEntity(), nil
}
