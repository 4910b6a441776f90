package out

import (
	"context"
	"time"

	"booking_server/core/domain"

	"github.com/google/uuid"
)

// AppointmentStore is the appointment ledger. The sync core only reads it and proposes mutations.
type AppointmentStore interface {
	// FindActiveAppointments returns pending/confirmed appointments of the owners overlapping [from, to).
	FindActiveAppointments(ctx context.Context, businessID uuid.UUID, owners []domain.OwnerRef, from, to time.Time) ([]*domain.InternalAppointment, error)

	// UpsertAppointment inserts or, when ExternalEventID is set and already known, updates in place.
	UpsertAppointment(ctx context.Context, appt *domain.InternalAppointment) (*domain.InternalAppointment, error)

	CancelAppointment(ctx context.Context, id int64, reason string) error
	DeleteAppointments(ctx context.Context, ids []int64) (int, error)

	// UnlinkExternalReference clears external_event_id but keeps the appointments.
	UnlinkExternalReference(ctx context.Context, ids []int64) (int, error)

	// FindExternallySourced returns source=external_calendar appointments starting at or after from.
	FindExternallySourced(ctx context.Context, businessID uuid.UUID, from time.Time) ([]*domain.InternalAppointment, error)

	// FindLinkedManual returns manual appointments that carry an external_event_id.
	FindLinkedManual(ctx context.Context, businessID uuid.UUID) ([]*domain.InternalAppointment, error)
}

// ClosureStore holds whole-day owner closures imported from safe_closure events.
type ClosureStore interface {
	UpsertClosure(ctx context.Context, closure *domain.Closure) (*domain.Closure, error)

	// DeleteFutureClosures removes imported closures ending after from.
	DeleteFutureClosures(ctx context.Context, businessID uuid.UUID, from time.Time) (int, error)
}

// OwnerDirectory lists employees or resources of a business.
type OwnerDirectory interface {
	ListActiveOwners(ctx context.Context, businessID uuid.UUID, kind domain.OwnerKind) ([]domain.Owner, error)
}
