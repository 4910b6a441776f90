package domain

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// Active statuses hold a slot on the owner's schedule.
func (s AppointmentStatus) Active() bool {
	return s == AppointmentPending || s == AppointmentConfirmed
}

type AppointmentSource string

const (
	SourceManual           AppointmentSource = "manual"
	SourceExternalCalendar AppointmentSource = "external_calendar"
)

const CancelReasonExternalOverride = "external_override"

// InternalAppointment is a booking in the business ledger.
type InternalAppointment struct {
	ID              int64             `json:"id"`
	BusinessID      uuid.UUID         `json:"business_id"`
	OwnerKind       OwnerKind         `json:"owner_kind"`
	OwnerID         int64             `json:"owner_id"`
	StartsAt        time.Time         `json:"starts_at"`
	DurationMinutes int               `json:"duration_minutes"`
	Status          AppointmentStatus `json:"status"`
	Source          AppointmentSource `json:"source"`
	ExternalEventID *string           `json:"external_event_id,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	CancelReason    string            `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (a *InternalAppointment) Window() TimeWindow {
	return TimeWindow{
		Start: a.StartsAt,
		End:   a.StartsAt.Add(time.Duration(a.DurationMinutes) * time.Minute),
	}
}

func (a *InternalAppointment) IsActive() bool {
	return a.Status.Active()
}

// Date is the appointment day in loc, formatted YYYY-MM-DD.
func (a *InternalAppointment) Date(loc *time.Location) string {
	return a.StartsAt.In(loc).Format("2006-01-02")
}

// StartTime is the wall-clock start in loc, formatted HH:MM.
func (a *InternalAppointment) StartTime(loc *time.Location) string {
	return a.StartsAt.In(loc).Format("15:04")
}

// IsOriginOf reports whether the appointment was imported from (or pushed as) the given event.
func (a *InternalAppointment) IsOriginOf(eventID string) bool {
	return a.ExternalEventID != nil && *a.ExternalEventID == eventID
}

// NewAppointmentFromEvent builds the confirmed appointment a timed booking becomes on import.
func NewAppointmentFromEvent(businessID uuid.UUID, owner OwnerRef, ev ExternalEvent) *InternalAppointment {
	id := ev.ID
	return &InternalAppointment{
		BusinessID:      businessID,
		OwnerKind:       owner.Kind,
		OwnerID:         owner.ID,
		StartsAt:        ev.Start,
		DurationMinutes: ev.DurationMinutes(),
		Status:          AppointmentConfirmed,
		Source:          SourceExternalCalendar,
		ExternalEventID: &id,
		Summary:         ev.Summary,
	}
}

// Closure blocks an owner for whole days, imported from a safe_closure event.
type Closure struct {
	ID              int64     `json:"id"`
	BusinessID      uuid.UUID `json:"business_id"`
	OwnerKind       OwnerKind `json:"owner_kind"`
	OwnerID         int64     `json:"owner_id"`
	StartsOn        time.Time `json:"starts_on"`
	EndsOn          time.Time `json:"ends_on"` // exclusive
	ExternalEventID string    `json:"external_event_id"`
	Summary         string    `json:"summary,omitempty"`
}

func NewClosureFromEvent(businessID uuid.UUID, owner OwnerRef, ev ExternalEvent) *Closure {
	return &Closure{
		BusinessID:      businessID,
		OwnerKind:       owner.Kind,
		OwnerID:         owner.ID,
		StartsOn:        ev.Start,
		EndsOn:          ev.End,
		ExternalEventID: ev.ID,
		Summary:         ev.Summary,
	}
}
