package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether w and other share any instant.
// Touching windows (w.End == other.Start) do not overlap.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && w.End.After(other.Start)
}

// Valid reports whether the window has a positive length.
func (w TimeWindow) Valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.End.After(w.Start)
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// ProviderCalendar is one entry of the provider's calendar list.
type ProviderCalendar struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrimary bool   `json:"is_primary"`
}

// ExternalEvent is an event as fetched from the provider during a single sync pass.
// All-day events start at midnight of their first day and end at midnight after their last day.
type ExternalEvent struct {
	ID         string    `json:"id"`
	CalendarID string    `json:"calendar_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	AllDay     bool      `json:"all_day"`
	Summary    string    `json:"summary"`
}

func (e ExternalEvent) Window() TimeWindow {
	return TimeWindow{Start: e.Start, End: e.End}
}

// DurationMinutes rounds partial minutes up so the imported slot never ends early.
func (e ExternalEvent) DurationMinutes() int {
	if !e.Window().Valid() {
		return 0
	}
	return int(math.Ceil(e.End.Sub(e.Start).Minutes()))
}

// SpanDays is the number of calendar days an all-day event covers.
func (e ExternalEvent) SpanDays() int {
	if e.Start.IsZero() || e.End.IsZero() {
		return 0
	}
	sy, sm, sd := e.Start.Date()
	ey, em, ed := e.End.Date()
	start := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// Malformed reports input the classifier cannot trust.
func (e ExternalEvent) Malformed() bool {
	if strings.TrimSpace(e.ID) == "" || e.Start.IsZero() || e.End.IsZero() {
		return true
	}
	return !e.End.After(e.Start)
}

// EventCategory is the classifier's verdict for an external event.
type EventCategory string

const (
	CategorySafeClosure  EventCategory = "safe_closure"
	CategoryDoubtful     EventCategory = "doubtful"
	CategoryTimedBooking EventCategory = "timed_booking"
)

// WatchChannel is a provider push-notification subscription for one calendar.
type WatchChannel struct {
	BusinessID uuid.UUID `json:"business_id" db:"business_id"`
	CalendarID string    `json:"calendar_id" db:"calendar_id"`
	ChannelID  string    `json:"channel_id" db:"channel_id"`
	ResourceID string    `json:"resource_id" db:"resource_id"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
}

// ExpiresWithin reports whether the channel expires before now+window.
func (w WatchChannel) ExpiresWithin(now time.Time, window time.Duration) bool {
	return w.ExpiresAt.Before(now.Add(window))
}
