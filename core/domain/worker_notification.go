package domain

import (
	"time"
)

// =============================================================================
// RealtimeEvent - pushed to operator dashboards over SSE
// =============================================================================

type RealtimeEvent struct {
	Type       EventType `json:"type"`
	Seq        int64     `json:"seq"`
	BusinessID string    `json:"-"`
	Data       any       `json:"data"`
	Timestamp  time.Time `json:"timestamp"`
}

type EventType string

const (
	EventSyncCompleted        EventType = "sync.completed"
	EventSyncConflictsPending EventType = "sync.conflicts_pending"
	EventSyncFailed           EventType = "sync.failed"
	EventIntegrationChanged   EventType = "integration.changed"
	EventDisconnected         EventType = "integration.disconnected"
)

// SyncFailure is the payload of EventSyncFailed.
type SyncFailure struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Outcome *SyncOutcome   `json:"outcome,omitempty"`
}

// NewSyncOutcomeEvent picks the event type from where the pass ended.
func NewSyncOutcomeEvent(outcome *SyncOutcome) *RealtimeEvent {
	eventType := EventSyncCompleted
	if outcome.AwaitingDecision() {
		eventType = EventSyncConflictsPending
	}
	return &RealtimeEvent{
		Type:       eventType,
		BusinessID: outcome.BusinessID.String(),
		Data:       outcome,
		Timestamp:  time.Now(),
	}
}

func NewSyncFailedEvent(businessID string, failure *SyncFailure) *RealtimeEvent {
	return &RealtimeEvent{
		Type:       EventSyncFailed,
		BusinessID: businessID,
		Data:       failure,
		Timestamp:  time.Now(),
	}
}

func NewIntegrationChangedEvent(state *IntegrationState) *RealtimeEvent {
	return &RealtimeEvent{
		Type:       EventIntegrationChanged,
		BusinessID: state.BusinessID.String(),
		Data:       state,
		Timestamp:  time.Now(),
	}
}

func NewDisconnectEvent(report *DisconnectReport) *RealtimeEvent {
	return &RealtimeEvent{
		Type:       EventDisconnected,
		BusinessID: report.BusinessID.String(),
		Data:       report,
		Timestamp:  time.Now(),
	}
}
