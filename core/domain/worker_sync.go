package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Sync pass types
// =============================================================================

// SyncTrigger says what started a sync pass.
type SyncTrigger string

const (
	TriggerOperator SyncTrigger = "operator"
	TriggerPush     SyncTrigger = "push"
	TriggerResolve  SyncTrigger = "resolve"
)

// CandidateEvent is a timed booking already attributed to its mapped owner.
type CandidateEvent struct {
	Event ExternalEvent `json:"event"`
	Owner OwnerRef      `json:"owner"`
}

// ConflictRecord pairs a candidate event with an active appointment it overlaps.
// InternalOriginEventID is set when the appointment was itself imported from another event.
type ConflictRecord struct {
	ExternalEventID       string     `json:"external_event_id"`
	InternalAppointmentID int64      `json:"internal_appointment_id"`
	InternalOriginEventID string     `json:"internal_origin_event_id,omitempty"`
	Owner                 OwnerRef   `json:"owner"`
	ExternalWindow        TimeWindow `json:"external_window"`
	InternalWindow        TimeWindow `json:"internal_window"`
}

// Resolution is the decision a strategy produces for one batch.
// Pending is non-empty only when the strategy deferred to the operator.
type Resolution struct {
	Strategy                ResolutionStrategyKind `json:"strategy"`
	Accepted                []CandidateEvent       `json:"accepted"`
	Rejected                []CandidateEvent       `json:"rejected"`
	CancelledAppointmentIDs []int64                `json:"cancelled_appointment_ids"`
	Pending                 []ConflictRecord       `json:"pending,omitempty"`
}

// Suspended reports whether the batch waits for an operator decision.
func (r *Resolution) Suspended() bool {
	return len(r.Pending) > 0
}

// FetchedBatch is what one pass pulled from the provider, kept so a suspended
// pass can be resumed against the same data the operator reviewed.
type FetchedBatch struct {
	BusinessID uuid.UUID       `json:"business_id"`
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Events     []ExternalEvent `json:"events"`
	FetchedAt  time.Time       `json:"fetched_at"`
}

// SyncOutcome is the structured result reported to the operator after every pass.
type SyncOutcome struct {
	BusinessID     uuid.UUID              `json:"business_id"`
	Trigger        SyncTrigger            `json:"trigger"`
	Strategy       ResolutionStrategyKind `json:"strategy"`
	Phase          LifecyclePhase         `json:"phase"`
	ImportedCount  int                    `json:"imported_count"`
	SkippedCount   int                    `json:"skipped_count"`
	FailedCount    int                    `json:"failed_count"`
	CancelledCount int                    `json:"cancelled_count"`
	RemovedCount   int                    `json:"removed_count"`
	ClosureCount   int                    `json:"closure_count"`
	Conflicts      []ConflictRecord       `json:"conflicts"`
	Doubtful       []ExternalEvent        `json:"doubtful,omitempty"`
	StartedAt      time.Time              `json:"started_at"`
	FinishedAt     time.Time              `json:"finished_at"`
}

// AwaitingDecision is true when the pass stopped at conflicts_pending.
func (o *SyncOutcome) AwaitingDecision() bool {
	return o.Phase == PhaseConflictsPending
}

// DisconnectReport records what each cascade step achieved. Step failures do not stop the cascade.
type DisconnectReport struct {
	BusinessID          uuid.UUID         `json:"business_id"`
	WatchesStopped      int               `json:"watches_stopped"`
	AppointmentsDeleted int               `json:"appointments_deleted"`
	ClosuresDeleted     int               `json:"closures_deleted"`
	LinksCleared        int               `json:"links_cleared"`
	CachePurged         bool              `json:"cache_purged"`
	StepErrors          map[string]string `json:"step_errors,omitempty"`
}

func (r *DisconnectReport) Failed(step string, err error) {
	if r.StepErrors == nil {
		r.StepErrors = make(map[string]string)
	}
	r.StepErrors[step] = err.Error()
}

// Clean reports whether every cascade step succeeded.
func (r *DisconnectReport) Clean() bool {
	return len(r.StepErrors) == 0
}
