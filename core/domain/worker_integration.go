package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Integration lifecycle
// =============================================================================

type LifecyclePhase string

const (
	PhaseDisconnected      LifecyclePhase = "disconnected"
	PhaseConnected         LifecyclePhase = "connected"
	PhaseCalendarsSelected LifecyclePhase = "calendars_selected"
	PhaseMapped            LifecyclePhase = "mapped"
	PhaseImportPending     LifecyclePhase = "import_pending"
	PhaseConflictsPending  LifecyclePhase = "conflicts_pending"
	PhaseSynced            LifecyclePhase = "synced"
)

// transitions lists every legal edge except "any -> disconnected", which is always allowed.
// Self edges on connected/calendars_selected/mapped cover operators revising their choices.
// import_pending -> import_pending recovers a pass that died without releasing its state.
var transitions = map[LifecyclePhase][]LifecyclePhase{
	PhaseDisconnected:      {PhaseConnected},
	PhaseConnected:         {PhaseCalendarsSelected},
	PhaseCalendarsSelected: {PhaseCalendarsSelected, PhaseMapped},
	PhaseMapped:            {PhaseCalendarsSelected, PhaseMapped, PhaseImportPending},
	PhaseImportPending:     {PhaseImportPending, PhaseConflictsPending, PhaseSynced, PhaseMapped},
	PhaseConflictsPending:  {PhaseCalendarsSelected, PhaseImportPending, PhaseSynced},
	PhaseSynced:            {PhaseCalendarsSelected, PhaseImportPending},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to LifecyclePhase) bool {
	if to == PhaseDisconnected {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError is returned by IntegrationState methods on an illegal edge.
type TransitionError struct {
	From   LifecyclePhase
	To     LifecyclePhase
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// =============================================================================
// Resolution strategy selection
// =============================================================================

type ResolutionStrategyKind string

const (
	StrategyAsk          ResolutionStrategyKind = "ask"
	StrategyExternalWins ResolutionStrategyKind = "external_wins"
	StrategyInternalWins ResolutionStrategyKind = "internal_wins"
	StrategySkip         ResolutionStrategyKind = "skip"
)

func (k ResolutionStrategyKind) Valid() bool {
	switch k {
	case StrategyAsk, StrategyExternalWins, StrategyInternalWins, StrategySkip:
		return true
	}
	return false
}

// Destructive strategies cancel existing appointments.
func (k ResolutionStrategyKind) Destructive() bool {
	return k == StrategyExternalWins
}

// =============================================================================
// IntegrationState - the single aggregate for one business's calendar link
// =============================================================================

type IntegrationState struct {
	BusinessID                 uuid.UUID              `json:"business_id"`
	Connected                  bool                   `json:"connected"`
	Phase                      LifecyclePhase         `json:"phase"`
	SelectedCalendarIDs        []string               `json:"selected_calendar_ids"`
	MappingType                OwnerKind              `json:"mapping_type"`
	CalendarSelectionCompleted bool                   `json:"calendar_selection_completed"`
	MappingCompleted           bool                   `json:"mapping_completed"`
	InitialImportCompleted     bool                   `json:"initial_import_completed"`
	ConflictResolutionStrategy ResolutionStrategyKind `json:"conflict_resolution_strategy"`
	ExternalWinsConfirmedAt    *time.Time             `json:"external_wins_confirmed_at,omitempty"`
	LastSyncAt                 *time.Time             `json:"last_sync_at,omitempty"`
	LastError                  string                 `json:"last_error,omitempty"`
	ConnectedAt                *time.Time             `json:"connected_at,omitempty"`
	DisconnectedAt             *time.Time             `json:"disconnected_at,omitempty"`
	CreatedAt                  time.Time              `json:"created_at"`
	UpdatedAt                  time.Time              `json:"updated_at"`
}

// NewIntegrationState returns the state of a business that has never connected.
func NewIntegrationState(businessID uuid.UUID, now time.Time) *IntegrationState {
	return &IntegrationState{
		BusinessID:                 businessID,
		Phase:                      PhaseDisconnected,
		MappingType:                OwnerEmployee,
		ConflictResolutionStrategy: StrategyAsk,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
}

func (s *IntegrationState) move(to LifecyclePhase, now time.Time) error {
	if !CanTransition(s.Phase, to) {
		return &TransitionError{From: s.Phase, To: to}
	}
	s.Phase = to
	s.UpdatedAt = now
	return nil
}

func (s *IntegrationState) requireConnected(to LifecyclePhase) error {
	if !s.Connected {
		return &TransitionError{From: s.Phase, To: to, Reason: "integration is not connected"}
	}
	return nil
}

// Connect consumes a valid-credential signal. Reconnecting resets the wizard flags
// but keeps the previous selection and strategy as history.
func (s *IntegrationState) Connect(now time.Time) error {
	if s.Connected {
		return nil
	}
	if err := s.move(PhaseConnected, now); err != nil {
		return err
	}
	s.Connected = true
	s.CalendarSelectionCompleted = false
	s.MappingCompleted = false
	s.InitialImportCompleted = false
	s.LastError = ""
	s.ConnectedAt = &now
	s.DisconnectedAt = nil
	return nil
}

// SelectCalendars persists a new non-empty selection and reopens mapping.
func (s *IntegrationState) SelectCalendars(ids []string, now time.Time) error {
	if err := s.requireConnected(PhaseCalendarsSelected); err != nil {
		return err
	}
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return &TransitionError{From: s.Phase, To: PhaseCalendarsSelected, Reason: "at least one calendar must be selected"}
	}
	if err := s.move(PhaseCalendarsSelected, now); err != nil {
		return err
	}
	s.SelectedCalendarIDs = ids
	s.CalendarSelectionCompleted = true
	s.MappingCompleted = false
	return nil
}

// SetMappingType is only allowed before mapping has been completed.
func (s *IntegrationState) SetMappingType(kind OwnerKind, now time.Time) error {
	if err := s.requireConnected(s.Phase); err != nil {
		return err
	}
	if !kind.Valid() {
		return &TransitionError{From: s.Phase, To: s.Phase, Reason: fmt.Sprintf("unknown mapping type %q", kind)}
	}
	if s.Phase != PhaseConnected && s.Phase != PhaseCalendarsSelected {
		return &TransitionError{From: s.Phase, To: s.Phase, Reason: "mapping type is fixed once calendars are mapped"}
	}
	s.MappingType = kind
	s.MappingCompleted = false
	s.UpdatedAt = now
	return nil
}

// MarkMapped records that the completeness gate passed.
func (s *IntegrationState) MarkMapped(now time.Time) error {
	if err := s.requireConnected(PhaseMapped); err != nil {
		return err
	}
	if err := s.move(PhaseMapped, now); err != nil {
		return err
	}
	s.MappingCompleted = true
	return nil
}

// BeginImport enters ImportPending and returns the phase to restore if the pass aborts.
func (s *IntegrationState) BeginImport(now time.Time) (LifecyclePhase, error) {
	if err := s.requireConnected(PhaseImportPending); err != nil {
		return s.Phase, err
	}
	if !s.MappingCompleted {
		return s.Phase, &TransitionError{From: s.Phase, To: PhaseImportPending, Reason: "mapping not completed"}
	}
	prev := s.Phase
	if prev == PhaseImportPending {
		prev = s.restingPhase()
	}
	if err := s.move(PhaseImportPending, now); err != nil {
		return prev, err
	}
	return prev, nil
}

// restingPhase is where an interrupted pass falls back to.
func (s *IntegrationState) restingPhase() LifecyclePhase {
	if s.InitialImportCompleted {
		return PhaseSynced
	}
	return PhaseMapped
}

// AbortImport restores the phase a failed pass started from.
func (s *IntegrationState) AbortImport(prev LifecyclePhase, cause error, now time.Time) {
	if s.Phase != PhaseImportPending {
		return
	}
	s.Phase = prev
	if cause != nil {
		s.LastError = cause.Error()
	}
	s.UpdatedAt = now
}

// SuspendForConflicts parks the pass until the operator decides.
func (s *IntegrationState) SuspendForConflicts(now time.Time) error {
	return s.move(PhaseConflictsPending, now)
}

// MarkSynced closes a pass whose accepted events were committed.
func (s *IntegrationState) MarkSynced(now time.Time) error {
	if err := s.move(PhaseSynced, now); err != nil {
		return err
	}
	s.InitialImportCompleted = true
	s.LastSyncAt = &now
	s.LastError = ""
	return nil
}

// Disconnect is allowed from every phase. Milestone flags and selection are kept as history.
func (s *IntegrationState) Disconnect(now time.Time) {
	s.Phase = PhaseDisconnected
	s.Connected = false
	s.DisconnectedAt = &now
	s.UpdatedAt = now
}

// SetStrategy persists a default strategy. external_wins needs confirmed=true.
func (s *IntegrationState) SetStrategy(kind ResolutionStrategyKind, confirmed bool, now time.Time) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown resolution strategy %q", kind)
	}
	if kind.Destructive() {
		if !confirmed {
			return ErrConfirmationRequired
		}
		s.ExternalWinsConfirmedAt = &now
	}
	s.ConflictResolutionStrategy = kind
	s.UpdatedAt = now
	return nil
}

// EffectiveStrategy falls back to ask when nothing usable is persisted.
func (s *IntegrationState) EffectiveStrategy() ResolutionStrategyKind {
	switch {
	case !s.ConflictResolutionStrategy.Valid():
		return StrategyAsk
	case s.ConflictResolutionStrategy.Destructive() && s.ExternalWinsConfirmedAt == nil:
		return StrategyAsk
	default:
		return s.ConflictResolutionStrategy
	}
}

// IsSelected reports whether calendarID is part of the current selection.
func (s *IntegrationState) IsSelected(calendarID string) bool {
	for _, id := range s.SelectedCalendarIDs {
		if id == calendarID {
			return true
		}
	}
	return false
}

// ErrConfirmationRequired guards destructive strategies.
var ErrConfirmationRequired = errors.New("destructive strategy requires explicit confirmation")

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
