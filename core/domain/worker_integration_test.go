package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to LifecyclePhase
		want     bool
	}{
		{PhaseDisconnected, PhaseConnected, true},
		{PhaseConnected, PhaseCalendarsSelected, true},
		{PhaseCalendarsSelected, PhaseMapped, true},
		{PhaseMapped, PhaseImportPending, true},
		{PhaseImportPending, PhaseConflictsPending, true},
		{PhaseImportPending, PhaseSynced, true},
		{PhaseConflictsPending, PhaseImportPending, true},
		{PhaseSynced, PhaseImportPending, true},
		{PhaseConnected, PhaseMapped, false},
		{PhaseCalendarsSelected, PhaseImportPending, false},
		{PhaseMapped, PhaseSynced, false},
		{PhaseDisconnected, PhaseImportPending, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	for phase := range transitions {
		if !CanTransition(phase, PhaseDisconnected) {
			t.Errorf("%s -> disconnected must always be allowed", phase)
		}
	}
}

func TestIntegrationState_Lifecycle(t *testing.T) {
	now := time.Date(2026, 11, 2, 8, 0, 0, 0, time.UTC)
	s := NewIntegrationState(uuid.New(), now)

	if _, err := s.BeginImport(now); err == nil {
		t.Fatal("import from disconnected must fail")
	}
	if err := s.Connect(now); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkMapped(now); err == nil {
		t.Fatal("connected -> mapped must fail")
	}
	if err := s.SelectCalendars([]string{"b", "a", "a", ""}, now); err != nil {
		t.Fatal(err)
	}
	if got := s.SelectedCalendarIDs; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("selection = %v", got)
	}
	if err := s.MarkMapped(now); err != nil {
		t.Fatal(err)
	}

	prev, err := s.BeginImport(now)
	if err != nil || prev != PhaseMapped || s.Phase != PhaseImportPending {
		t.Fatalf("BeginImport = %s, %v (phase %s)", prev, err, s.Phase)
	}
	s.AbortImport(prev, errors.New("provider down"), now)
	if s.Phase != PhaseMapped || s.LastError == "" {
		t.Errorf("after abort: %s %q", s.Phase, s.LastError)
	}

	_, _ = s.BeginImport(now)
	if err := s.SuspendForConflicts(now); err != nil {
		t.Fatal(err)
	}
	if _, err := s.BeginImport(now); err != nil {
		t.Fatalf("resume from conflicts_pending: %v", err)
	}
	if err := s.MarkSynced(now); err != nil {
		t.Fatal(err)
	}
	if !s.InitialImportCompleted || s.LastSyncAt == nil || s.LastError != "" {
		t.Errorf("after sync: %+v", s)
	}

	// a stuck import_pending falls back to the resting phase
	_, _ = s.BeginImport(now)
	prev, err = s.BeginImport(now)
	if err != nil || prev != PhaseSynced {
		t.Errorf("re-entering import_pending: prev=%s err=%v", prev, err)
	}

	s.Disconnect(now)
	if s.Connected || s.Phase != PhaseDisconnected || !s.MappingCompleted {
		t.Errorf("after disconnect: %+v", s)
	}
	if err := s.SelectCalendars([]string{"a"}, now); err == nil {
		t.Error("select while disconnected must fail")
	}
}

func TestIntegrationState_Strategy(t *testing.T) {
	now := time.Now()
	s := NewIntegrationState(uuid.New(), now)

	if s.EffectiveStrategy() != StrategyAsk {
		t.Errorf("default strategy = %s", s.EffectiveStrategy())
	}
	if err := s.SetStrategy(StrategyExternalWins, false, now); !errors.Is(err, ErrConfirmationRequired) {
		t.Errorf("unconfirmed external_wins: %v", err)
	}
	if err := s.SetStrategy("newest", true, now); err == nil {
		t.Error("unknown strategy accepted")
	}
	if err := s.SetStrategy(StrategyExternalWins, true, now); err != nil {
		t.Fatal(err)
	}
	if s.EffectiveStrategy() != StrategyExternalWins || s.ExternalWinsConfirmedAt == nil {
		t.Errorf("confirmed external_wins: %s", s.EffectiveStrategy())
	}

	s.ExternalWinsConfirmedAt = nil
	if s.EffectiveStrategy() != StrategyAsk {
		t.Error("external_wins without confirmation must act as ask")
	}
}

func TestCalendarMapping(t *testing.T) {
	m := CalendarMapping{"a": {Kind: OwnerEmployee, ID: 1}, "c": {Kind: OwnerEmployee, ID: 1}}

	if m.IsComplete([]string{"a", "b"}) {
		t.Error("IsComplete with an unmapped calendar")
	}
	if got := m.Unmapped([]string{"d", "b", "a", "b"}); len(got) != 2 || got[0] != "b" || got[1] != "d" {
		t.Errorf("Unmapped = %v", got)
	}
	if !m.IsComplete([]string{"a", "c"}) {
		t.Error("IsComplete with every calendar mapped")
	}
	if got := m.Owners([]string{"a", "c"}); len(got) != 1 {
		t.Errorf("Owners = %v", got)
	}
}
