package reconcile

import (
	"reflect"
	"testing"

	"booking_server/core/domain"
)

func TestStrategyFor(t *testing.T) {
	for _, kind := range []domain.ResolutionStrategyKind{
		domain.StrategyAsk, domain.StrategyExternalWins, domain.StrategyInternalWins, domain.StrategySkip,
	} {
		s, err := StrategyFor(kind)
		if err != nil {
			t.Fatalf("StrategyFor(%s): %v", kind, err)
		}
		if s.Kind() != kind {
			t.Errorf("Kind() = %s, want %s", s.Kind(), kind)
		}
	}
	if _, err := StrategyFor("newest_wins"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestStrategies_ConflictScenario(t *testing.T) {
	// event 10:00-11:00 collides with appointment 10:30-11:30, event 12:00-12:30 is clean
	candidates := []domain.CandidateEvent{
		candidate("evt-1", alice, window(10, 0, 11, 0)),
		candidate("evt-2", alice, window(12, 0, 12, 30)),
	}
	appointments := []*domain.InternalAppointment{
		appointment(7, alice, window(10, 30, 11, 30), domain.AppointmentConfirmed),
	}
	conflicts := DetectConflicts(candidates, appointments)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}

	tests := []struct {
		kind          domain.ResolutionStrategyKind
		wantAccepted  []string
		wantRejected  []string
		wantCancelled []int64
		wantPending   int
	}{
		{domain.StrategyAsk, nil, nil, nil, 1},
		{domain.StrategyExternalWins, []string{"evt-1", "evt-2"}, nil, []int64{7}, 0},
		{domain.StrategyInternalWins, []string{"evt-2"}, []string{"evt-1"}, nil, 0},
		{domain.StrategySkip, []string{"evt-2"}, []string{"evt-1"}, nil, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			s, _ := StrategyFor(tt.kind)
			res := s.Resolve(candidates, conflicts)

			if got := eventIDs(res.Accepted); !reflect.DeepEqual(got, tt.wantAccepted) {
				t.Errorf("accepted = %v, want %v", got, tt.wantAccepted)
			}
			if got := eventIDs(res.Rejected); !reflect.DeepEqual(got, tt.wantRejected) {
				t.Errorf("rejected = %v, want %v", got, tt.wantRejected)
			}
			if !reflect.DeepEqual(res.CancelledAppointmentIDs, tt.wantCancelled) {
				t.Errorf("cancelled = %v, want %v", res.CancelledAppointmentIDs, tt.wantCancelled)
			}
			if len(res.Pending) != tt.wantPending {
				t.Errorf("pending = %d, want %d", len(res.Pending), tt.wantPending)
			}
			if res.Suspended() != (tt.wantPending > 0) {
				t.Errorf("Suspended() = %v", res.Suspended())
			}

			assertNoDoubleBooking(t, res, appointments)
		})
	}
}

func TestStrategies_NoConflictsAcceptsAll(t *testing.T) {
	candidates := []domain.CandidateEvent{
		candidate("b", alice, window(13, 0, 14, 0)),
		candidate("a", alice, window(9, 0, 10, 0)),
	}
	for _, kind := range []domain.ResolutionStrategyKind{
		domain.StrategyAsk, domain.StrategyExternalWins, domain.StrategyInternalWins, domain.StrategySkip,
	} {
		s, _ := StrategyFor(kind)
		res := s.Resolve(candidates, nil)
		if got := eventIDs(res.Accepted); !reflect.DeepEqual(got, []string{"a", "b"}) {
			t.Errorf("%s: accepted = %v", kind, got)
		}
		if res.Suspended() {
			t.Errorf("%s: must not suspend without conflicts", kind)
		}
	}
}

func TestStrategies_Deterministic(t *testing.T) {
	candidates := []domain.CandidateEvent{
		candidate("c", bob, window(10, 0, 11, 0)),
		candidate("a", alice, window(10, 0, 11, 0)),
		candidate("b", alice, window(15, 0, 16, 0)),
	}
	appointments := []*domain.InternalAppointment{
		appointment(3, bob, window(10, 30, 11, 30), domain.AppointmentConfirmed),
		appointment(1, alice, window(9, 0, 10, 30), domain.AppointmentPending),
		appointment(2, alice, window(10, 15, 10, 45), domain.AppointmentConfirmed),
	}

	for _, kind := range []domain.ResolutionStrategyKind{domain.StrategyExternalWins, domain.StrategyInternalWins} {
		s, _ := StrategyFor(kind)
		first := s.Resolve(candidates, DetectConflicts(candidates, appointments))

		reversed := []domain.CandidateEvent{candidates[2], candidates[1], candidates[0]}
		second := s.Resolve(reversed, DetectConflicts(reversed, appointments))

		if !reflect.DeepEqual(first, second) {
			t.Errorf("%s: resolution depends on input order:\n%+v\n%+v", kind, first, second)
		}
	}
}

func eventIDs(cands []domain.CandidateEvent) []string {
	var ids []string
	for _, c := range cands {
		ids = append(ids, c.Event.ID)
	}
	return ids
}

// assertNoDoubleBooking checks that accepted events never overlap a surviving appointment.
func assertNoDoubleBooking(t *testing.T, res *domain.Resolution, appointments []*domain.InternalAppointment) {
	t.Helper()
	cancelled := make(map[int64]bool)
	for _, id := range res.CancelledAppointmentIDs {
		cancelled[id] = true
	}
	for _, cand := range res.Accepted {
		for _, appt := range appointments {
			if cancelled[appt.ID] || !appt.IsActive() {
				continue
			}
			if appt.OwnerKind == cand.Owner.Kind && appt.OwnerID == cand.Owner.ID && Overlaps(cand.Event.Window(), appt.Window()) {
				t.Errorf("event %s double-books appointment %d", cand.Event.ID, appt.ID)
			}
		}
	}
}
