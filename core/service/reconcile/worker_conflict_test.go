package reconcile

import (
	"testing"
	"time"

	"booking_server/core/domain"
)

var alice = domain.OwnerRef{Kind: domain.OwnerEmployee, ID: 1}
var bob = domain.OwnerRef{Kind: domain.OwnerEmployee, ID: 2}

func window(startH, startM, endH, endM int) domain.TimeWindow {
	return domain.TimeWindow{Start: at(startH, startM), End: at(endH, endM)}
}

func candidate(id string, owner domain.OwnerRef, w domain.TimeWindow) domain.CandidateEvent {
	return domain.CandidateEvent{
		Event: domain.ExternalEvent{ID: id, CalendarID: "cal", Start: w.Start, End: w.End},
		Owner: owner,
	}
}

func appointment(id int64, owner domain.OwnerRef, w domain.TimeWindow, status domain.AppointmentStatus) *domain.InternalAppointment {
	return &domain.InternalAppointment{
		ID:              id,
		OwnerKind:       owner.Kind,
		OwnerID:         owner.ID,
		StartsAt:        w.Start,
		DurationMinutes: int(w.Duration() / time.Minute),
		Status:          status,
		Source:          domain.SourceManual,
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.TimeWindow
		want bool
	}{
		{"touching boundary", window(10, 0, 10, 30), window(9, 30, 10, 0), false},
		{"touching other side", window(9, 0, 10, 0), window(10, 0, 11, 0), false},
		{"partial overlap", window(10, 0, 11, 0), window(10, 30, 11, 30), true},
		{"contained", window(10, 0, 12, 0), window(10, 30, 11, 0), true},
		{"identical", window(10, 0, 11, 0), window(10, 0, 11, 0), true},
		{"disjoint", window(8, 0, 9, 0), window(10, 0, 11, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.a, tt.b); got != tt.want {
				t.Errorf("Overlaps(a, b) = %v, want %v", got, tt.want)
			}
			if got := Overlaps(tt.b, tt.a); got != tt.want {
				t.Errorf("Overlaps(b, a) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectConflicts(t *testing.T) {
	imported := appointment(30, alice, window(14, 0, 15, 0), domain.AppointmentConfirmed)
	origin := "moved"
	imported.ExternalEventID = &origin
	imported.Source = domain.SourceExternalCalendar

	appointments := []*domain.InternalAppointment{
		appointment(10, alice, window(9, 30, 10, 0), domain.AppointmentConfirmed),
		appointment(11, alice, window(10, 30, 11, 30), domain.AppointmentPending),
		appointment(12, bob, window(10, 0, 11, 0), domain.AppointmentConfirmed),
		appointment(13, alice, window(10, 0, 11, 0), domain.AppointmentCancelled),
		imported,
	}

	tests := []struct {
		name       string
		candidates []domain.CandidateEvent
		want       [][2]any // {event id, appointment id}
	}{
		{
			name:       "touching boundary is not a conflict",
			candidates: []domain.CandidateEvent{candidate("a", alice, window(10, 0, 10, 30))},
			want:       nil,
		},
		{
			name:       "overlap with active appointment of same owner",
			candidates: []domain.CandidateEvent{candidate("b", alice, window(10, 0, 11, 0))},
			want:       [][2]any{{"b", int64(11)}},
		},
		{
			name:       "other owners are ignored",
			candidates: []domain.CandidateEvent{candidate("c", bob, window(10, 30, 11, 30))},
			want:       [][2]any{{"c", int64(12)}},
		},
		{
			name:       "re-sync of its own appointment is not a conflict",
			candidates: []domain.CandidateEvent{candidate("moved", alice, window(14, 30, 15, 30))},
			want:       nil,
		},
		{
			name:       "other event colliding with an imported appointment is a conflict",
			candidates: []domain.CandidateEvent{candidate("z", alice, window(14, 30, 15, 30))},
			want:       [][2]any{{"z", int64(30)}},
		},
		{
			name: "results are ordered by event then appointment",
			candidates: []domain.CandidateEvent{
				candidate("y", alice, window(9, 0, 12, 0)),
				candidate("x", alice, window(10, 45, 11, 0)),
			},
			want: [][2]any{{"x", int64(11)}, {"y", int64(10)}, {"y", int64(11)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectConflicts(tt.candidates, appointments)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d conflicts (%+v), want %d", len(got), got, len(tt.want))
			}
			for i, w := range tt.want {
				if got[i].ExternalEventID != w[0].(string) || got[i].InternalAppointmentID != w[1].(int64) {
					t.Errorf("conflict[%d] = (%s, %d), want (%s, %d)",
						i, got[i].ExternalEventID, got[i].InternalAppointmentID, w[0], w[1])
				}
			}
		})
	}
}

func TestDropSelfOverlaps(t *testing.T) {
	candidates := []domain.CandidateEvent{
		candidate("late", alice, window(10, 30, 11, 30)),
		candidate("early", alice, window(10, 0, 11, 0)),
		candidate("after", alice, window(11, 30, 12, 0)),
		candidate("bob", bob, window(10, 0, 11, 0)),
		candidate("same-start-b", bob, window(13, 0, 14, 0)),
		candidate("same-start-a", bob, window(13, 0, 13, 30)),
	}

	kept, rejected := DropSelfOverlaps(candidates)

	keptIDs := map[string]bool{}
	for _, k := range kept {
		keptIDs[k.Event.ID] = true
	}
	for _, id := range []string{"early", "after", "bob", "same-start-a"} {
		if !keptIDs[id] {
			t.Errorf("expected %s to be kept", id)
		}
	}
	if len(rejected) != 2 || rejected[0].Event.ID != "late" || rejected[1].Event.ID != "same-start-b" {
		t.Errorf("rejected = %+v", rejected)
	}
}
