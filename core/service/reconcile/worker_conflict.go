package reconcile

import (
	"sort"

	"booking_server/core/domain"
)

// Overlaps is the half-open interval test used everywhere in the sync pass.
func Overlaps(a, b domain.TimeWindow) bool {
	return a.Overlaps(b)
}

// DetectConflicts compares every candidate with every active appointment of the same owner.
// An appointment that originated from the candidate event is a re-sync of itself and is skipped.
// Results are ordered by event id, then appointment id.
func DetectConflicts(candidates []domain.CandidateEvent, appointments []*domain.InternalAppointment) []domain.ConflictRecord {
	byOwner := make(map[domain.OwnerRef][]*domain.InternalAppointment)
	for _, appt := range appointments {
		if appt == nil || !appt.IsActive() {
			continue
		}
		ref := domain.OwnerRef{Kind: appt.OwnerKind, ID: appt.OwnerID}
		byOwner[ref] = append(byOwner[ref], appt)
	}

	var conflicts []domain.ConflictRecord
	for _, cand := range candidates {
		window := cand.Event.Window()
		for _, appt := range byOwner[cand.Owner] {
			if appt.IsOriginOf(cand.Event.ID) {
				continue
			}
			if !Overlaps(window, appt.Window()) {
				continue
			}
			record := domain.ConflictRecord{
				ExternalEventID:       cand.Event.ID,
				InternalAppointmentID: appt.ID,
				Owner:                 cand.Owner,
				ExternalWindow:        window,
				InternalWindow:        appt.Window(),
			}
			if appt.ExternalEventID != nil {
				record.InternalOriginEventID = *appt.ExternalEventID
			}
			conflicts = append(conflicts, record)
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].ExternalEventID != conflicts[j].ExternalEventID {
			return conflicts[i].ExternalEventID < conflicts[j].ExternalEventID
		}
		return conflicts[i].InternalAppointmentID < conflicts[j].InternalAppointmentID
	})
	return conflicts
}

// DropSelfOverlaps keeps, per owner, the earliest of any external events that overlap
// each other and returns the rest as rejected. Ties on start are broken by id.
func DropSelfOverlaps(candidates []domain.CandidateEvent) (kept, rejected []domain.CandidateEvent) {
	sorted := append([]domain.CandidateEvent(nil), candidates...)
	sortCandidates(sorted)

	lastEnd := make(map[domain.OwnerRef]domain.TimeWindow)
	for _, cand := range sorted {
		window := cand.Event.Window()
		if prev, ok := lastEnd[cand.Owner]; ok && window.Start.Before(prev.End) {
			rejected = append(rejected, cand)
			continue
		}
		kept = append(kept, cand)
		if prev, ok := lastEnd[cand.Owner]; !ok || window.End.After(prev.End) {
			lastEnd[cand.Owner] = window
		}
	}
	return kept, rejected
}

func sortCandidates(c []domain.CandidateEvent) {
	sort.SliceStable(c, func(i, j int) bool {
		si, sj := c[i].Event.Start, c[j].Event.Start
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		return c[i].Event.ID < c[j].Event.ID
	})
}
