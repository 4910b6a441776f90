package reconcile

import (
	"fmt"
	"sort"

	"booking_server/core/domain"
)

// Strategy decides which side of each conflict survives.
// Every implementation is deterministic: the same input yields the same Resolution.
type Strategy interface {
	Kind() domain.ResolutionStrategyKind
	Resolve(candidates []domain.CandidateEvent, conflicts []domain.ConflictRecord) *domain.Resolution
}

// StrategyFor returns the implementation of kind.
func StrategyFor(kind domain.ResolutionStrategyKind) (Strategy, error) {
	switch kind {
	case domain.StrategyAsk:
		return askStrategy{}, nil
	case domain.StrategyExternalWins:
		return externalWinsStrategy{}, nil
	case domain.StrategyInternalWins:
		return keepInternalStrategy{kind: domain.StrategyInternalWins}, nil
	case domain.StrategySkip:
		return keepInternalStrategy{kind: domain.StrategySkip}, nil
	default:
		return nil, fmt.Errorf("unknown resolution strategy %q", kind)
	}
}

// partition splits candidates into those named by a conflict and the rest.
func partition(candidates []domain.CandidateEvent, conflicts []domain.ConflictRecord) (clean, conflicting []domain.CandidateEvent) {
	hit := make(map[string]bool, len(conflicts))
	for _, c := range conflicts {
		hit[c.ExternalEventID] = true
	}
	for _, cand := range candidates {
		if hit[cand.Event.ID] {
			conflicting = append(conflicting, cand)
		} else {
			clean = append(clean, cand)
		}
	}
	sortCandidates(clean)
	sortCandidates(conflicting)
	return clean, conflicting
}

// acceptAll is what every strategy does with a conflict-free batch.
func acceptAll(kind domain.ResolutionStrategyKind, candidates []domain.CandidateEvent) *domain.Resolution {
	accepted := append([]domain.CandidateEvent(nil), candidates...)
	sortCandidates(accepted)
	return &domain.Resolution{Strategy: kind, Accepted: accepted}
}

// askStrategy never decides on its own; conflicts are handed back for an operator choice.
type askStrategy struct{}

func (askStrategy) Kind() domain.ResolutionStrategyKind { return domain.StrategyAsk }

func (s askStrategy) Resolve(candidates []domain.CandidateEvent, conflicts []domain.ConflictRecord) *domain.Resolution {
	if len(conflicts) == 0 {
		return acceptAll(s.Kind(), candidates)
	}
	pending := append([]domain.ConflictRecord(nil), conflicts...)
	return &domain.Resolution{Strategy: s.Kind(), Pending: pending}
}

// externalWinsStrategy imports every candidate and cancels each appointment it collides with.
// An appointment whose origin event is in the batch is moved by its own upsert, not cancelled.
type externalWinsStrategy struct{}

func (externalWinsStrategy) Kind() domain.ResolutionStrategyKind { return domain.StrategyExternalWins }

func (s externalWinsStrategy) Resolve(candidates []domain.CandidateEvent, conflicts []domain.ConflictRecord) *domain.Resolution {
	res := acceptAll(s.Kind(), candidates)
	inBatch := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		inBatch[cand.Event.ID] = true
	}
	seen := make(map[int64]bool, len(conflicts))
	for _, c := range conflicts {
		if seen[c.InternalAppointmentID] {
			continue
		}
		if c.InternalOriginEventID != "" && inBatch[c.InternalOriginEventID] {
			continue
		}
		seen[c.InternalAppointmentID] = true
		res.CancelledAppointmentIDs = append(res.CancelledAppointmentIDs, c.InternalAppointmentID)
	}
	sort.Slice(res.CancelledAppointmentIDs, func(i, j int) bool {
		return res.CancelledAppointmentIDs[i] < res.CancelledAppointmentIDs[j]
	})
	return res
}

// keepInternalStrategy drops conflicting events and leaves appointments untouched.
// internal_wins and skip share it; skip is normally picked for a single suspended batch.
type keepInternalStrategy struct {
	kind domain.ResolutionStrategyKind
}

func (s keepInternalStrategy) Kind() domain.ResolutionStrategyKind { return s.kind }

func (s keepInternalStrategy) Resolve(candidates []domain.CandidateEvent, conflicts []domain.ConflictRecord) *domain.Resolution {
	clean, conflicting := partition(candidates, conflicts)
	return &domain.Resolution{Strategy: s.kind, Accepted: clean, Rejected: conflicting}
}
