package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking_server/core/domain"
	"booking_server/core/port/in"
	"booking_server/core/service/reconcile"
	"booking_server/pkg/apperr"
	"booking_server/pkg/logger"

	"github.com/google/uuid"
)

// passOptions describe one sync pass.
type passOptions struct {
	trigger      domain.SyncTrigger
	strategy     domain.ResolutionStrategyKind // empty: the persisted effective strategy
	confirmed    map[string]bool
	useCache     bool
	requirePhase domain.LifecyclePhase
}

// passPlan is everything decided before the first write.
type passPlan struct {
	batch       *domain.FetchedBatch
	resolution  *domain.Resolution
	conflicts   []domain.ConflictRecord
	overlapping []domain.CandidateEvent
	closures    []domain.CandidateEvent
	doubtful    []domain.ExternalEvent
}

// =============================================================================
// Entry points
// =============================================================================

// Import runs an operator-triggered pass with the persisted strategy.
func (m *Manager) Import(ctx context.Context, businessID uuid.UUID, req *in.ImportRequest) (*domain.SyncOutcome, error) {
	opts := passOptions{trigger: domain.TriggerOperator}
	if req != nil {
		opts.confirmed = toSet(req.ConfirmedDoubtfulIDs)
	}
	return m.runPass(ctx, businessID, opts)
}

// ResolveConflicts applies a one-off strategy to the batch suspended at conflicts_pending.
// The persisted default strategy is not changed.
func (m *Manager) ResolveConflicts(ctx context.Context, businessID uuid.UUID, req *in.ResolveRequest) (*domain.SyncOutcome, error) {
	if req == nil {
		return nil, apperr.BadRequest("strategy is required")
	}
	switch {
	case !req.Strategy.Valid():
		return nil, apperr.InvalidInput("strategy", "must be one of external_wins, internal_wins, skip")
	case req.Strategy == domain.StrategyAsk:
		return nil, apperr.ConflictsUnresolved()
	case req.Strategy.Destructive() && !req.Confirm:
		return nil, apperr.ConfirmationRequired(string(req.Strategy))
	}

	return m.runPass(ctx, businessID, passOptions{
		trigger:      domain.TriggerResolve,
		strategy:     req.Strategy,
		confirmed:    toSet(req.ConfirmedDoubtfulIDs),
		useCache:     true,
		requirePhase: domain.PhaseConflictsPending,
	})
}

// Sync runs a background pass. Integrations that never finished their first import are skipped,
// and concurrent triggers for the same business share one pass.
func (m *Manager) Sync(ctx context.Context, businessID uuid.UUID, trigger domain.SyncTrigger) (*domain.SyncOutcome, error) {
	state, err := m.deps.States.Get(ctx, businessID)
	if err != nil {
		return nil, apperr.DatabaseError("get integration", err)
	}
	if state == nil || !state.Connected || !state.MappingCompleted || !state.InitialImportCompleted {
		logger.Info("[Manager.Sync] business %s not ready for %s sync, skipping", businessID, trigger)
		return nil, nil
	}

	// the pass outlives any single caller; runPass bounds it by PassTimeout
	passCtx := context.WithoutCancel(ctx)
	v, err, shared := m.guard.coalesce(ctx, businessID.String(), func() (any, error) {
		return m.runPass(passCtx, businessID, passOptions{trigger: trigger})
	})
	if shared {
		logger.Debug("[Manager.Sync] business %s: %s trigger coalesced", businessID, trigger)
	}
	outcome, _ := v.(*domain.SyncOutcome)
	return outcome, err
}

func (m *Manager) runPass(ctx context.Context, businessID uuid.UUID, opts passOptions) (*domain.SyncOutcome, error) {
	var outcome *domain.SyncOutcome
	err := m.locked(ctx, businessID, m.cfg.LockWait, func(ctx context.Context) error {
		var err error
		outcome, err = m.pass(ctx, businessID, opts)
		return err
	})
	return outcome, err
}

// =============================================================================
// Pass: fetch -> classify -> detect -> resolve -> commit
// =============================================================================

func (m *Manager) pass(ctx context.Context, businessID uuid.UUID, opts passOptions) (*domain.SyncOutcome, error) {
	state, err := m.connectedState(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if opts.requirePhase != "" && state.Phase != opts.requirePhase {
		return nil, apperr.InvalidTransition(string(state.Phase), string(domain.PhaseImportPending)).
			WithDetail("reason", fmt.Sprintf("integration is not in %s", opts.requirePhase))
	}

	// gate: nothing is written while the mapping is incomplete
	current, err := m.registry.RequireComplete(ctx, businessID, state.SelectedCalendarIDs)
	if err != nil {
		return nil, err
	}

	kind := opts.strategy
	if kind == "" {
		kind = state.EffectiveStrategy()
	}
	strategy, err := reconcile.StrategyFor(kind)
	if err != nil {
		return nil, apperr.InvalidInput("strategy", err.Error())
	}

	startedAt := m.now()
	prev, err := state.BeginImport(startedAt)
	if err != nil {
		return nil, transitionErr(err)
	}
	if err := m.save(ctx, state); err != nil {
		return nil, err
	}

	outcome := &domain.SyncOutcome{
		BusinessID: businessID,
		Trigger:    opts.trigger,
		Strategy:   kind,
		StartedAt:  startedAt,
	}

	fail := func(cause error) (*domain.SyncOutcome, error) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !apperr.IsCode(cause, apperr.CodePartialCommitFailure) {
			cause = apperr.Timeout("sync pass").WithError(cause)
		}
		detached := context.WithoutCancel(ctx)
		state.AbortImport(prev, cause, m.now())
		if err := m.save(detached, state); err != nil {
			logger.WithError(err).Error("[Manager.pass] business %s: failed to restore phase %s", businessID, prev)
		}
		outcome.Phase = state.Phase
		outcome.FinishedAt = m.now()

		appErr := apperr.AsAppError(cause)
		m.notify(detached, domain.NewSyncFailedEvent(businessID.String(), &domain.SyncFailure{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
			Outcome: outcome,
		}))
		logger.WithError(cause).Warn("[Manager.pass] business %s: %s pass aborted", businessID, opts.trigger)
		return outcome, cause
	}

	batch, err := m.loadOrFetch(ctx, state, opts.useCache, startedAt)
	if err != nil {
		return fail(err)
	}

	plan, err := m.evaluate(ctx, state, current, batch, strategy, opts.confirmed)
	if err != nil {
		return fail(err)
	}
	outcome.Conflicts = plan.conflicts
	outcome.Doubtful = plan.doubtful

	if plan.resolution.Suspended() {
		return m.suspend(ctx, state, plan, outcome)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := m.commit(ctx, businessID, plan, outcome); err != nil {
		return fail(apperr.PartialCommitFailure(outcome.ImportedCount, outcome.FailedCount, err))
	}

	if err := state.MarkSynced(m.now()); err != nil {
		return fail(transitionErr(err))
	}
	if err := m.save(ctx, state); err != nil {
		return outcome, err
	}
	if err := m.deps.Batches.PurgeBatch(ctx, businessID); err != nil {
		logger.WithError(err).Warn("[Manager.pass] business %s: batch cache purge failed", businessID)
	}
	m.reconcileWatches(ctx, state)

	outcome.Phase = state.Phase
	outcome.FinishedAt = m.now()
	m.notify(ctx, domain.NewSyncOutcomeEvent(outcome))

	logger.Info("[Manager.pass] business %s %s pass: imported=%d skipped=%d cancelled=%d removed=%d closures=%d",
		businessID, opts.trigger, outcome.ImportedCount, outcome.SkippedCount,
		outcome.CancelledCount, outcome.RemovedCount, outcome.ClosureCount)
	return outcome, nil
}

// suspend parks the pass at conflicts_pending. Nothing has been committed.
func (m *Manager) suspend(ctx context.Context, state *domain.IntegrationState, plan *passPlan, outcome *domain.SyncOutcome) (*domain.SyncOutcome, error) {
	if err := m.deps.Batches.StoreBatch(ctx, plan.batch); err != nil {
		logger.WithError(err).Warn("[Manager.suspend] business %s: batch not cached, resolve will refetch", state.BusinessID)
	}
	if err := state.SuspendForConflicts(m.now()); err != nil {
		return outcome, transitionErr(err)
	}
	if err := m.save(ctx, state); err != nil {
		return outcome, err
	}

	outcome.Conflicts = plan.resolution.Pending
	outcome.Phase = state.Phase
	outcome.FinishedAt = m.now()
	m.notify(ctx, domain.NewSyncOutcomeEvent(outcome))

	logger.Info("[Manager.suspend] business %s: %d conflict(s) await a decision", state.BusinessID, len(outcome.Conflicts))
	return outcome, nil
}

func (m *Manager) loadOrFetch(ctx context.Context, state *domain.IntegrationState, useCache bool, now time.Time) (*domain.FetchedBatch, error) {
	if useCache {
		batch, err := m.deps.Batches.LoadBatch(ctx, state.BusinessID)
		if err != nil {
			logger.WithError(err).Warn("[Manager.loadOrFetch] business %s: batch cache read failed", state.BusinessID)
		}
		if batch != nil {
			return batch, nil
		}
	}
	return m.fetch(ctx, state, now)
}

// fetch pulls the horizon of every selected calendar. One failed calendar aborts the whole fetch.
func (m *Manager) fetch(ctx context.Context, state *domain.IntegrationState, now time.Time) (*domain.FetchedBatch, error) {
	token, err := m.token(ctx, state.BusinessID)
	if err != nil {
		return nil, err
	}

	batch := &domain.FetchedBatch{
		BusinessID: state.BusinessID,
		From:       now,
		To:         now.Add(m.cfg.ImportHorizon),
		FetchedAt:  now,
	}
	for _, calendarID := range state.SelectedCalendarIDs {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.ProviderTimeout)
		events, err := m.deps.Provider.ListEvents(callCtx, token, calendarID, batch.From, batch.To)
		cancel()
		if err != nil {
			return nil, m.providerErr(err)
		}
		for _, ev := range events {
			if ev.CalendarID == "" {
				ev.CalendarID = calendarID
			}
			batch.Events = append(batch.Events, ev)
		}
	}
	return batch, nil
}

func (m *Manager) evaluate(
	ctx context.Context,
	state *domain.IntegrationState,
	current domain.CalendarMapping,
	batch *domain.FetchedBatch,
	strategy reconcile.Strategy,
	confirmed map[string]bool,
) (*passPlan, error) {
	timed, closures, doubtful := m.classifier.Split(batch.Events, confirmed)

	plan := &passPlan{batch: batch, doubtful: doubtful}
	var candidates []domain.CandidateEvent
	for _, ev := range timed {
		if owner, ok := m.ownerOf(state, current, ev); ok {
			candidates = append(candidates, domain.CandidateEvent{Event: ev, Owner: owner})
		}
	}
	for _, ev := range closures {
		if owner, ok := m.ownerOf(state, current, ev); ok {
			plan.closures = append(plan.closures, domain.CandidateEvent{Event: ev, Owner: owner})
		}
	}

	kept, overlapping := reconcile.DropSelfOverlaps(candidates)
	plan.overlapping = overlapping

	owners := current.Owners(state.SelectedCalendarIDs)
	appointments, err := m.deps.Appointments.FindActiveAppointments(ctx, state.BusinessID, owners, batch.From, batch.To)
	if err != nil {
		return nil, apperr.DatabaseError("find active appointments", err)
	}

	plan.conflicts = reconcile.DetectConflicts(kept, appointments)
	plan.resolution = strategy.Resolve(kept, plan.conflicts)
	return plan, nil
}

func (m *Manager) ownerOf(state *domain.IntegrationState, current domain.CalendarMapping, ev domain.ExternalEvent) (domain.OwnerRef, bool) {
	if !state.IsSelected(ev.CalendarID) {
		return domain.OwnerRef{}, false
	}
	owner, ok := current[ev.CalendarID]
	return owner, ok
}

// commit applies a resolved plan. Steps run in order: cancellations, appointment upserts,
// removal of vanished events, closures. Failures are counted and returned joined.
// An event is not imported while the appointment it conflicts with is still in its slot,
// whether because the cancellation failed or because the move of its own event failed.
func (m *Manager) commit(ctx context.Context, businessID uuid.UUID, plan *passPlan, outcome *domain.SyncOutcome) error {
	var errs []error
	res := plan.resolution

	failedCancel := make(map[int64]bool)
	for _, id := range res.CancelledAppointmentIDs {
		if err := m.deps.Appointments.CancelAppointment(ctx, id, domain.CancelReasonExternalOverride); err != nil {
			failedCancel[id] = true
			errs = append(errs, fmt.Errorf("cancel appointment %d: %w", id, err))
			continue
		}
		outcome.CancelledCount++
	}

	// an event whose conflicting appointment is still active must not be imported
	blocked := make(map[string]bool)
	dependents := make(map[string][]string) // origin event -> events waiting for it to move away
	for _, c := range plan.conflicts {
		if failedCancel[c.InternalAppointmentID] {
			blocked[c.ExternalEventID] = true
		}
		if c.InternalOriginEventID != "" {
			dependents[c.InternalOriginEventID] = append(dependents[c.InternalOriginEventID], c.ExternalEventID)
		}
	}

	// moved events are written first; an appointment that did not move still holds its slot
	ordered := make([]domain.CandidateEvent, 0, len(res.Accepted))
	for _, cand := range res.Accepted {
		if len(dependents[cand.Event.ID]) > 0 {
			ordered = append(ordered, cand)
		}
	}
	for _, cand := range res.Accepted {
		if len(dependents[cand.Event.ID]) == 0 {
			ordered = append(ordered, cand)
		}
	}

	for _, cand := range ordered {
		if blocked[cand.Event.ID] {
			outcome.FailedCount++
			blockAll(blocked, dependents[cand.Event.ID])
			continue
		}
		appt := domain.NewAppointmentFromEvent(businessID, cand.Owner, cand.Event)
		if _, err := m.deps.Appointments.UpsertAppointment(ctx, appt); err != nil {
			outcome.FailedCount++
			errs = append(errs, fmt.Errorf("upsert event %s: %w", cand.Event.ID, err))
			blockAll(blocked, dependents[cand.Event.ID])
			continue
		}
		outcome.ImportedCount++
	}
	outcome.SkippedCount = len(res.Rejected) + len(plan.overlapping) + len(plan.doubtful)

	if err := m.removeVanished(ctx, businessID, plan.batch, outcome); err != nil {
		errs = append(errs, err)
	}

	for _, cand := range plan.closures {
		closure := domain.NewClosureFromEvent(businessID, cand.Owner, cand.Event)
		if _, err := m.deps.Closures.UpsertClosure(ctx, closure); err != nil {
			outcome.FailedCount++
			errs = append(errs, fmt.Errorf("upsert closure %s: %w", cand.Event.ID, err))
			continue
		}
		outcome.ClosureCount++
	}

	return errors.Join(errs...)
}

func blockAll(blocked map[string]bool, eventIDs []string) {
	for _, id := range eventIDs {
		blocked[id] = true
	}
}

// removeVanished deletes future imported appointments whose event is no longer in the batch.
func (m *Manager) removeVanished(ctx context.Context, businessID uuid.UUID, batch *domain.FetchedBatch, outcome *domain.SyncOutcome) error {
	present := make(map[string]bool, len(batch.Events))
	for _, ev := range batch.Events {
		present[ev.ID] = true
	}

	imported, err := m.deps.Appointments.FindExternallySourced(ctx, businessID, batch.From)
	if err != nil {
		return fmt.Errorf("find imported appointments: %w", err)
	}
	var stale []int64
	for _, appt := range imported {
		if appt.ExternalEventID == nil || !appt.StartsAt.Before(batch.To) {
			continue
		}
		if !present[*appt.ExternalEventID] {
			stale = append(stale, appt.ID)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	n, err := m.deps.Appointments.DeleteAppointments(ctx, stale)
	if err != nil {
		outcome.FailedCount += len(stale)
		return fmt.Errorf("delete vanished appointments: %w", err)
	}
	outcome.RemovedCount = n
	return nil
}

func toSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
