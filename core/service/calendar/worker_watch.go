package calendar

import (
	"context"
	"fmt"

	"booking_server/core/domain"
	"booking_server/core/port/in"
	"booking_server/core/port/out"
	"booking_server/pkg/apperr"
	"booking_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// =============================================================================
// Push channels
// =============================================================================

// reconcileWatches makes the registered channels match the selection. Best effort.
func (m *Manager) reconcileWatches(ctx context.Context, state *domain.IntegrationState) {
	existing, err := m.deps.Watches.ListWatches(ctx, state.BusinessID)
	if err != nil {
		logger.WithError(err).Warn("[Manager.reconcileWatches] business %s: list watches failed", state.BusinessID)
		return
	}

	watched := make(map[string]bool, len(existing))
	var obsolete []*domain.WatchChannel
	for _, w := range existing {
		if state.IsSelected(w.CalendarID) {
			watched[w.CalendarID] = true
		} else {
			obsolete = append(obsolete, w)
		}
	}

	var missing []string
	for _, id := range state.SelectedCalendarIDs {
		if !watched[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 && len(obsolete) == 0 {
		return
	}

	token, err := m.token(ctx, state.BusinessID)
	if err != nil {
		logger.WithError(err).Warn("[Manager.reconcileWatches] business %s: no credential", state.BusinessID)
		return
	}

	for _, w := range obsolete {
		m.stopWatch(ctx, token, w)
	}
	for _, calendarID := range missing {
		if _, err := m.startWatch(ctx, token, state.BusinessID, calendarID); err != nil {
			logger.WithError(err).Warn("[Manager.reconcileWatches] business %s: watch %s failed", state.BusinessID, calendarID)
		}
	}
}

func (m *Manager) startWatch(ctx context.Context, token *oauth2.Token, businessID uuid.UUID, calendarID string) (*domain.WatchChannel, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.ProviderTimeout)
	defer cancel()

	resp, err := m.deps.Provider.Watch(callCtx, token, calendarID)
	if err != nil {
		return nil, m.providerErr(err)
	}
	watch := &domain.WatchChannel{
		BusinessID: businessID,
		CalendarID: calendarID,
		ChannelID:  resp.ChannelID,
		ResourceID: resp.ResourceID,
		ExpiresAt:  resp.Expiration,
	}
	if err := m.deps.Watches.SaveWatch(ctx, watch); err != nil {
		return nil, apperr.DatabaseError("save watch", err)
	}
	logger.Info("[Manager.startWatch] business %s calendar %s channel %s expires %v",
		businessID, calendarID, watch.ChannelID, watch.ExpiresAt)
	return watch, nil
}

// stopWatch cancels the channel at the provider and always drops the row.
func (m *Manager) stopWatch(ctx context.Context, token *oauth2.Token, w *domain.WatchChannel) error {
	var stopErr error
	if token != nil {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.ProviderTimeout)
		stopErr = m.deps.Provider.StopWatch(callCtx, token, w.ChannelID, w.ResourceID)
		cancel()
		if stopErr != nil {
			logger.WithError(stopErr).Warn("[Manager.stopWatch] channel %s not stopped at provider", w.ChannelID)
		}
	}
	if err := m.deps.Watches.DeleteWatch(ctx, w.ChannelID); err != nil {
		return fmt.Errorf("delete watch %s: %w", w.ChannelID, err)
	}
	return stopErr
}

// RenewWatches replaces every channel expiring within the renew window.
func (m *Manager) RenewWatches(ctx context.Context) (int, error) {
	expiring, err := m.deps.Watches.ListExpiringWatches(ctx, m.now().Add(m.cfg.WatchRenewWindow))
	if err != nil {
		return 0, apperr.DatabaseError("list expiring watches", err)
	}

	renewed := 0
	for _, w := range expiring {
		if err := ctx.Err(); err != nil {
			return renewed, err
		}

		state, err := m.deps.States.Get(ctx, w.BusinessID)
		if err != nil {
			logger.WithError(err).Warn("[Manager.RenewWatches] business %s: state read failed", w.BusinessID)
			continue
		}
		if state == nil || !state.Connected || !state.IsSelected(w.CalendarID) {
			_ = m.stopWatch(ctx, nil, w)
			continue
		}

		token, err := m.token(ctx, w.BusinessID)
		if err != nil {
			logger.WithError(err).Warn("[Manager.RenewWatches] business %s: no credential", w.BusinessID)
			continue
		}
		if _, err := m.startWatch(ctx, token, w.BusinessID, w.CalendarID); err != nil {
			logger.WithError(err).Warn("[Manager.RenewWatches] calendar %s renew failed", w.CalendarID)
			continue
		}
		_ = m.stopWatch(ctx, token, w)
		renewed++
	}

	if len(expiring) > 0 {
		logger.Info("[Manager.RenewWatches] renewed %d/%d channels", renewed, len(expiring))
	}
	return renewed, nil
}

// HandlePush turns a provider notification into a queued sync job.
// Unknown channels and the initial "sync" handshake are ignored.
func (m *Manager) HandlePush(ctx context.Context, n *in.PushNotification) error {
	if n == nil || n.ChannelID == "" {
		return apperr.BadRequest("missing channel id")
	}
	if n.ResourceState == "sync" {
		return nil
	}

	watch, err := m.deps.Watches.GetWatchByChannel(ctx, n.ChannelID)
	if err != nil {
		return apperr.DatabaseError("get watch", err)
	}
	if watch == nil {
		logger.Debug("[Manager.HandlePush] unknown channel %s", n.ChannelID)
		return nil
	}
	if n.ResourceID != "" && watch.ResourceID != "" && n.ResourceID != watch.ResourceID {
		logger.Warn("[Manager.HandlePush] channel %s resource mismatch", n.ChannelID)
		return nil
	}

	if m.deps.Producer != nil {
		return m.deps.Producer.PublishCalendarSync(ctx, &out.CalendarSyncJob{
			BusinessID: watch.BusinessID.String(),
			CalendarID: watch.CalendarID,
			ChannelID:  watch.ChannelID,
			Trigger:    string(domain.TriggerPush),
		})
	}

	_, err = m.Sync(ctx, watch.BusinessID, domain.TriggerPush)
	return err
}
