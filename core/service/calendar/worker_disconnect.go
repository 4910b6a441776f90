package calendar

import (
	"context"
	"errors"

	"booking_server/core/domain"
	"booking_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Disconnect steps, named in DisconnectReport.StepErrors.
const (
	stepStopWatches       = "stop_watches"
	stepDeleteAppointment = "delete_future_appointments"
	stepDeleteClosures    = "delete_future_closures"
	stepUnlinkManual      = "unlink_manual_appointments"
	stepPurgeCache        = "purge_batch_cache"
)

// Disconnect tears the integration down. The running pass of this process is cancelled and the
// business lock awaited first. Each cleanup step is independent: a failing step is recorded in the
// report and the cascade continues. Past imported appointments are kept.
func (m *Manager) Disconnect(ctx context.Context, businessID uuid.UUID) (*domain.DisconnectReport, error) {
	if _, err := m.loadState(ctx, businessID); err != nil {
		return nil, err
	}

	if m.guard.cancel(businessID) {
		logger.Info("[Manager.Disconnect] business %s: cancelled in-flight pass", businessID)
	}

	var report *domain.DisconnectReport
	err := m.locked(ctx, businessID, m.cfg.DisconnectWait, func(ctx context.Context) error {
		var err error
		report, err = m.cascade(ctx, businessID)
		return err
	})
	if report != nil {
		m.notify(ctx, domain.NewDisconnectEvent(report))
	}
	return report, err
}

func (m *Manager) cascade(ctx context.Context, businessID uuid.UUID) (*domain.DisconnectReport, error) {
	state, err := m.loadState(ctx, businessID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	report := &domain.DisconnectReport{BusinessID: businessID}

	// 1. push channels
	token, tokenErr := m.token(ctx, businessID)
	if tokenErr != nil {
		report.Failed(stepStopWatches, tokenErr)
		token = nil
	}
	m.stopAllWatches(ctx, businessID, token, report)

	// 2. future imported appointments
	if imported, err := m.deps.Appointments.FindExternallySourced(ctx, businessID, now); err != nil {
		report.Failed(stepDeleteAppointment, err)
	} else if ids := appointmentIDs(imported); len(ids) > 0 {
		n, err := m.deps.Appointments.DeleteAppointments(ctx, ids)
		if err != nil {
			report.Failed(stepDeleteAppointment, err)
		}
		report.AppointmentsDeleted = n
	}

	// 3. future imported closures
	if n, err := m.deps.Closures.DeleteFutureClosures(ctx, businessID, now); err != nil {
		report.Failed(stepDeleteClosures, err)
	} else {
		report.ClosuresDeleted = n
	}

	// 4. manual appointments pushed outward keep existing, lose the link
	if linked, err := m.deps.Appointments.FindLinkedManual(ctx, businessID); err != nil {
		report.Failed(stepUnlinkManual, err)
	} else if ids := appointmentIDs(linked); len(ids) > 0 {
		n, err := m.deps.Appointments.UnlinkExternalReference(ctx, ids)
		if err != nil {
			report.Failed(stepUnlinkManual, err)
		}
		report.LinksCleared = n
	}

	// 5. transient cache
	if err := m.deps.Batches.PurgeBatch(ctx, businessID); err != nil {
		report.Failed(stepPurgeCache, err)
	} else {
		report.CachePurged = true
	}

	// 6. state, always attempted
	state.Disconnect(m.now())
	if err := m.save(context.WithoutCancel(ctx), state); err != nil {
		return report, err
	}

	if report.Clean() {
		logger.Info("[Manager.Disconnect] business %s disconnected: %d appointment(s), %d closure(s) removed",
			businessID, report.AppointmentsDeleted, report.ClosuresDeleted)
	} else {
		logger.WithFields(map[string]any{"step_errors": report.StepErrors}).
			Warn("[Manager.Disconnect] business %s disconnected with failed steps", businessID)
	}
	return report, nil
}

func (m *Manager) stopAllWatches(ctx context.Context, businessID uuid.UUID, token *oauth2.Token, report *domain.DisconnectReport) {
	watches, err := m.deps.Watches.ListWatches(ctx, businessID)
	if err != nil {
		report.Failed(stepStopWatches, err)
		return
	}
	var errs []error
	for _, w := range watches {
		if err := m.stopWatch(ctx, token, w); err != nil {
			errs = append(errs, err)
			continue
		}
		if token != nil {
			report.WatchesStopped++
		}
	}
	if err := errors.Join(errs...); err != nil {
		report.Failed(stepStopWatches, err)
	}
}

func appointmentIDs(appts []*domain.InternalAppointment) []int64 {
	ids := make([]int64, 0, len(appts))
	for _, a := range appts {
		ids = append(ids, a.ID)
	}
	return ids
}
