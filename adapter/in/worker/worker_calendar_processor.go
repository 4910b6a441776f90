package worker

import (
	"context"
	"fmt"

	"booking_server/core/domain"
	"booking_server/pkg/apperr"
	"booking_server/pkg/logger"

	"github.com/google/uuid"
)

// SyncRunner is the part of the integration service the worker drives.
type SyncRunner interface {
	Sync(ctx context.Context, businessID uuid.UUID, trigger domain.SyncTrigger) (*domain.SyncOutcome, error)
	RenewWatches(ctx context.Context) (int, error)
}

// CalendarProcessor handles calendar-related jobs.
type CalendarProcessor struct {
	runner SyncRunner
}

// NewCalendarProcessor creates a new calendar processor.
func NewCalendarProcessor(runner SyncRunner) *CalendarProcessor {
	return &CalendarProcessor{
		runner: runner,
	}
}

// ProcessSync runs the pass a push notification queued.
// Errors a retry cannot fix are logged and swallowed so the job is not retried.
func (p *CalendarProcessor) ProcessSync(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[CalendarSyncPayload](msg)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	businessID, err := uuid.Parse(payload.BusinessID)
	if err != nil {
		logger.Warn("[CalendarProcessor.ProcessSync] dropping job %s: bad business id %q", msg.ID, payload.BusinessID)
		return nil
	}
	trigger := domain.SyncTrigger(payload.Trigger)
	if trigger == "" {
		trigger = domain.TriggerPush
	}

	logger.Info("[CalendarProcessor.ProcessSync] business=%s, calendar=%s, trigger=%s",
		businessID, payload.CalendarID, trigger)

	if p.runner == nil {
		return fmt.Errorf("sync runner not initialized")
	}

	outcome, err := p.runner.Sync(ctx, businessID, trigger)
	if err != nil {
		if retryable(err) {
			return err
		}
		logger.WithError(err).Warn("[CalendarProcessor.ProcessSync] business %s: pass failed, not retrying", businessID)
		return nil
	}
	if outcome != nil {
		logger.Info("[CalendarProcessor.ProcessSync] business %s: phase=%s imported=%d skipped=%d failed=%d",
			businessID, outcome.Phase, outcome.ImportedCount, outcome.SkippedCount, outcome.FailedCount)
	}
	return nil
}

// retryable reports whether running the same job again could succeed.
func retryable(err error) bool {
	switch {
	case apperr.IsCode(err, apperr.CodeProviderUnavailable),
		apperr.IsCode(err, apperr.CodeDatabaseError),
		apperr.IsCode(err, apperr.CodeSyncInProgress),
		apperr.IsCode(err, apperr.CodeTimeout):
		return true
	case apperr.IsAppError(err):
		return false
	default:
		return true
	}
}
