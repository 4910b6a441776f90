package worker

import (
	"context"
	"fmt"

	"booking_server/pkg/logger"
)

// WebhookProcessor renews push channels before the provider expires them.
type WebhookProcessor struct {
	runner SyncRunner
}

// NewWebhookProcessor creates a new webhook processor.
func NewWebhookProcessor(runner SyncRunner) *WebhookProcessor {
	return &WebhookProcessor{
		runner: runner,
	}
}

// ProcessRenew handles watch renewal jobs.
func (p *WebhookProcessor) ProcessRenew(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[WatchRenewPayload](msg)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	if p.runner == nil {
		return fmt.Errorf("sync runner not initialized")
	}

	renewed, err := p.runner.RenewWatches(ctx)
	if err != nil {
		return fmt.Errorf("failed to renew expiring watches: %w", err)
	}
	logger.Info("[WebhookProcessor.ProcessRenew] renewed %d channels (scheduled %v)", renewed, payload.ScheduledAt)
	return nil
}
