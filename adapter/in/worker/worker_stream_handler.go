package worker

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"booking_server/adapter/out/messaging"
	"booking_server/pkg/logger"
)

// StreamHandler adapts Redis Stream messages to the worker pool.
type StreamHandler struct {
	submitter JobSubmitter
}

func NewStreamHandler(submitter JobSubmitter) *StreamHandler {
	return &StreamHandler{submitter: submitter}
}

// Handle decodes the envelope and submits it. A rejected submission leaves the
// stream entry pending so the consumer reclaims it later; undecodable entries are dead-lettered.
func (h *StreamHandler) Handle(ctx context.Context, stream string, data []byte) error {
	jobType, body, err := messaging.DecodeEnvelope(data)
	if err != nil {
		return messaging.Permanent(err)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return messaging.Permanent(fmt.Errorf("bad %s payload: %w", jobType, err))
	}
	if jobType == messaging.JobTypeCalendarSync {
		if id, _ := payload["business_id"].(string); id == "" {
			return messaging.Permanent(fmt.Errorf("%s job without business_id", jobType))
		}
	}

	msg := NewMessage(streamJobType(jobType), payload)
	if !h.submitter.Submit(msg) {
		return fmt.Errorf("pool rejected %s job", jobType)
	}
	logger.Debug("[StreamHandler] %s job %s submitted", jobType, msg.ID)
	return nil
}

func streamJobType(jobType string) string {
	switch jobType {
	case messaging.JobTypeCalendarSync:
		return JobCalendarSync
	default:
		return jobType
	}
}

var _ messaging.JobHandler = (*StreamHandler)(nil)
