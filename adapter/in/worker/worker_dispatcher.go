package worker

import (
	"booking_server/pkg/logger"
	"context"

	"github.com/goccy/go-json"
)

type Handler struct {
	calendarProcessor *CalendarProcessor
	webhookProcessor  *WebhookProcessor
}

func NewHandler(
	calendarProcessor *CalendarProcessor,
	webhookProcessor *WebhookProcessor,
) *Handler {
	return &Handler{
		calendarProcessor: calendarProcessor,
		webhookProcessor:  webhookProcessor,
	}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing message: %s", msg.Type)

	switch msg.Type {
	// Calendar jobs
	case JobCalendarSync:
		return h.calendarProcessor.ProcessSync(ctx, msg)

	// Push channel jobs
	case JobWatchRenew:
		return h.webhookProcessor.ProcessRenew(ctx, msg)

	default:
		logger.Warn("Unknown job type: %s", msg.Type)
		return nil
	}
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
