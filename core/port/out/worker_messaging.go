package out

import (
	"context"
)

// MessageProducer defines the outbound port for message queue producer.
type MessageProducer interface {
	PublishCalendarSync(ctx context.Context, job *CalendarSyncJob) error
}

// CalendarSyncJob asks a worker to run one sync pass for a business.
type CalendarSyncJob struct {
	BusinessID string `json:"business_id"`
	CalendarID string `json:"calendar_id,omitempty"` // calendar whose channel fired
	ChannelID  string `json:"channel_id,omitempty"`
	Trigger    string `json:"trigger"`
}
