package worker

import (
	"time"

	"github.com/google/uuid"
)

// Priority levels for job scheduling.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

// JobType represents the type of a job.
type JobType = string

const (
	// Calendar jobs
	JobCalendarSync = "calendar.sync"

	// Push channel jobs
	JobWatchRenew = "watch.renew"
)

type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Priority  Priority       `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
	Retries   int            `json:"retries"`
}

func NewMessage(jobType string, payload map[string]any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		Priority:  PriorityNormal,
		CreatedAt: time.Now(),
		Retries:   0,
	}
}

// CalendarSyncPayload asks for one pass over a business. CalendarID and ChannelID name the channel that fired.
type CalendarSyncPayload struct {
	BusinessID string `json:"business_id"`
	CalendarID string `json:"calendar_id,omitempty"`
	ChannelID  string `json:"channel_id,omitempty"`
	Trigger    string `json:"trigger"`
}

type WatchRenewPayload struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}
