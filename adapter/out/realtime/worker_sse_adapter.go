// Package realtime provides real-time communication adapters.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"booking_server/core/domain"
	"booking_server/core/port/out"

	"github.com/rs/zerolog"
)

// =============================================================================
// SSE Adapter - operator dashboards per business
// =============================================================================

// SSEAdapter implements out.RealtimePort and out.OperatorNotifier using Server-Sent Events.
type SSEAdapter struct {
	clients map[string]map[chan *domain.RealtimeEvent]struct{} // businessID -> channels
	mu      sync.RWMutex
	log     zerolog.Logger

	messagesSent    atomic.Int64
	messagesDropped atomic.Int64
	seqCounter      atomic.Int64
}

// NewSSEAdapter creates a new SSE adapter.
func NewSSEAdapter(log zerolog.Logger) *SSEAdapter {
	return &SSEAdapter{
		clients: make(map[string]map[chan *domain.RealtimeEvent]struct{}),
		log:     log.With().Str("component", "sse_adapter").Logger(),
	}
}

// Subscribe creates a new subscription channel for an operator of businessID.
func (a *SSEAdapter) Subscribe(businessID string) <-chan *domain.RealtimeEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan *domain.RealtimeEvent, 64)
	if a.clients[businessID] == nil {
		a.clients[businessID] = make(map[chan *domain.RealtimeEvent]struct{})
	}
	a.clients[businessID][ch] = struct{}{}

	a.log.Debug().
		Str("business_id", businessID).
		Int("total_connections", len(a.clients[businessID])).
		Msg("client subscribed")

	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (a *SSEAdapter) Unsubscribe(businessID string, ch <-chan *domain.RealtimeEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	channels, ok := a.clients[businessID]
	if !ok {
		return
	}
	for c := range channels {
		if c == ch {
			delete(channels, c)
			close(c)
			break
		}
	}
	if len(channels) == 0 {
		delete(a.clients, businessID)
	}
}

// Push sends an event to every dashboard of a business. Slow consumers lose events.
func (a *SSEAdapter) Push(ctx context.Context, businessID string, event *domain.RealtimeEvent) error {
	event.Seq = a.seqCounter.Add(1)

	// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send.
	a.mu.RLock()
	defer a.mu.RUnlock()

	for ch := range a.clients[businessID] {
		select {
		case ch <- event:
			a.messagesSent.Add(1)
		default:
			a.messagesDropped.Add(1)
			a.log.Warn().
				Str("business_id", businessID).
				Str("event_type", string(event.Type)).
				Int64("seq", event.Seq).
				Msg("dropped event due to full buffer")
		}
	}
	return nil
}

// Notify routes a lifecycle or pass event to the business it belongs to.
func (a *SSEAdapter) Notify(ctx context.Context, event *domain.RealtimeEvent) error {
	if event == nil || event.BusinessID == "" {
		return nil
	}
	return a.Push(ctx, event.BusinessID, event)
}

// ConnectedCount returns the number of businesses with an open dashboard.
func (a *SSEAdapter) ConnectedCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients)
}

func (a *SSEAdapter) IsConnected(businessID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients[businessID]) > 0
}

// GetMetrics returns adapter metrics.
func (a *SSEAdapter) GetMetrics() SSEMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	totalConnections := 0
	for _, channels := range a.clients {
		totalConnections += len(channels)
	}

	return SSEMetrics{
		ConnectedBusinesses: len(a.clients),
		TotalConnections:    totalConnections,
		MessagesSent:        a.messagesSent.Load(),
		MessagesDropped:     a.messagesDropped.Load(),
	}
}

// SSEMetrics holds SSE adapter metrics.
type SSEMetrics struct {
	ConnectedBusinesses int   `json:"connected_businesses"`
	TotalConnections    int   `json:"total_connections"`
	MessagesSent        int64 `json:"messages_sent"`
	MessagesDropped     int64 `json:"messages_dropped"`
}

// HeartbeatInterval is how often an idle SSE stream sends a keep-alive comment.
const HeartbeatInterval = 25 * time.Second

// SerializeEvent converts a RealtimeEvent to the SSE data payload.
func SerializeEvent(event *domain.RealtimeEvent) ([]byte, error) {
	payload := map[string]interface{}{
		"type":      event.Type,
		"seq":       event.Seq,
		"data":      event.Data,
		"timestamp": event.Timestamp.Format(time.RFC3339),
	}
	return json.Marshal(payload)
}

// =============================================================================
// Interface Compliance
// =============================================================================

var (
	_ out.RealtimePort     = (*SSEAdapter)(nil)
	_ out.OperatorNotifier = (*SSEAdapter)(nil)
)
