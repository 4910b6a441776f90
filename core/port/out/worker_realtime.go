package out

import (
	"context"

	"booking_server/core/domain"
)

// RealtimePort - operator dashboard push (SSE)
type RealtimePort interface {
	Subscribe(businessID string) <-chan *domain.RealtimeEvent
	Unsubscribe(businessID string, ch <-chan *domain.RealtimeEvent)
	Push(ctx context.Context, businessID string, event *domain.RealtimeEvent) error
	ConnectedCount() int
	IsConnected(businessID string) bool
}

// OperatorNotifier receives the structured result of every pass and lifecycle change.
// Delivery is best effort; a failed notification never fails the pass.
type OperatorNotifier interface {
	Notify(ctx context.Context, event *domain.RealtimeEvent) error
}
