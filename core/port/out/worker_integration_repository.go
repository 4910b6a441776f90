package out

import (
	"context"
	"time"

	"booking_server/core/domain"

	"github.com/google/uuid"
)

// IntegrationRepository persists the IntegrationState aggregate.
type IntegrationRepository interface {
	// Get returns (nil, nil) when the business never connected.
	Get(ctx context.Context, businessID uuid.UUID) (*domain.IntegrationState, error)
	Save(ctx context.Context, state *domain.IntegrationState) error
}

// MappingRepository persists calendar -> owner entries.
type MappingRepository interface {
	UpsertMapping(ctx context.Context, businessID uuid.UUID, calendarID string, owner domain.OwnerRef) error
	GetMapping(ctx context.Context, businessID uuid.UUID) (domain.CalendarMapping, error)
	ClearMappings(ctx context.Context, businessID uuid.UUID) error
}

// WatchChannelRepository persists push-notification channels.
type WatchChannelRepository interface {
	SaveWatch(ctx context.Context, watch *domain.WatchChannel) error
	ListWatches(ctx context.Context, businessID uuid.UUID) ([]*domain.WatchChannel, error)
	GetWatchByChannel(ctx context.Context, channelID string) (*domain.WatchChannel, error)
	ListExpiringWatches(ctx context.Context, before time.Time) ([]*domain.WatchChannel, error)
	DeleteWatch(ctx context.Context, channelID string) error
}
