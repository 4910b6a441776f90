package in

import (
	"context"

	"booking_server/core/domain"

	"github.com/google/uuid"
)

// IntegrationService drives the calendar integration of one business from connect to disconnect.
type IntegrationService interface {
	// Wizard
	Connect(ctx context.Context, businessID uuid.UUID) (*domain.IntegrationState, error)
	ListCalendars(ctx context.Context, businessID uuid.UUID) ([]domain.ProviderCalendar, error)
	SelectCalendars(ctx context.Context, businessID uuid.UUID, calendarIDs []string) (*domain.IntegrationState, error)
	ListOwners(ctx context.Context, businessID uuid.UUID) ([]domain.Owner, error)
	SetMappingType(ctx context.Context, businessID uuid.UUID, kind domain.OwnerKind) (*domain.IntegrationState, error)
	SetMapping(ctx context.Context, businessID uuid.UUID, calendarID string, ownerID int64) error
	CompleteMapping(ctx context.Context, businessID uuid.UUID) (*domain.IntegrationState, error)

	// Sync passes
	Import(ctx context.Context, businessID uuid.UUID, req *ImportRequest) (*domain.SyncOutcome, error)
	ResolveConflicts(ctx context.Context, businessID uuid.UUID, req *ResolveRequest) (*domain.SyncOutcome, error)
	Sync(ctx context.Context, businessID uuid.UUID, trigger domain.SyncTrigger) (*domain.SyncOutcome, error)

	// Settings and teardown
	SetStrategy(ctx context.Context, businessID uuid.UUID, req *StrategyRequest) (*domain.IntegrationState, error)
	Disconnect(ctx context.Context, businessID uuid.UUID) (*domain.DisconnectReport, error)
	GetStatus(ctx context.Context, businessID uuid.UUID) (*IntegrationStatus, error)

	// Push channels
	HandlePush(ctx context.Context, n *PushNotification) error
	RenewWatches(ctx context.Context) (int, error)
}

type ImportRequest struct {
	// ConfirmedDoubtfulIDs are all-day events the operator confirmed as closures.
	ConfirmedDoubtfulIDs []string `json:"confirmed_doubtful_ids,omitempty"`
}

type ResolveRequest struct {
	Strategy             domain.ResolutionStrategyKind `json:"strategy"`
	Confirm              bool                          `json:"confirm"`
	ConfirmedDoubtfulIDs []string                      `json:"confirmed_doubtful_ids,omitempty"`
}

type StrategyRequest struct {
	Strategy domain.ResolutionStrategyKind `json:"strategy"`
	Confirm  bool                          `json:"confirm"`
}

// IntegrationStatus is the read model behind the operator wizard.
type IntegrationStatus struct {
	State             *domain.IntegrationState      `json:"state"`
	Mapping           domain.CalendarMapping        `json:"mapping"`
	UnmappedCalendars []string                      `json:"unmapped_calendars"`
	EffectiveStrategy domain.ResolutionStrategyKind `json:"effective_strategy"`
	WatchCount        int                           `json:"watch_count"`
}

// PushNotification is what the provider webhook delivered.
type PushNotification struct {
	ChannelID     string `json:"channel_id"`
	ResourceID    string `json:"resource_id"`
	ResourceState string `json:"resource_state"`
	MessageNumber string `json:"message_number,omitempty"`
}
