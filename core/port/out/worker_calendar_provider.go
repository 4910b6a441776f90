// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"time"

	"booking_server/core/domain"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// =============================================================================
// Calendar Provider Port
// =============================================================================

// CalendarProviderPort is the external calendar the integration reads from.
// Implementations return apperr AUTHORIZATION_EXPIRED or PROVIDER_UNAVAILABLE on failure.
type CalendarProviderPort interface {
	ListCalendars(ctx context.Context, token *oauth2.Token) ([]domain.ProviderCalendar, error)

	// ListEvents returns every event in [from, to), recurring events expanded to instances.
	ListEvents(ctx context.Context, token *oauth2.Token, calendarID string, from, to time.Time) ([]domain.ExternalEvent, error)

	// Watch (Push Notifications)
	Watch(ctx context.Context, token *oauth2.Token, calendarID string) (*CalendarWatchResponse, error)
	StopWatch(ctx context.Context, token *oauth2.Token, channelID, resourceID string) error
}

// CalendarWatchResponse represents the response from setting up a watch.
type CalendarWatchResponse struct {
	ChannelID  string
	ResourceID string
	Expiration time.Time
}

// =============================================================================
// Credential Source
// =============================================================================

// CredentialSource hands out a usable provider token for a business.
// The OAuth handshake and token storage live outside this service.
type CredentialSource interface {
	Token(ctx context.Context, businessID uuid.UUID) (*oauth2.Token, error)
}
