package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"booking_server/core/domain"
	"booking_server/core/port/out"
	"booking_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	ProviderName   = "google_calendar"
	eventsPageSize = 250
	watchTTL       = 7 * 24 * time.Hour
)

// GoogleCalendarConfig holds Google Calendar configuration.
type GoogleCalendarConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// WebhookURL receives push notifications; WebhookToken is echoed back in X-Goog-Channel-Token.
	WebhookURL   string
	WebhookToken string

	// Location is used for all-day dates when the calendar reports no timezone.
	Location *time.Location

	// Endpoint overrides the API base path (tests).
	Endpoint string
}

// GoogleCalendarAdapter implements CalendarProviderPort for Google Calendar.
type GoogleCalendarAdapter struct {
	oauthConfig  *oauth2.Config
	webhookURL   string
	webhookToken string
	endpoint     string
	location     *time.Location
	cb           *gobreaker.CircuitBreaker
	now          func() time.Time
}

// NewGoogleCalendarAdapter creates a new Google Calendar adapter.
func NewGoogleCalendarAdapter(cfg *GoogleCalendarConfig) *GoogleCalendarAdapter {
	cbSettings := gobreaker.Settings{
		Name:        "google-calendar-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &GoogleCalendarAdapter{
		oauthConfig:  OAuthConfig(cfg),
		webhookURL:   cfg.WebhookURL,
		webhookToken: cfg.WebhookToken,
		endpoint:     cfg.Endpoint,
		location:     cfg.Location,
		cb:           gobreaker.NewCircuitBreaker(cbSettings),
		now:          time.Now,
	}
}

// OAuthConfig is shared with the credential adapter so refreshed tokens come from the same client.
func OAuthConfig(cfg *GoogleCalendarConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{calendar.CalendarReadonlyScope},
		Endpoint:     google.Endpoint,
	}
}

// getService creates a Calendar service with token.
func (a *GoogleCalendarAdapter) getService(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(a.oauthConfig.Client(ctx, token))}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	return calendar.NewService(ctx, opts...)
}

// execute wraps an API call with circuit breaker protection.
// Client errors are returned without counting against the breaker.
func (a *GoogleCalendarAdapter) execute(operation string, fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
				return nil, &nonCircuitError{err: err}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		err = nce.err
	}
	if err != nil {
		log.Printf("[GoogleCalendarAdapter] %s failed: breaker=%s, err=%v", operation, a.cb.State().String(), err)
	}
	return a.wrapError(err)
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

// =============================================================================
// Calendar Operations
// =============================================================================

// ListCalendars lists all calendars of the connected account.
func (a *GoogleCalendarAdapter) ListCalendars(ctx context.Context, token *oauth2.Token) ([]domain.ProviderCalendar, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, apperr.ProviderUnavailable(ProviderName, fmt.Errorf("failed to create calendar service: %w", err))
	}

	var calendars []domain.ProviderCalendar
	pageToken := ""
	for {
		req := svc.CalendarList.List().Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		var list *calendar.CalendarList
		if err := a.execute("ListCalendars", func() error {
			var err error
			list, err = req.Do()
			return err
		}); err != nil {
			return nil, err
		}

		for _, cal := range list.Items {
			if cal.Deleted {
				continue
			}
			calendars = append(calendars, domain.ProviderCalendar{
				ID:        cal.Id,
				Name:      cal.Summary,
				IsPrimary: cal.Primary,
			})
		}

		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}

	return calendars, nil
}

// =============================================================================
// Event Operations
// =============================================================================

// ListEvents returns every event in [from, to). Recurring events are expanded by the provider.
func (a *GoogleCalendarAdapter) ListEvents(ctx context.Context, token *oauth2.Token, calendarID string, from, to time.Time) ([]domain.ExternalEvent, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, apperr.ProviderUnavailable(ProviderName, fmt.Errorf("failed to create calendar service: %w", err))
	}

	var events []domain.ExternalEvent
	pageToken := ""
	for {
		req := svc.Events.List(calendarID).
			SingleEvents(true).
			OrderBy("startTime").
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			MaxResults(eventsPageSize).
			Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		var resp *calendar.Events
		if err := a.execute("ListEvents", func() error {
			var err error
			resp, err = req.Do()
			return err
		}); err != nil {
			return nil, err
		}

		loc := loadLocation(resp.TimeZone, a.location)
		for _, item := range resp.Items {
			if item.Status == "cancelled" {
				continue
			}
			events = append(events, convertEvent(item, calendarID, loc))
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return events, nil
}

// =============================================================================
// Watch (Push Notifications)
// =============================================================================

// Watch sets up push notifications for calendar changes.
func (a *GoogleCalendarAdapter) Watch(ctx context.Context, token *oauth2.Token, calendarID string) (*out.CalendarWatchResponse, error) {
	if a.webhookURL == "" {
		return nil, apperr.ProviderUnavailable(ProviderName, errors.New("webhook url not configured"))
	}

	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, apperr.ProviderUnavailable(ProviderName, fmt.Errorf("failed to create calendar service: %w", err))
	}

	channel := &calendar.Channel{
		Id:         uuid.NewString(),
		Type:       "web_hook",
		Address:    a.webhookURL,
		Token:      a.webhookToken,
		Expiration: a.now().Add(watchTTL).UnixMilli(),
	}

	var resp *calendar.Channel
	if err := a.execute("Watch", func() error {
		var err error
		resp, err = svc.Events.Watch(calendarID, channel).Context(ctx).Do()
		return err
	}); err != nil {
		return nil, err
	}

	return &out.CalendarWatchResponse{
		ChannelID:  resp.Id,
		ResourceID: resp.ResourceId,
		Expiration: time.UnixMilli(resp.Expiration).UTC(),
	}, nil
}

// StopWatch stops push notifications. A channel the provider no longer knows is already stopped.
func (a *GoogleCalendarAdapter) StopWatch(ctx context.Context, token *oauth2.Token, channelID, resourceID string) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return apperr.ProviderUnavailable(ProviderName, fmt.Errorf("failed to create calendar service: %w", err))
	}

	channel := &calendar.Channel{
		Id:         channelID,
		ResourceId: resourceID,
	}

	err = a.execute("StopWatch", func() error {
		return svc.Channels.Stop(channel).Context(ctx).Do()
	})
	if apperr.IsCode(err, apperr.CodeNotFound) {
		return nil
	}
	return err
}

// IsCircuitOpen returns true if the circuit breaker is open (API calls will fail fast).
func (a *GoogleCalendarAdapter) IsCircuitOpen() bool {
	return a.cb.State() == gobreaker.StateOpen
}

// =============================================================================
// Helper Functions
// =============================================================================

// convertEvent maps a provider event. All-day dates are midnight in the calendar's zone.
func convertEvent(event *calendar.Event, calendarID string, loc *time.Location) domain.ExternalEvent {
	result := domain.ExternalEvent{
		ID:         event.Id,
		CalendarID: calendarID,
		Summary:    event.Summary,
	}

	if event.Start != nil {
		if event.Start.DateTime != "" {
			result.Start, _ = time.Parse(time.RFC3339, event.Start.DateTime)
		} else if event.Start.Date != "" {
			result.Start, _ = time.ParseInLocation("2006-01-02", event.Start.Date, loc)
			result.AllDay = true
		}
	}

	if event.End != nil {
		if event.End.DateTime != "" {
			result.End, _ = time.Parse(time.RFC3339, event.End.DateTime)
		} else if event.End.Date != "" {
			result.End, _ = time.ParseInLocation("2006-01-02", event.End.Date, loc)
		}
	}

	return result
}

func loadLocation(name string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}

// wrapError maps provider failures onto the sync error taxonomy.
func (a *GoogleCalendarAdapter) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.ProviderUnavailable(ProviderName, err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.ProviderUnavailable(ProviderName, err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return apperr.AuthorizationExpired(ProviderName, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return apperr.AuthorizationExpired(ProviderName, err)
		case http.StatusForbidden:
			if strings.Contains(strings.ToLower(apiErr.Message), "rate limit") {
				return apperr.ProviderUnavailable(ProviderName, err)
			}
			return apperr.AuthorizationExpired(ProviderName, err)
		case http.StatusNotFound, http.StatusGone:
			return apperr.NotFound("calendar").WithError(err)
		}
	}

	return apperr.ProviderUnavailable(ProviderName, err)
}

// Ensure interface compliance
var _ out.CalendarProviderPort = (*GoogleCalendarAdapter)(nil)
