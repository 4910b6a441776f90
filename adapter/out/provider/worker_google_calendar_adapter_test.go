package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"booking_server/pkg/apperr"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

func validToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "access", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *GoogleCalendarAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGoogleCalendarAdapter(&GoogleCalendarConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		WebhookURL:   "https://hooks.example.com/webhook/google-calendar",
		WebhookToken: "shared-secret",
		Endpoint:     srv.URL + "/",
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func TestConvertEvent(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		name       string
		event      *calendar.Event
		wantStart  time.Time
		wantEnd    time.Time
		wantAllDay bool
	}{
		{
			name: "timed",
			event: &calendar.Event{
				Id:    "ev-1",
				Start: &calendar.EventDateTime{DateTime: "2026-11-03T10:00:00+01:00"},
				End:   &calendar.EventDateTime{DateTime: "2026-11-03T11:30:00+01:00"},
			},
			wantStart: time.Date(2026, 11, 3, 9, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 11, 3, 10, 30, 0, 0, time.UTC),
		},
		{
			name: "all day uses calendar zone",
			event: &calendar.Event{
				Id:    "ev-2",
				Start: &calendar.EventDateTime{Date: "2026-11-03"},
				End:   &calendar.EventDateTime{Date: "2026-11-05"},
			},
			wantStart:  time.Date(2026, 11, 3, 0, 0, 0, 0, madrid),
			wantEnd:    time.Date(2026, 11, 5, 0, 0, 0, 0, madrid),
			wantAllDay: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertEvent(tt.event, "cal-1", madrid)
			if got.CalendarID != "cal-1" || got.ID != tt.event.Id {
				t.Fatalf("identity = %s/%s", got.CalendarID, got.ID)
			}
			if !got.Start.Equal(tt.wantStart) || !got.End.Equal(tt.wantEnd) {
				t.Errorf("window = [%s, %s), want [%s, %s)", got.Start, got.End, tt.wantStart, tt.wantEnd)
			}
			if got.AllDay != tt.wantAllDay {
				t.Errorf("AllDay = %v, want %v", got.AllDay, tt.wantAllDay)
			}
		})
	}
}

func TestListEvents_PagesAndSkipsCancelled(t *testing.T) {
	var calls int
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" {
			t.Errorf("singleEvents = %q, want true", q.Get("singleEvents"))
		}
		if q.Get("pageToken") == "" {
			writeJSON(t, w, map[string]any{
				"timeZone":      "UTC",
				"nextPageToken": "p2",
				"items": []map[string]any{
					{"id": "a", "status": "confirmed", "start": map[string]string{"dateTime": "2026-11-03T10:00:00Z"}, "end": map[string]string{"dateTime": "2026-11-03T11:00:00Z"}},
					{"id": "gone", "status": "cancelled"},
				},
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"timeZone": "UTC",
			"items": []map[string]any{
				{"id": "b", "status": "confirmed", "summary": "Vacation", "start": map[string]string{"date": "2026-11-04"}, "end": map[string]string{"date": "2026-11-05"}},
			},
		})
	})

	from := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	events, err := a.ListEvents(context.Background(), validToken(), "cal-1", from, from.AddDate(0, 0, 30))
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(events) != 2 || events[0].ID != "a" || events[1].ID != "b" {
		t.Fatalf("events = %+v", events)
	}
	if !events[1].AllDay || events[1].Summary != "Vacation" {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestListEvents_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode string
	}{
		{"unauthorized", http.StatusUnauthorized, apperr.CodeAuthorizationExpired},
		{"server error", http.StatusServiceUnavailable, apperr.CodeProviderUnavailable},
		{"rate limited", http.StatusTooManyRequests, apperr.CodeProviderUnavailable},
		{"missing calendar", http.StatusNotFound, apperr.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"boom"}}`, tt.status)
			})
			now := time.Now()
			_, err := a.ListEvents(context.Background(), validToken(), "cal-1", now, now.Add(time.Hour))
			if !apperr.IsCode(err, tt.wantCode) {
				t.Fatalf("err = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestWrapError(t *testing.T) {
	a := NewGoogleCalendarAdapter(&GoogleCalendarConfig{})

	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden, Message: "insufficient permissions"}, apperr.CodeAuthorizationExpired},
		{"forbidden rate limit", &googleapi.Error{Code: http.StatusForbidden, Message: "Rate Limit Exceeded"}, apperr.CodeProviderUnavailable},
		{"revoked grant", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, apperr.CodeAuthorizationExpired},
		{"deadline", context.DeadlineExceeded, apperr.CodeProviderUnavailable},
		{"network", errors.New("connection reset"), apperr.CodeProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.wrapError(tt.err); !apperr.IsCode(got, tt.wantCode) {
				t.Errorf("wrapError(%v) = %v, want code %s", tt.err, got, tt.wantCode)
			}
		})
	}

	if err := a.wrapError(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("cancellation must pass through, got %v", err)
	}
}

func TestWatch(t *testing.T) {
	expires := time.Date(2026, 11, 9, 8, 0, 0, 0, time.UTC)
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var ch calendar.Channel
		if err := json.NewDecoder(r.Body).Decode(&ch); err != nil {
			t.Errorf("decode: %v", err)
		}
		if ch.Type != "web_hook" || ch.Token != "shared-secret" || ch.Id == "" {
			t.Errorf("channel = %+v", ch)
		}
		writeJSON(t, w, map[string]any{
			"id":         ch.Id,
			"resourceId": "res-1",
			"expiration": strconv.FormatInt(expires.UnixMilli(), 10),
		})
	})

	resp, err := a.Watch(context.Background(), validToken(), "cal-1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if resp.ResourceID != "res-1" || !resp.Expiration.Equal(expires) || resp.ChannelID == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestWatch_RequiresWebhookURL(t *testing.T) {
	a := NewGoogleCalendarAdapter(&GoogleCalendarConfig{})
	_, err := a.Watch(context.Background(), validToken(), "cal-1")
	if !apperr.IsCode(err, apperr.CodeProviderUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
