package http

import (
	"context"
	"crypto/subtle"
	"sync/atomic"

	"booking_server/core/port/in"
	"booking_server/pkg/logger"
	"booking_server/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
)

// PushReceiver turns a provider notification into sync work.
type PushReceiver interface {
	HandlePush(ctx context.Context, n *in.PushNotification) error
}

type WebhookMetrics struct {
	Processed  int64
	Duplicates int64
	Throttled  int64
	Rejected   int64
	Errors     int64
}

// WebhookHandler receives Google Calendar channel notifications.
type WebhookHandler struct {
	receiver  PushReceiver
	token     string
	debouncer *ratelimit.Debouncer
	limiter   *ratelimit.SlidingWindowLimiter
	metrics   WebhookMetrics
}

// NewWebhookHandler creates the handler. token is the channel token set at watch time; empty disables the check.
// debouncer and limiter may be nil.
func NewWebhookHandler(receiver PushReceiver, token string, debouncer *ratelimit.Debouncer, limiter *ratelimit.SlidingWindowLimiter) *WebhookHandler {
	return &WebhookHandler{
		receiver:  receiver,
		token:     token,
		debouncer: debouncer,
		limiter:   limiter,
	}
}

func (h *WebhookHandler) GetMetrics() WebhookMetrics {
	return WebhookMetrics{
		Processed:  atomic.LoadInt64(&h.metrics.Processed),
		Duplicates: atomic.LoadInt64(&h.metrics.Duplicates),
		Throttled:  atomic.LoadInt64(&h.metrics.Throttled),
		Rejected:   atomic.LoadInt64(&h.metrics.Rejected),
		Errors:     atomic.LoadInt64(&h.metrics.Errors),
	}
}

func (h *WebhookHandler) Register(app fiber.Router) {
	app.Post("/webhook/google-calendar", h.GoogleCalendarWebhook)
	app.Post("/webhooks/google-calendar", h.GoogleCalendarWebhook)
}

func (h *WebhookHandler) GoogleCalendarWebhook(c *fiber.Ctx) error {
	n := &in.PushNotification{
		ChannelID:     c.Get("X-Goog-Channel-ID"),
		ResourceID:    c.Get("X-Goog-Resource-ID"),
		ResourceState: c.Get("X-Goog-Resource-State"),
		MessageNumber: c.Get("X-Goog-Message-Number"),
	}

	logger.Debug("[GoogleCalendarWebhook] Received: channel=%s, resource=%s, state=%s, msg=%s",
		n.ChannelID, n.ResourceID, n.ResourceState, n.MessageNumber)

	if n.ChannelID == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if h.token != "" && subtle.ConstantTimeCompare([]byte(c.Get("X-Goog-Channel-Token")), []byte(h.token)) != 1 {
		atomic.AddInt64(&h.metrics.Rejected, 1)
		logger.Warn("[GoogleCalendarWebhook] bad channel token for %s", n.ChannelID)
		return c.SendStatus(fiber.StatusForbidden)
	}
	if n.ResourceState == "sync" {
		return c.SendStatus(fiber.StatusOK)
	}

	ctx := c.Context()

	dedupKey := ""
	if h.debouncer != nil && n.MessageNumber != "" {
		dedupKey = "gcal:" + n.ChannelID + ":" + n.MessageNumber
		if !h.debouncer.Claim(ctx, dedupKey) {
			atomic.AddInt64(&h.metrics.Duplicates, 1)
			return c.SendStatus(fiber.StatusOK)
		}
	}

	if h.limiter != nil {
		if ok, _ := h.limiter.Allow(ctx, "push:"+n.ChannelID); !ok {
			atomic.AddInt64(&h.metrics.Throttled, 1)
			logger.Debug("[GoogleCalendarWebhook] channel %s throttled", n.ChannelID)
			return c.SendStatus(fiber.StatusOK)
		}
	}

	if err := h.receiver.HandlePush(ctx, n); err != nil {
		atomic.AddInt64(&h.metrics.Errors, 1)
		logger.WithError(err).Error("[GoogleCalendarWebhook] channel %s failed", n.ChannelID)
		if dedupKey != "" {
			h.debouncer.Release(ctx, dedupKey)
		}
		// Google redelivers on 5xx
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	atomic.AddInt64(&h.metrics.Processed, 1)
	return c.SendStatus(fiber.StatusOK)
}
