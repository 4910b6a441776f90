package http

import (
	"bufio"
	"time"

	"booking_server/adapter/out/realtime"
	"booking_server/core/port/out"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// SSEHandler streams sync outcomes and lifecycle changes to operator dashboards.
type SSEHandler struct {
	hub       out.RealtimePort
	log       zerolog.Logger
	heartbeat time.Duration
}

func NewSSEHandler(hub out.RealtimePort, log zerolog.Logger) *SSEHandler {
	return &SSEHandler{
		hub:       hub,
		log:       log.With().Str("handler", "sse").Logger(),
		heartbeat: realtime.HeartbeatInterval,
	}
}

func (h *SSEHandler) Register(app fiber.Router) {
	app.Get("/events", h.Stream)
	app.Get("/events/status", h.Status)
}

// Stream handles SSE connections.
func (h *SSEHandler) Stream(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	key := businessID.String()
	events := h.hub.Subscribe(key)

	h.log.Info().
		Str("business_id", key).
		Msg("SSE client connected")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		defer func() {
			h.hub.Unsubscribe(key, events)
			h.log.Info().
				Str("business_id", key).
				Msg("SSE client disconnected")
		}()

		w.WriteString("event: connected\n")
		w.WriteString("data: {\"status\":\"connected\"}\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}

				data, err := realtime.SerializeEvent(event)
				if err != nil {
					h.log.Error().Err(err).Msg("failed to serialize event")
					continue
				}

				w.WriteString("event: ")
				w.WriteString(string(event.Type))
				w.WriteString("\n")
				w.WriteString("data: ")
				w.Write(data)
				w.WriteString("\n\n")

				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during write")
					return
				}

			case <-ticker.C:
				w.WriteString(": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during heartbeat")
					return
				}
			}
		}
	})

	return nil
}

// Status reports whether any dashboard of this business is listening.
func (h *SSEHandler) Status(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	return SuccessResponse(c, fiber.Map{
		"business_id":       businessID.String(),
		"connected":         h.hub.IsConnected(businessID.String()),
		"total_connections": h.hub.ConnectedCount(),
	})
}
