package http

import (
	"strings"

	"booking_server/core/domain"
	"booking_server/core/port/in"

	"github.com/gofiber/fiber/v2"
)

// IntegrationHandler exposes the operator wizard and sync controls of one business.
type IntegrationHandler struct {
	service in.IntegrationService
}

func NewIntegrationHandler(service in.IntegrationService) *IntegrationHandler {
	return &IntegrationHandler{service: service}
}

func (h *IntegrationHandler) Register(app fiber.Router) {
	integ := app.Group("/integration")
	integ.Get("/", h.GetStatus)
	integ.Post("/connect", h.Connect)
	integ.Delete("/", h.Disconnect)

	// Wizard
	integ.Get("/calendars", h.ListCalendars)
	integ.Put("/calendars", h.SelectCalendars)
	integ.Get("/owners", h.ListOwners)
	integ.Put("/mapping-type", h.SetMappingType)
	integ.Put("/mappings", h.SetMapping)
	integ.Post("/mappings/complete", h.CompleteMapping)

	// Sync
	integ.Post("/import", h.Import)
	integ.Post("/conflicts/resolve", h.ResolveConflicts)
	integ.Post("/sync", h.Sync)
	integ.Put("/strategy", h.SetStrategy)
}

type selectCalendarsRequest struct {
	CalendarIDs []string `json:"calendar_ids"`
}

type mappingTypeRequest struct {
	MappingType domain.OwnerKind `json:"mapping_type"`
}

type setMappingRequest struct {
	CalendarID string `json:"calendar_id"`
	OwnerID    int64  `json:"owner_id"`
}

func (h *IntegrationHandler) GetStatus(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	status, err := h.service.GetStatus(c.Context(), businessID)
	if err != nil {
		return AppErrorResponse(c, err, "get status")
	}
	return SuccessResponse(c, status)
}

func (h *IntegrationHandler) Connect(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	state, err := h.service.Connect(c.Context(), businessID)
	if err != nil {
		return AppErrorResponse(c, err, "connect")
	}
	return SuccessResponse(c, state)
}

func (h *IntegrationHandler) Disconnect(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	report, err := h.service.Disconnect(c.Context(), businessID)
	if err != nil {
		return AppErrorResponse(c, err, "disconnect")
	}
	return SuccessResponse(c, report)
}

func (h *IntegrationHandler) ListCalendars(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	calendars, err := h.service.ListCalendars(c.Context(), businessID)
	if err != nil {
		return AppErrorResponse(c, err, "list calendars")
	}
	return SuccessResponse(c, fiber.Map{"calendars": calendars})
}

func (h *IntegrationHandler) SelectCalendars(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	var req selectCalendarsRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, 400, "invalid request body")
	}
	ids := make([]string, 0, len(req.CalendarIDs))
	for _, id := range req.CalendarIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	state, err := h.service.SelectCalendars(c.Context(), businessID, ids)
	if err != nil {
		return AppErrorResponse(c, err, "select calendars")
	}
	return SuccessResponse(c, state)
}

func (h *IntegrationHandler) ListOwners(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	owners, err := h.service.ListOwners(c.Context(), businessID)
	if err != nil {
		return AppErrorResponse(c, err, "list owners")
	}
	return SuccessResponse(c, fiber.Map{"owners": owners})
}

func (h *IntegrationHandler) SetMappingType(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	var req mappingTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, 400, "invalid request body")
	}

	state, err := h.service.SetMappingType(c.Context(), businessID, req.MappingType)
	if err != nil {
		return AppErrorResponse(c, err, "set mapping type")
	}
	return SuccessResponse(c, state)
}

func (h *IntegrationHandler) SetMapping(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	var req setMappingRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, 400, "invalid request body")
	}
	if req.CalendarID == "" || req.OwnerID <= 0 {
		return ErrorResponse(c, 400, "calendar_id and owner_id are required")
	}

	if err := h.service.SetMapping(c.Context(), businessID, req.CalendarID, req.OwnerID); err != nil {
		return AppErrorResponse(c, err, "set mapping")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *IntegrationHandler) CompleteMapping(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	state, err := h.service.CompleteMapping(c.Context(), businessID)
	if err != nil {
		return AppErrorResponse(c, err, "complete mapping")
	}
	return SuccessResponse(c, state)
}

func (h *IntegrationHandler) Import(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	req := &in.ImportRequest{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return ErrorResponse(c, 400, "invalid request body")
		}
	}

	outcome, err := h.service.Import(c.Context(), businessID, req)
	if err != nil {
		return AppErrorResponse(c, err, "import")
	}
	return SuccessResponse(c, outcome)
}

func (h *IntegrationHandler) ResolveConflicts(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	var req in.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, 400, "invalid request body")
	}

	outcome, err := h.service.ResolveConflicts(c.Context(), businessID, &req)
	if err != nil {
		return AppErrorResponse(c, err, "resolve conflicts")
	}
	return SuccessResponse(c, outcome)
}

// Sync runs an operator-triggered pass. A business that is not ready yet gets an empty result.
func (h *IntegrationHandler) Sync(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	outcome, err := h.service.Sync(c.Context(), businessID, domain.TriggerOperator)
	if err != nil {
		return AppErrorResponse(c, err, "sync")
	}
	if outcome == nil {
		return SuccessResponse(c, fiber.Map{"skipped": true})
	}
	return SuccessResponse(c, outcome)
}

func (h *IntegrationHandler) SetStrategy(c *fiber.Ctx) error {
	businessID, err := GetBusinessID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	var req in.StrategyRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, 400, "invalid request body")
	}

	state, err := h.service.SetStrategy(c.Context(), businessID, &req)
	if err != nil {
		return AppErrorResponse(c, err, "set strategy")
	}
	return SuccessResponse(c, state)
}
