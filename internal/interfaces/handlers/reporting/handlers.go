package reporting

import (
	"jv-billing-backend/internal/application/audit"
	reportsvc "jv-billing-backend/internal/application/reporting"
	"jv-billing-backend/internal/interfaces/handlers/httpx"
	"jv-billing-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service *reportsvc.Service
	Audit   *audit.Service
}

// GET /api/v1/reports/partner-statement/:partner_id?contract_id=
func (h *Handlers) PartnerStatement(c *fiber.Ctx) error {
	partnerID, err := httpx.ParamID(c, "partner_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	contractID, err := httpx.QueryID(c, "contract_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	st, err := h.Service.PartnerStatement(c.UserContext(), partnerID, contractID)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Partner statement fetched successfully", st, nil)
}

// GET /api/v1/reports/overdue?contract_id=
func (h *Handlers) Overdue(c *fiber.Ctx) error {
	contractID, err := httpx.QueryID(c, "contract_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	items, err := h.Service.Overdue(c.UserContext(), contractID)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Overdue items fetched successfully", items, fiber.Map{"count": len(items)})
}

// GET /api/v1/reports/contract-summary/:contract_id
func (h *Handlers) ContractSummary(c *fiber.Ctx) error {
	contractID, err := httpx.ParamID(c, "contract_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	sums, err := h.Service.ContractSummaries(c.UserContext(), contractID)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Contract summary fetched successfully", sums, nil)
}

// GET /api/v1/reports/audit/:entity_id
func (h *Handlers) AuditTrail(c *fiber.Ctx) error {
	entityID, err := httpx.ParamID(c, "entity_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	events, err := h.Audit.ListForEntity(c.UserContext(), entityID)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Audit trail fetched successfully", events, fiber.Map{"count": len(events)})
}

// POST /api/v1/notifications/notify-overdue
func (h *Handlers) NotifyOverdue(c *fiber.Ctx) error {
	res, err := h.Service.NotifyOverdue(c.UserContext())
	if err != nil {
		return httpx.Fail(c, err)
	}
	log.Info().Int("published", res.Published).Int("skipped", res.Skipped).Msg("overdue notification scan")
	return response.Success(c, "Overdue notifications dispatched", res, nil)
}
