package cashcall

import (
	ccsvc "jv-billing-backend/internal/application/cashcall"
	"jv-billing-backend/internal/interfaces/handlers/httpx"
	"jv-billing-backend/internal/middleware"
	"jv-billing-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *ccsvc.Service
}

// POST /api/v1/cash-calls/create-cash-call
func (h *Handlers) CreateCashCall(c *fiber.Ctx) error {
	var body struct {
		ContractID   uuid.UUID        `json:"contract_id"`
		Purpose      string           `json:"purpose"`
		Description  *string          `json:"description"`
		AFEID        *uuid.UUID       `json:"afe_id"`
		RelatedJIBID *uuid.UUID       `json:"related_jib_id"`
		TotalAmount  *decimal.Decimal `json:"total_amount"`
		Currency     string           `json:"currency"`
		CallDate     httpx.Date       `json:"call_date"`
		DueDate      httpx.Date       `json:"due_date"`
	}
	if err := httpx.Body(c, &body); err != nil {
		return httpx.Fail(c, err)
	}
	if body.ContractID == uuid.Nil || body.TotalAmount == nil || body.DueDate.IsZero() {
		return httpx.BadRequest(c, "contract_id, total_amount and due_date are required")
	}
	cc, err := h.Service.Create(c.UserContext(), ccsvc.CreateInput{
		ContractID:   body.ContractID,
		Purpose:      body.Purpose,
		Description:  body.Description,
		AFEID:        body.AFEID,
		RelatedJIBID: body.RelatedJIBID,
		TotalAmount:  *body.TotalAmount,
		Currency:     body.Currency,
		CallDate:     body.CallDate.Ptr(),
		DueDate:      body.DueDate.Time,
		CreatedBy:    middleware.Actor(c),
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.SuccessCreated(c, "Cash call created successfully", cc, nil)
}

// GET /api/v1/cash-calls/get-cash-calls?contract_id=&afe_id=&status=
func (h *Handlers) GetCashCalls(c *fiber.Ctx) error {
	contractID, err := httpx.QueryID(c, "contract_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	afeID, err := httpx.QueryID(c, "afe_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	calls, err := h.Service.List(c.UserContext(), ccsvc.ListFilter{
		ContractID: contractID,
		AFEID:      afeID,
		Status:     c.Query("status"),
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Cash calls fetched successfully", calls, fiber.Map{"count": len(calls)})
}

// GET /api/v1/cash-calls/get-cash-call/:id
func (h *Handlers) GetCashCall(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	cc, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Cash call fetched successfully", cc, nil)
}

// PUT /api/v1/cash-calls/edit-cash-call/:id
func (h *Handlers) EditCashCall(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	var body struct {
		Purpose      *string          `json:"purpose"`
		Description  *string          `json:"description"`
		AFEID        *uuid.UUID       `json:"afe_id"`
		RelatedJIBID *uuid.UUID       `json:"related_jib_id"`
		TotalAmount  *decimal.Decimal `json:"total_amount"`
		DueDate      httpx.Date       `json:"due_date"`
	}
	if err := httpx.Body(c, &body); err != nil {
		return httpx.Fail(c, err)
	}
	cc, err := h.Service.Update(c.UserContext(), id, ccsvc.UpdateInput{
		Purpose:      body.Purpose,
		Description:  body.Description,
		AFEID:        body.AFEID,
		RelatedJIBID: body.RelatedJIBID,
		TotalAmount:  body.TotalAmount,
		DueDate:      body.DueDate.Ptr(),
		Actor:        middleware.Actor(c),
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Cash call updated successfully", cc, nil)
}

// POST /api/v1/cash-calls/issue-cash-call/:id
func (h *Handlers) IssueCashCall(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	cc, err := h.Service.Issue(c.UserContext(), id, middleware.Actor(c))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Cash call issued", cc, nil)
}

// POST /api/v1/cash-calls/cancel-cash-call/:id
func (h *Handlers) CancelCashCall(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := httpx.Body(c, &body); err != nil {
		return httpx.Fail(c, err)
	}
	cc, err := h.Service.Cancel(c.UserContext(), id, body.Reason, middleware.Actor(c))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Cash call cancelled", cc, nil)
}

// POST /api/v1/cash-calls/record-funding/:response_id
func (h *Handlers) RecordFunding(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "response_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	var body struct {
		Amount    *decimal.Decimal `json:"amount"`
		Reference string           `json:"payment_reference"`
		FundedOn  httpx.Date       `json:"funding_date"`
	}
	if err := httpx.Body(c, &body); err != nil {
		return httpx.Fail(c, err)
	}
	if body.Amount == nil {
		return httpx.BadRequest(c, "amount is required")
	}
	r, err := h.Service.RecordFunding(c.UserContext(), id, ccsvc.FundingInput{
		Amount:    *body.Amount,
		Reference: body.Reference,
		FundedOn:  body.FundedOn.Ptr(),
		Actor:     middleware.Actor(c),
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Funding recorded", r, nil)
}

// POST /api/v1/cash-calls/declare-default/:response_id
func (h *Handlers) DeclareDefault(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "response_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	var body struct {
		Penalty     *decimal.Decimal `json:"penalty"`
		DefaultDate httpx.Date       `json:"default_date"`
	}
	if len(c.Body()) > 0 {
		if err := httpx.Body(c, &body); err != nil {
			return httpx.Fail(c, err)
		}
	}
	r, err := h.Service.DeclareDefault(c.UserContext(), id, ccsvc.DefaultInput{
		Penalty:     body.Penalty,
		DefaultDate: body.DefaultDate.Ptr(),
		Actor:       middleware.Actor(c),
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Response declared in default", r, nil)
}

// POST /api/v1/cash-calls/excuse-response/:response_id
func (h *Handlers) ExcuseResponse(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "response_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := httpx.Body(c, &body); err != nil {
		return httpx.Fail(c, err)
	}
	r, err := h.Service.MarkExcused(c.UserContext(), id, body.Reason, middleware.Actor(c))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Response excused", r, nil)
}
