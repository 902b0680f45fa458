package jib

import (
	jibsvc "jv-billing-backend/internal/application/jib"
	"jv-billing-backend/internal/interfaces/handlers/httpx"
	"jv-billing-backend/internal/middleware"
	"jv-billing-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *jibsvc.Service
}

// POST /api/v1/jibs/create-jib
func (h *Handlers) CreateJIB(c *fiber.Ctx) error {
	var body struct {
		ContractID   uuid.UUID  `json:"contract_id"`
		BillingYear  int        `json:"billing_year"`
		BillingMonth int        `json:"billing_month"`
		Currency     string     `json:"currency"`
		DueDate      httpx.Date `json:"due_date"`
		Notes        *string    `json:"notes"`
	}
	if err := httpx.Body(c, &body); err != nil {
		return httpx.Fail(c, err)
	}
	if body.ContractID == uuid.Nil {
		return httpx.BadRequest(c, "contract_id is required")
	}
	j, err := h.Service.CreateJIB(c.UserContext(), jibsvc.CreateInput{
		ContractID:   body.ContractID,
		BillingYear:  body.BillingYear,
		BillingMonth: body.BillingMonth,
		Currency:     body.Currency,
		DueDate:      body.DueDate.Ptr(),
		Notes:        body.Notes,
		CreatedBy:    middleware.Actor(c),
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.SuccessCreated(c, "JIB created successfully", j, nil)
}

// GET /api/v1/jibs/get-jibs?contract_id=&status=&year=&month=
func (h *Handlers) GetJIBs(c *fiber.Ctx) error {
	contractID, err := httpx.QueryID(c, "contract_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	jibs, err := h.Service.ListJIBs(c.UserContext(), jibsvc.ListFilter{
		ContractID: contractID,
		Status:     c.Query("status"),
		Year:       c.QueryInt("year"),
		Month:      c.QueryInt("month"),
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "JIBs fetched successfully", jibs, fiber.Map{"count": len(jibs)})
}

// GET /api/v1/jibs/get-jib/:id
func (h *Handlers) GetJIB(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	j, err := h.Service.GetJIB(c.UserContext(), id)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "JIB fetched successfully", j, nil)
}

type lineItemBody struct {
	CostCategory *string          `json:"cost_category"`
	Description  *string          `json:"description"`
	Amount       *decimal.Decimal `json:"amount"`
	AFEID        *uuid.UUID       `json:"afe_id"`
	ExpenseID    *uuid.UUID       `json:"expense_id"`
	IsBillable   *bool            `json:"is_billable"`
}

// POST /api/v1/jibs/add-line-item/:id
func (h *Handlers) AddLineItem(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	var body lineItemBody
	if err := httpx.Body(c, &body); err != nil {
		return httpx.Fail(c, err)
	}
	if body.CostCategory == nil || body.Description == nil || body.Amount == nil {
		return httpx.BadRequest(c, "cost_category, description and amount are required")
	}
	item, err := h.Service.AddLineItem(c.UserContext(), id, jibsvc.LineItemInput{
		CostCategory: *body.CostCategory,
		Description:  *body.Description,
		Amount:       *body.Amount,
		AFEID:        body.AFEID,
		ExpenseID:    body.ExpenseID,
		IsBillable:   body.IsBillable,
		Actor:        middleware.Actor(c),
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.SuccessCreated(c, "Line item added successfully", item, nil)
}

// PUT /api/v1/jibs/edit-line-item/:item_id
func (h *Handlers) EditLineItem(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "item_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	var body lineItemBody
	if err := httpx.Body(c, &body); err != nil {
		return httpx.Fail(c, err)
	}
	item, err := h.Service.UpdateLineItem(c.UserContext(), id, jibsvc.LineItemPatch{
		CostCategory: body.CostCategory,
		Description:  body.Description,
		Amount:       body.Amount,
		AFEID:        body.AFEID,
		ExpenseID:    body.ExpenseID,
		IsBillable:   body.IsBillable,
		Actor:        middleware.Actor(c),
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Line item updated successfully", item, nil)
}

// DELETE /api/v1/jibs/remove-line-item/:item_id
func (h *Handlers) RemoveLineItem(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "item_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	if err := h.Service.RemoveLineItem(c.UserContext(), id, middleware.Actor(c)); err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Line item removed successfully", fiber.Map{"line_item_id": id}, nil)
}

// POST /api/v1/jibs/finalize-jib/:id
func (h *Handlers) FinalizeJIB(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	var body struct {
		DueDate httpx.Date `json:"due_date"`
	}
	if len(c.Body()) > 0 {
		if err := httpx.Body(c, &body); err != nil {
			return httpx.Fail(c, err)
		}
	}
	j, err := h.Service.Finalize(c.UserContext(), id, jibsvc.FinalizeInput{
		DueDate:    body.DueDate.Ptr(),
		ApprovedBy: middleware.Actor(c),
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "JIB finalized and sent", j, nil)
}

// POST /api/v1/jibs/cancel-jib/:id
func (h *Handlers) CancelJIB(c *fiber.Ctx) error {
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
	j, err := h.Service.Cancel(c.UserContext(), id, body.Reason, middleware.Actor(c))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "JIB cancelled", j, nil)
}

// POST /api/v1/jibs/record-payment/:share_id
func (h *Handlers) RecordPayment(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "share_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	var body struct {
		Amount    *decimal.Decimal `json:"amount"`
		Reference string           `json:"payment_reference"`
		PaidOn    httpx.Date       `json:"payment_date"`
	}
	if err := httpx.Body(c, &body); err != nil {
		return httpx.Fail(c, err)
	}
	if body.Amount == nil {
		return httpx.BadRequest(c, "amount is required")
	}
	share, err := h.Service.RecordPayment(c.UserContext(), id, jibsvc.PaymentInput{
		Amount:    *body.Amount,
		Reference: body.Reference,
		PaidOn:    body.PaidOn.Ptr(),
		Actor:     middleware.Actor(c),
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Payment recorded", share, nil)
}

// POST /api/v1/jibs/dispute-share/:share_id
func (h *Handlers) DisputeShare(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "share_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := httpx.Body(c, &body); err != nil {
		return httpx.Fail(c, err)
	}
	share, err := h.Service.DisputeShare(c.UserContext(), id, body.Reason, middleware.Actor(c))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Share disputed", share, nil)
}

// POST /api/v1/jibs/resolve-dispute/:share_id
func (h *Handlers) ResolveDispute(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "share_id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	var body struct {
		Resolution string          `json:"resolution"`
		WriteOff   decimal.Decimal `json:"write_off"`
	}
	if err := httpx.Body(c, &body); err != nil {
		return httpx.Fail(c, err)
	}
	share, err := h.Service.ResolveDispute(c.UserContext(), id, jibsvc.ResolveInput{
		Resolution: body.Resolution,
		WriteOff:   body.WriteOff,
		Actor:      middleware.Actor(c),
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Dispute resolved", share, nil)
}

// GET /api/v1/jibs/get-payments/:id
func (h *Handlers) GetPayments(c *fiber.Ctx) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return httpx.Fail(c, err)
	}
	payments, err := h.Service.ListPayments(c.UserContext(), id)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return response.Success(c, "Payments fetched successfully", payments, fiber.Map{"count": len(payments)})
}
