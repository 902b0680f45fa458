// Package httpx holds request parsing and error mapping shared by the billing handlers.
package httpx

import (
	"errors"
	"strings"
	"time"

	"jv-billing-backend/internal/domain"
	"jv-billing-backend/internal/middleware"
	"jv-billing-backend/internal/pkg/metrics"
	"jv-billing-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var statusByKind = map[string]int{
	"InvalidInput":                 fiber.StatusBadRequest,
	"InvalidAllocationInput":       fiber.StatusBadRequest,
	"PartnerSumMismatch":           fiber.StatusBadRequest,
	"NotFound":                     fiber.StatusNotFound,
	"JIBLocked":                    fiber.StatusConflict,
	"CashCallLocked":               fiber.StatusConflict,
	"AlreadyFinalized":             fiber.StatusConflict,
	"DuplicatePeriod":              fiber.StatusConflict,
	"CodeGenerationConflict":       fiber.StatusConflict,
	"CannotCancelPartiallySettled": fiber.StatusConflict,
	"ShareDisputed":                fiber.StatusConflict,
	"OverpaymentRejected":          fiber.StatusUnprocessableEntity,
	"OverfundingRejected":          fiber.StatusUnprocessableEntity,
}

// StatusFor maps a domain error to its HTTP status; 500 for anything unrecognised.
func StatusFor(err error) int {
	if code, ok := statusByKind[domain.Kind(err)]; ok {
		return code
	}
	return fiber.StatusInternalServerError
}

// Fail writes err in the standard error envelope. Domain rejections carry their kind in
// details and are counted; anything else is logged and answered with a generic 500.
func Fail(c *fiber.Ctx, err error) error {
	kind := domain.Kind(err)
	if kind == "" {
		log.Error().Err(err).Str("trace_id", middleware.GetTraceID(c)).Str("path", c.Path()).Msg("request failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	metrics.Rejections.WithLabelValues(kind).Inc()
	return response.Rejected(c, StatusFor(err), kind, err.Error())
}

// BadRequest is shorthand for a 400 InvalidInput rejection.
func BadRequest(c *fiber.Ctx, msg string) error {
	return Fail(c, domain.Rejectf(domain.ErrInvalidInput, "%s", msg))
}

// ParamID parses a UUID route parameter.
func ParamID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	raw := c.Params(name)
	if raw == "" {
		return uuid.Nil, domain.Rejectf(domain.ErrInvalidInput, "%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.Rejectf(domain.ErrInvalidInput, "invalid %s format", name)
	}
	return id, nil
}

// QueryID parses an optional UUID query parameter.
func QueryID(c *fiber.Ctx, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "invalid %s format", name)
	}
	return &id, nil
}

// Body decodes a JSON request body into dst.
func Body(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return domain.Rejectf(domain.ErrInvalidInput, "invalid request body: %s", err.Error())
	}
	return nil
}

// Date accepts "2006-01-02" or RFC 3339 in JSON bodies.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		d.Time = t.UTC()
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return errors.New("dates must be YYYY-MM-DD or RFC 3339")
	}
	d.Time = t.UTC()
	return nil
}

// Ptr returns nil for an absent date.
func (d *Date) Ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}
