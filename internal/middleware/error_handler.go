package middleware

import (
	"errors"

	"jv-billing-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ErrorHandler is the app-wide fallback for errors handlers did not map themselves.
// Internal errors are logged with the trace ID and never echoed to the client.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Error(c, fe.Message, fe.Code, nil)
	}
	log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("path", c.Path()).Msg("unhandled error")
	return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError,
		map[string]interface{}{"trace_id": GetTraceID(c)})
}
