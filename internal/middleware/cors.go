package middleware

import (
	"strings"

	"jv-billing-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig allows origins by suffix, or any origin presenting the dev password.
type CORSConfig struct {
	AllowedSuffix string
	DevPassword   string
}

// CORS answers preflights itself and rejects unknown browser origins with 403.
// Requests without an Origin header (server-to-server) pass through.
func CORS(cfg CORSConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		if origin == "" {
			return c.Next()
		}
		allowed := isLocalOrigin(origin) && c.Method() == fiber.MethodOptions ||
			cfg.AllowedSuffix != "" && strings.HasSuffix(strings.ToLower(origin), strings.ToLower(cfg.AllowedSuffix)) ||
			cfg.DevPassword != "" && c.Get("dev-password") == cfg.DevPassword
		if !allowed {
			return response.Error(c, "Not allowed by CORS", fiber.StatusForbidden, nil)
		}
		setCORSHeaders(c, origin)
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

func isLocalOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")
}

func setCORSHeaders(c *fiber.Ctx, origin string) {
	c.Set("Access-Control-Allow-Origin", origin)
	c.Set("Access-Control-Allow-Credentials", "true")
	c.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	c.Set("Access-Control-Allow-Headers", "Content-Type, dev-password, "+TraceIDHeader)
	c.Set("Access-Control-Expose-Headers", TraceIDHeader)
	c.Set("Vary", "Origin")
}
