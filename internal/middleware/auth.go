package middleware

import (
	"jv-billing-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const userLocal = "user"

// RequireAuth rejects requests without a session user.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetUser(c) == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) map[string]interface{} {
	u, _ := c.Locals(userLocal).(map[string]interface{})
	return u
}

// SetUser places a user on the request; the session middleware and tests use it.
func SetUser(c *fiber.Ctx, user map[string]interface{}) {
	c.Locals(userLocal, user)
}

// Actor names the caller in audit entries: user_id, falling back to email.
func Actor(c *fiber.Ctx) string {
	u := GetUser(c)
	if u == nil {
		return ""
	}
	if id, _ := u["user_id"].(string); id != "" {
		return id
	}
	email, _ := u["email"].(string)
	return email
}
