package middleware

import (
	"jv-billing-backend/internal/constants"
	"jv-billing-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// AuthorizePermission checks the session user's role against constants.PermissionRoles.
// An unmapped permission is a wiring bug and answers 500.
func AuthorizePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		role, _ := user["role"].(string)
		if role == "" {
			return response.Error(c, "Authorization error", fiber.StatusInternalServerError, nil)
		}
		if len(constants.PermissionRoles[permission]) == 0 {
			log.Error().Str("permission", permission).Msg("permission has no roles configured")
			return response.Error(c, "Permission configuration error", fiber.StatusInternalServerError, nil)
		}
		if !constants.AllowedRole(permission, role) {
			return response.Forbidden(c, permission)
		}
		return c.Next()
	}
}
