package health

import (
	"encoding/json"
	"strconv"
	"time"

	healthsvc "jv-billing-backend/internal/application/health"
	"jv-billing-backend/internal/middleware"
	"jv-billing-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const serviceName = "jv-billing-api"

// Handlers serves the operational endpoints.
type Handlers struct {
	Deps           healthsvc.Deps
	HealthAdminKey string
}

// GET / : liveness only, never touches dependencies.
func (h *Handlers) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"service": serviceName, "status": "up"})
}

// GET /reset?key=HEALTH_ADMIN_KEY clears the request counters.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	key := c.Query("key")
	if key == "" || key != h.HealthAdminKey {
		return response.Error(c, "Unauthorized", fiber.StatusForbidden, nil)
	}
	if h.Deps.Redis == nil {
		return response.Error(c, "Redis is not configured", fiber.StatusServiceUnavailable, nil)
	}
	ctx := c.UserContext()
	keys := []string{middleware.KeyReqTotal, middleware.KeyReqErrors, middleware.KeyResTime, middleware.KeyResCount, middleware.KeyStartTime, middleware.KeyLastReq, middleware.KeyErrorLog}
	if err := h.Deps.Redis.Del(ctx, keys...).Err(); err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	if err := h.Deps.Redis.Set(ctx, middleware.KeyStartTime, strconv.FormatInt(time.Now().UnixMilli(), 10), 0).Err(); err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Stats reset successfully", fiber.Map{"success": true}, nil)
}

// GET /health/json. Answers 503 when the database or Redis is down.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	result := healthsvc.CollectHealth(c.UserContext(), h.Deps)
	status := fiber.StatusOK
	if result.Status == "issue" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"service":      serviceName,
		"status":       result.Status,
		"runtime":      result.Runtime,
		"traffic":      result.Traffic,
		"dependencies": result.Dependencies,
		"backlog":      result.Backlog,
	})
}

// GET /health/errors returns the most recent 5xx entries, newest first.
func (h *Handlers) Errors(c *fiber.Ctx) error {
	if h.Deps.Redis == nil {
		return c.JSON([]interface{}{})
	}
	entries, err := h.Deps.Redis.LRange(c.UserContext(), middleware.KeyErrorLog, 0, 49).Result()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON([]interface{}{})
	}
	out := make([]map[string]interface{}, 0, len(entries))
	for _, s := range entries {
		var m map[string]interface{}
		if json.Unmarshal([]byte(s), &m) == nil {
			out = append(out, m)
		}
	}
	return c.JSON(out)
}
