package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	healthsvc "jv-billing-backend/internal/application/health"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okPinger struct{}

func (okPinger) Ping() error { return nil }

func setupHealthHandlers(t *testing.T) (*Handlers, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return &Handlers{
		Deps:           healthsvc.Deps{Redis: rdb, DB: okPinger{}},
		HealthAdminKey: "test-admin-key",
	}, mr
}

func TestReset_Unauthorized(t *testing.T) {
	h, _ := setupHealthHandlers(t)
	app := fiber.New()
	app.Get("/reset", h.Reset)

	resp, err := app.Test(httptest.NewRequest("GET", "/reset", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "Unauthorized", out["error"].(map[string]interface{})["message"])

	resp, err = app.Test(httptest.NewRequest("GET", "/reset?key=wrong", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestReset_Success(t *testing.T) {
	h, mr := setupHealthHandlers(t)
	app := fiber.New()
	app.Get("/reset", h.Reset)

	mr.Set("health:billing:req_total", "5")
	mr.Lpush("health:billing:error_log", `{"message":"old"}`)

	resp, err := app.Test(httptest.NewRequest("GET", "/reset?key=test-admin-key", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.False(t, mr.Exists("health:billing:req_total"))
	assert.False(t, mr.Exists("health:billing:error_log"))
	assert.True(t, mr.Exists("health:billing:start_time"))
}

func TestJSON_ReturnsStructure(t *testing.T) {
	h, _ := setupHealthHandlers(t)
	app := fiber.New()
	app.Get("/health/json", h.JSON)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "jv-billing-api", out["service"])
	assert.Equal(t, "ok", out["status"])
	for _, k := range []string{"runtime", "traffic", "dependencies"} {
		assert.Contains(t, out, k)
	}
	deps := out["dependencies"].(map[string]interface{})
	assert.Equal(t, "disabled", deps["broker"].(map[string]interface{})["status"])
}

func TestJSON_UnavailableWithoutDatabase(t *testing.T) {
	h, _ := setupHealthHandlers(t)
	h.Deps.DB = nil
	app := fiber.New()
	app.Get("/health/json", h.JSON)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestErrors_ReturnsArray(t *testing.T) {
	h, _ := setupHealthHandlers(t)
	app := fiber.New()
	app.Get("/health/errors", h.Errors)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/errors", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var empty []interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&empty))
	assert.Empty(t, empty)

	h.Deps.Redis.LPush(context.Background(), "health:billing:error_log",
		`{"time":"2025-01-01T12:00:00Z","path":"/api/v1/jibs/finalize-jib/x","method":"POST","message":"test"}`)
	resp, err = app.Test(httptest.NewRequest("GET", "/health/errors", nil))
	require.NoError(t, err)
	var entries []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "test", entries[0]["message"])
}

func TestRoot_Liveness(t *testing.T) {
	h := &Handlers{}
	app := fiber.New()
	app.Get("/", h.Root)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
