package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"jv-billing-backend/internal/constants"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withUser(user map[string]interface{}) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if user != nil {
			SetUser(c, user)
		}
		return c.Next()
	}
}

func decode(t *testing.T, body io.Reader) map[string]interface{} {
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestRequireAuth(t *testing.T) {
	ok := func(c *fiber.Ctx) error { return c.SendString(Actor(c)) }

	app := fiber.New()
	app.Get("/anon", RequireAuth(), ok)
	app.Get("/named", withUser(map[string]interface{}{"user_id": "u-1", "role": "viewer"}), RequireAuth(), ok)
	app.Get("/email", withUser(map[string]interface{}{"email": "a@b.co"}), RequireAuth(), ok)

	resp, err := app.Test(httptest.NewRequest("GET", "/anon", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/named", nil))
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "u-1", string(b))

	resp, err = app.Test(httptest.NewRequest("GET", "/email", nil))
	require.NoError(t, err)
	b, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "a@b.co", string(b))
}

func TestAuthorizePermission(t *testing.T) {
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	cases := []struct {
		name string
		user map[string]interface{}
		perm string
		want int
	}{
		{"anonymous", nil, constants.ViewBilling, fiber.StatusUnauthorized},
		{"no role", map[string]interface{}{"user_id": "u"}, constants.ViewBilling, fiber.StatusInternalServerError},
		{"unknown permission", map[string]interface{}{"role": "admin"}, "launch_rockets", fiber.StatusInternalServerError},
		{"viewer cannot approve", map[string]interface{}{"role": "viewer"}, constants.ApproveBilling, fiber.StatusForbidden},
		{"treasury records payments", map[string]interface{}{"role": "treasury"}, constants.RecordPayments, fiber.StatusOK},
		{"accountant cannot finalize", map[string]interface{}{"role": "accountant"}, constants.ApproveBilling, fiber.StatusForbidden},
		{"finance manager finalizes", map[string]interface{}{"role": "finance_manager"}, constants.ApproveBilling, fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", withUser(tc.user), AuthorizePermission(tc.perm), ok)
			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestSessionLoader(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	require.NoError(t, mr.Set("session:abc", `{"user":{"user_id":"u-9","role":"treasury"}}`))
	require.NoError(t, mr.Set("session:junk", `not json`))

	app := fiber.New()
	app.Use(SessionLoader(rdb, ""))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(Actor(c)) })

	get := func(cookie string) string {
		req := httptest.NewRequest("GET", "/", nil)
		if cookie != "" {
			req.Header.Set("Cookie", DefaultSessionCookie+"="+cookie)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		b, _ := io.ReadAll(resp.Body)
		return string(b)
	}

	assert.Equal(t, "u-9", get("abc"))
	assert.Equal(t, "u-9", get("s:abc.signature"))
	assert.True(t, mr.TTL("session:abc") > 0)
	assert.Equal(t, "", get("missing"))
	assert.Equal(t, "", get("junk"))
	assert.Equal(t, "", get(""))
}

func TestTracing_PropagatesOrMints(t *testing.T) {
	app := fiber.New()
	app.Use(Tracing())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetTraceID(c)) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(TraceIDHeader, "upstream-trace-1234")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "upstream-trace-1234", resp.Header.Get(TraceIDHeader))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(TraceIDHeader, "bad id <script>")
	resp, err = app.Test(req)
	require.NoError(t, err)
	minted := resp.Header.Get(TraceIDHeader)
	assert.Len(t, minted, 36)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, minted, string(b))
}

func TestHealthMarker_CountsAndLogsErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(Tracing(), HealthMarker(rdb))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db exploded") })
	app.Get("/health/json", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for _, p := range []string{"/ok", "/ok", "/boom", "/health/json"} {
		_, err := app.Test(httptest.NewRequest("GET", p, nil))
		require.NoError(t, err)
	}

	total, _ := mr.Get(KeyReqTotal)
	assert.Equal(t, "3", total)
	errs, _ := mr.Get(KeyReqErrors)
	assert.Equal(t, "1", errs)

	entries, err := mr.List(KeyErrorLog)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(entries[0]), &entry))
	assert.Equal(t, "/boom", entry["path"])
	assert.Equal(t, "db exploded", entry["message"])
	assert.NotEmpty(t, entry["trace_id"])
}

func TestErrorHandler_HidesInternalErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("pq: password authentication failed") })
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	out := decode(t, resp.Body)
	assert.Equal(t, "Internal Server Error", out["error"].(map[string]interface{})["message"])

	resp, err = app.Test(httptest.NewRequest("GET", "/teapot", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)
	out = decode(t, resp.Body)
	assert.Equal(t, "short and stout", out["error"].(map[string]interface{})["message"])
}

func TestCORS(t *testing.T) {
	app := fiber.New()
	app.Use(CORS(CORSConfig{AllowedSuffix: ".jv-billing.example", DevPassword: "letmein"}))
	app.All("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	do := func(method, origin, devPw string) int {
		req := httptest.NewRequest(method, "/", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if devPw != "" {
			req.Header.Set("dev-password", devPw)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, do("GET", "", ""))
	assert.Equal(t, fiber.StatusOK, do("GET", "https://app.jv-billing.example", ""))
	assert.Equal(t, fiber.StatusNoContent, do("OPTIONS", "http://localhost:3000", ""))
	assert.Equal(t, fiber.StatusForbidden, do("GET", "http://localhost:3000", ""))
	assert.Equal(t, fiber.StatusOK, do("GET", "https://elsewhere.test", "letmein"))
	assert.Equal(t, fiber.StatusForbidden, do("GET", "https://elsewhere.test", "nope"))
}
