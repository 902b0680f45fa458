package middleware

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SessionConfig points at the Redis store shared with the login service.
type SessionConfig struct {
	RedisURL   string
	CookieName string // defaults to DefaultSessionCookie
}

const (
	DefaultSessionCookie = "jv.sid"
	SessionRedisPrefix   = "session:"
	sessionIdleTTL       = 24 * time.Hour
)

// Session connects to Redis and returns the session loader plus the client, which the
// rest of the app reuses.
func Session(cfg SessionConfig) (fiber.Handler, *redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opt)
	return SessionLoader(rdb, cfg.CookieName), rdb, nil
}

// SessionLoader resolves the session cookie to a user. Sessions are written by the login
// service; here they are only read and their idle TTL extended.
func SessionLoader(rdb *redis.Client, cookieName string) fiber.Handler {
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies(cookieName)
		// signed cookies look like "s:<id>.<signature>"
		if strings.HasPrefix(sessionID, "s:") {
			sessionID = strings.SplitN(sessionID[2:], ".", 2)[0]
		}
		if sessionID == "" {
			return c.Next()
		}
		key := SessionRedisPrefix + sessionID
		b, err := rdb.Get(c.UserContext(), key).Bytes()
		if err != nil {
			if err != redis.Nil {
				log.Warn().Err(err).Msg("session lookup failed")
			}
			return c.Next()
		}
		var data map[string]interface{}
		if err := json.Unmarshal(b, &data); err != nil {
			log.Warn().Err(err).Msg("session payload unreadable")
			return c.Next()
		}
		if u, ok := data["user"].(map[string]interface{}); ok {
			SetUser(c, u)
			rdb.Expire(c.UserContext(), key, sessionIdleTTL)
		}
		return c.Next()
	}
}
