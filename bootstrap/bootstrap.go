package bootstrap

import (
	"jv-billing-backend/internal/config"
	"jv-billing-backend/internal/interfaces/router"
	"jv-billing-backend/internal/pkg/logging"

	"github.com/gofiber/fiber/v2"
)

// New builds the Fiber app for serverless entrypoints, which cannot import internal/.
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Env, cfg.LogLevel)
	app, _, _, err := router.CreateApp(cfg)
	return app, err
}
