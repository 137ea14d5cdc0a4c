package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/CourseFox/internal/pkg/constants"
)

// OpsRouter serves health, metrics and the fiber monitor.
type OpsRouter struct {
	deps Dependencies
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		if h.deps.ReadyCheck != nil {
			if err := h.deps.ReadyCheck(); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	protect := basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.deps.MetricsUser: h.deps.MetricsPassword,
		},
	})
	if h.deps.MetricsUser == "" || h.deps.MetricsPassword == "" {
		protect = func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNotFound)
		}
	}

	app.Get(constants.MetricsRoute, protect, adaptor.HTTPHandler(promhttp.Handler()))
	app.Get(constants.MonitorRoute, protect, monitor.New(monitor.Config{Title: "CourseFox Monitor"}))
}

func NewOpsRouter(deps Dependencies) *OpsRouter {
	return &OpsRouter{deps: deps}
}
