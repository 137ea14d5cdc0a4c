package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CourseFox/app/controllers"
	"github.com/ManuelReschke/CourseFox/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are built once in main and shared by all routers.
type Dependencies struct {
	Payments *controllers.PaymentController
	Identity middleware.IdentityConfig
	// Redis backs the shared rate limiter. Nil keeps limiter state in memory.
	Redis           *redis.Client
	MetricsUser     string
	MetricsPassword string
	// ReadyCheck reports whether backing stores are reachable.
	ReadyCheck func() error
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Ops routes first so /metrics and /healthz bypass the API limiter.
	setup(app, NewOpsRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
