package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/CourseFox/internal/pkg/constants"
	"github.com/ManuelReschke/CourseFox/internal/pkg/middleware"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIPrefix, limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		Storage:    newLimiterStorage(h.deps.Redis),
		// Gateway retries must never be throttled away.
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == constants.WebhookRoute
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "too many requests",
			})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1", middleware.Identity(h.deps.Identity))
	pc := h.deps.Payments

	v1.Post("/payments/webhook", pc.HandleWebhook)

	v1.Post("/payments/orders", middleware.RequireAPIAuth, pc.HandleCreateOrder)
	v1.Post("/payments/verify", middleware.RequireAPIAuth, pc.HandleVerify)
	v1.Get("/payments", middleware.RequireAPIAuth, pc.HandleListPayments)
	v1.Get("/payments/:orderId", middleware.RequireAPIAuth, pc.HandleGetPayment)
	v1.Get("/courses/:courseId/enrollment", middleware.RequireAPIAuth, pc.HandleGetEnrollment)

	v1.Post("/admin/reconcile", middleware.RequireAdmin, pc.HandleRunSweep)

	v1.Get("/me", middleware.RequireAPIAuth, func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	})
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
