package middleware

import (
	icuser "github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// RequireAPIAuth ensures a verified caller and returns JSON 401 otherwise.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireAdmin ensures a verified admin caller.
func RequireAdmin(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	if !icuser.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin only",
		})
	}
	return c.Next()
}
