package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

const testSecret = "identity-secret"

func signToken(t *testing.T, secret string, claims IdentityClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func validClaims() IdentityClaims {
	return IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			Issuer:    "identity.test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newIdentityApp() *fiber.App {
	app := fiber.New()
	app.Use(Identity(IdentityConfig{Secret: testSecret, Issuer: "identity.test"}))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	})
	app.Get("/private", RequireAPIAuth, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/admin", RequireAdmin, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func get(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestIdentity(t *testing.T) {
	app := newIdentityApp()
	valid := signToken(t, testSecret, validClaims())

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	noSubject := validClaims()
	noSubject.Subject = ""

	admin := validClaims()
	admin.Role = "admin"

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"anonymous public", "/whoami", "", fiber.StatusOK},
		{"anonymous private", "/private", "", fiber.StatusUnauthorized},
		{"valid private", "/private", valid, fiber.StatusNoContent},
		{"wrong secret", "/private", signToken(t, "other", validClaims()), fiber.StatusUnauthorized},
		{"expired", "/private", signToken(t, testSecret, expired), fiber.StatusUnauthorized},
		{"wrong issuer", "/private", signToken(t, testSecret, wrongIssuer), fiber.StatusUnauthorized},
		{"no subject", "/private", signToken(t, testSecret, noSubject), fiber.StatusUnauthorized},
		{"garbage", "/whoami", "not.a.jwt", fiber.StatusUnauthorized},
		{"user on admin route", "/admin", valid, fiber.StatusForbidden},
		{"admin on admin route", "/admin", signToken(t, testSecret, admin), fiber.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, get(t, app, tt.path, tt.token))
		})
	}
}

func TestIdentity_UserIDClaimWins(t *testing.T) {
	claims := validClaims()
	claims.UserID = 7
	claims.Subject = "auth0|abc"

	app := fiber.New()
	app.Use(Identity(IdentityConfig{Secret: testSecret}))
	var got usercontext.UserContext
	app.Get("/", func(c *fiber.Ctx) error {
		got = usercontext.GetUserContext(c)
		return nil
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "bearer "+signToken(t, testSecret, claims))
	_, err := app.Test(req)
	require.NoError(t, err)
	assert.True(t, got.IsLoggedIn)
	assert.Equal(t, uint(7), got.UserID)
	assert.Equal(t, "auth0|abc", got.Subject)
}
