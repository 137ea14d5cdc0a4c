package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// IdentityClaims are issued by the external identity service.
type IdentityClaims struct {
	UserID uint   `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IdentityConfig configures bearer token verification.
type IdentityConfig struct {
	Secret string
	Issuer string
}

func IdentityConfigFromEnv() IdentityConfig {
	return IdentityConfig{
		Secret: strings.TrimSpace(env.GetEnv("IDENTITY_JWT_SECRET", "")),
		Issuer: strings.TrimSpace(env.GetEnv("IDENTITY_JWT_ISSUER", "")),
	}
}

var errNoUserID = errors.New("token carries no user id")

// Identity verifies an optional HS256 bearer token and stores the caller in
// the user context. Requests without a token continue anonymously; a token
// that fails verification is rejected with 401.
func Identity(cfg IdentityConfig) fiber.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		claims, err := verifyIdentityToken(parser, raw, cfg.Secret)
		if err != nil {
			log.Warnf("[Security] rejected identity token from %s: %v", c.IP(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "invalid token",
			})
		}

		userID := claims.UserID
		if userID == 0 {
			id, _ := strconv.ParseUint(claims.Subject, 10, 64)
			userID = uint(id)
		}
		usercontext.Set(c, usercontext.UserContext{
			UserID:     userID,
			Subject:    claims.Subject,
			Role:       claims.Role,
			IsLoggedIn: true,
			IsAdmin:    claims.Role == models.ROLE_ADMIN,
		})
		return c.Next()
	}
}

func verifyIdentityToken(parser *jwt.Parser, raw, secret string) (*IdentityClaims, error) {
	if secret == "" {
		return nil, errors.New("identity secret not configured")
	}
	claims := &IdentityClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}); err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		if id, err := strconv.ParseUint(claims.Subject, 10, 64); err != nil || id == 0 {
			return nil, errNoUserID
		}
	}
	return claims, nil
}

func bearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
