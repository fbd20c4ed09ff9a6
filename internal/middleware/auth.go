package middleware

import (
	"errors"

	"github.com/audiostack/backend/internal/config"
	"github.com/audiostack/backend/internal/dto"
	"github.com/audiostack/backend/internal/tokens"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const principalKey = "principal"

// JWTProtected gates a route on a structurally valid bearer token:
// signature and expiry only. TokenGuard must run after it to apply the
// revocation-cache and tokenVersion checks.
func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				return c.Status(fiber.StatusUnauthorized).JSON(dto.AuthenticationRequired())
			}
			return c.Status(fiber.StatusUnauthorized).JSON(dto.InvalidToken())
		},
	})
}

// TokenGuard cross-checks the parsed claims against the revocation cache
// and the user's current tokenVersion, then stores the principal in locals.
func TokenGuard(validator *tokens.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("user").(*jwt.Token)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.AuthenticationRequired())
		}
		mapClaims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.InvalidToken())
		}

		claims, err := tokens.ClaimsFromMap(mapClaims)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.InvalidToken())
		}

		principal, err := validator.Authorize(c.UserContext(), claims)
		if err != nil {
			switch {
			case errors.Is(err, tokens.ErrUserNotFound):
				return c.Status(fiber.StatusUnauthorized).JSON(dto.UserNotFound())
			case errors.Is(err, tokens.ErrInvalidOrExpired),
				errors.Is(err, tokens.ErrInvalidatedByNewLogin):
				return c.Status(fiber.StatusUnauthorized).JSON(dto.InvalidToken())
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(dto.InternalError())
			}
		}

		c.Locals(principalKey, principal)
		return c.Next()
	}
}

// Principal returns the authenticated identity set by TokenGuard.
func Principal(c *fiber.Ctx) (*tokens.Principal, bool) {
	p, ok := c.Locals(principalKey).(*tokens.Principal)
	return p, ok
}
