package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"knot-backend/internal/api"
)

// Middleware returns a Fiber middleware that validates the bearer token
// and sets the UserContext on the request.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := bearerToken(c)
		if err != nil {
			return err
		}

		claims, err := ParseAccessToken(token, secret)
		if err != nil {
			return api.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("user", &UserContext{
			ID:    claims.Subject,
			Roles: claims.Roles,
		})
		return c.Next()
	}
}

// OptionalMiddleware attaches the caller when a valid token is present and
// lets anonymous requests through untouched.
func OptionalMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := bearerToken(c)
		if err != nil {
			return c.Next()
		}
		if claims, err := ParseAccessToken(token, secret); err == nil {
			c.Locals("user", &UserContext{ID: claims.Subject, Roles: claims.Roles})
		}
		return c.Next()
	}
}

// RequireAdmin checks the authenticated user has the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return api.UnauthorizedError("Missing auth token")
		}
		if !user.IsAdmin() {
			return api.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, error) {
	header := c.Get("Authorization")
	if header == "" {
		return "", api.UnauthorizedError("Missing auth token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", api.UnauthorizedError("Invalid auth header format")
	}
	return parts[1], nil
}
