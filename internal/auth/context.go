package auth

import "github.com/gofiber/fiber/v2"

// UserContext represents the authenticated caller, set by the auth
// middleware.
type UserContext struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *UserContext) IsAdmin() bool {
	return u.HasRole("admin")
}

// GetUser extracts the UserContext from a Fiber context. It returns nil
// for anonymous requests.
func GetUser(c *fiber.Ctx) *UserContext {
	user, _ := c.Locals("user").(*UserContext)
	return user
}
