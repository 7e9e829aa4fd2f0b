package auth

import (
	"github.com/gofiber/fiber/v2"

	"knot-backend/internal/api"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	svc *Service
}

func NewAuthHandler(svc *Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var body RegisterInput
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	session, err := h.svc.Register(c.UserContext(), body)
	if err != nil {
		return err
	}
	return api.Created(c, session)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	session, err := h.svc.Login(c.UserContext(), body.Email, body.Password)
	if err != nil {
		return err
	}
	return api.Data(c, session)
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body refreshBody
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	session, err := h.svc.Refresh(c.UserContext(), body.RefreshToken)
	if err != nil {
		return err
	}
	return api.Data(c, session)
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body refreshBody
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	if err := h.svc.Logout(c.UserContext(), body.RefreshToken); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := h.svc.Me(c.UserContext(), GetUser(c).ID)
	if err != nil {
		return err
	}
	return api.Data(c, user)
}

// ForgotPassword handles POST /api/auth/forgot-password. The response is
// the same whether or not the address is registered.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	if body.Email == "" {
		return api.ValidationError([]api.ErrorDetail{{Field: "email", Rule: "required", Message: "Email is required"}})
	}
	if err := h.svc.ForgotPassword(c.UserContext(), body.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "If an account exists for that email, a reset link has been sent"})
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	if err := h.svc.ResetPassword(c.UserContext(), body.Token, body.Password); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Password has been reset"})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler, authed fiber.Handler) {
	g := app.Group("/api/auth")
	g.Post("/register", h.Register)
	g.Post("/login", h.Login)
	g.Post("/refresh", h.Refresh)
	g.Post("/logout", h.Logout)
	g.Post("/forgot-password", h.ForgotPassword)
	g.Post("/reset-password", h.ResetPassword)
	g.Get("/me", authed, h.Me)
}
