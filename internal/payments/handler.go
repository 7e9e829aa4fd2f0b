package payments

import (
	"github.com/gofiber/fiber/v2"

	"knot-backend/internal/api"
	"knot-backend/internal/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Plans handles GET /api/plans.
func (h *Handler) Plans(c *fiber.Ctx) error {
	return api.Data(c, h.svc.Plans())
}

// Checkout handles POST /api/payments/checkout.
func (h *Handler) Checkout(c *fiber.Ctx) error {
	var body struct {
		Plan     string `json:"plan"`
		Interval string `json:"interval"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	sess, err := h.svc.Checkout(c.UserContext(), auth.GetUser(c).ID, body.Plan, body.Interval)
	if err != nil {
		return err
	}
	return api.Created(c, sess)
}

// Webhook handles POST /api/payments/webhook. The raw body is needed for
// signature verification.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	if err := h.svc.HandleWebhook(c.UserContext(), c.Body(), c.Get("Stripe-Signature")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"received": true})
}

func RegisterRoutes(app *fiber.App, h *Handler, authed fiber.Handler) {
	app.Get("/api/plans", h.Plans)
	app.Post("/api/payments/checkout", authed, h.Checkout)
	app.Post("/api/payments/webhook", h.Webhook)
}
