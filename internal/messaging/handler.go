package messaging

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

func (h *Handler) List(c *fiber.Ctx) error {
	threads, err := h.svc.List(c.UserContext(), auth.GetUser(c).ID)
	if err != nil {
		return err
	}
	return api.Data(c, threads)
}

// Start handles POST /api/conversations {"userId": ...}.
func (h *Handler) Start(c *fiber.Ctx) error {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	thread, err := h.svc.Start(c.UserContext(), auth.GetUser(c).ID, body.UserID)
	if err != nil {
		return err
	}
	return api.Data(c, thread)
}

func (h *Handler) Messages(c *fiber.Ctx) error {
	limit := api.IntQuery(c, "limit", DefaultHistory, MaxHistory)
	msgs, err := h.svc.Messages(c.UserContext(), c.Params("id"), auth.GetUser(c).ID, limit)
	if err != nil {
		return err
	}
	return api.Data(c, msgs)
}

func (h *Handler) Send(c *fiber.Ctx) error {
	var body struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	msg, err := h.svc.Send(c.UserContext(), c.Params("id"), auth.GetUser(c).ID, body.Content)
	if err != nil {
		return err
	}
	return api.Created(c, msg)
}

func (h *Handler) MarkRead(c *fiber.Ctx) error {
	n, err := h.svc.MarkRead(c.UserContext(), c.Params("id"), auth.GetUser(c).ID)
	if err != nil {
		return err
	}
	return api.Data(c, fiber.Map{"marked": n})
}

func RegisterRoutes(app *fiber.App, h *Handler, authed fiber.Handler) {
	g := app.Group("/api/conversations", authed)
	g.Get("/", h.List)
	g.Post("/", h.Start)
	g.Get("/:id/messages", h.Messages)
	g.Post("/:id/messages", h.Send)
	g.Post("/:id/read", h.MarkRead)
}
