package users

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"knot-backend/internal/api"
	"knot-backend/internal/auth"
	"knot-backend/internal/matching"
)

type Handler struct {
	svc          *Service
	maxSize      int64
	defaultLimit int
	maxLimit     int
}

func NewHandler(svc *Service, maxFileSize int64, defaultLimit, maxLimit int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = matching.DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = 50
	}
	return &Handler{svc: svc, maxSize: maxFileSize, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

func (h *Handler) Me(c *fiber.Ctx) error {
	u, err := h.svc.Get(c.UserContext(), auth.GetUser(c).ID)
	if err != nil {
		return err
	}
	return api.Data(c, u)
}

func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	var body ProfileUpdate
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	u, err := h.svc.UpdateProfile(c.UserContext(), auth.GetUser(c).ID, body)
	if err != nil {
		return err
	}
	return api.Data(c, u)
}

// SetCompatibility handles PUT /api/users/me/compatibility.
func (h *Handler) SetCompatibility(c *fiber.Ctx) error {
	var body matching.Profile
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	u, err := h.svc.SetCompatibility(c.UserContext(), auth.GetUser(c).ID, body)
	if err != nil {
		return err
	}
	return api.Data(c, u)
}

// UploadPicture handles POST /api/users/me/picture (multipart "file").
func (h *Handler) UploadPicture(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Missing file in form data")
	}
	if h.maxSize > 0 && file.Size > h.maxSize {
		msg := fmt.Sprintf("File too large: %d bytes (max %d)", file.Size, h.maxSize)
		return api.NewAppError("FILE_TOO_LARGE", 413, msg)
	}
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	u, err := h.svc.UploadPicture(c.UserContext(), auth.GetUser(c).ID, file.Filename, src)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"profilePicture": u.ProfilePicture}})
}

func (h *Handler) StartTrial(c *fiber.Ctx) error {
	u, err := h.svc.StartTrial(c.UserContext(), auth.GetUser(c).ID)
	if err != nil {
		return err
	}
	return api.Data(c, u.Subscription)
}

// Public handles GET /api/users/:id.
func (h *Handler) Public(c *fiber.Ctx) error {
	p, err := h.svc.Public(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return api.Data(c, p)
}

// Matches handles GET /api/matches?limit=&notify=true.
func (h *Handler) Matches(c *fiber.Ctx) error {
	limit := api.IntQuery(c, "limit", h.defaultLimit, h.maxLimit)
	matches, err := h.svc.Matches(c.UserContext(), auth.GetUser(c).ID, limit, c.QueryBool("notify"))
	if err != nil {
		return err
	}
	return api.Data(c, fiber.Map{"matches": matches, "total": len(matches)})
}

// List handles GET /api/admin/users.
func (h *Handler) List(c *fiber.Ctx) error {
	page, limit := api.PageParams(c, 20, 100)
	items, total, err := h.svc.List(c.UserContext(), page, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data":       items,
		"pagination": api.NewPagination(page, limit, total),
	})
}

func RegisterRoutes(app *fiber.App, h *Handler, authed, admin fiber.Handler) {
	g := app.Group("/api/users", authed)
	g.Get("/me", h.Me)
	g.Put("/me", h.UpdateMe)
	g.Put("/me/compatibility", h.SetCompatibility)
	g.Post("/me/picture", h.UploadPicture)
	g.Post("/me/trial", h.StartTrial)
	g.Get("/:id", h.Public)

	app.Get("/api/matches", authed, h.Matches)
	app.Get("/api/admin/users", authed, admin, h.List)
}
