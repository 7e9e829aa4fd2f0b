package leads

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"knot-backend/internal/api"
	"knot-backend/internal/auth"
	"knot-backend/internal/model"
	"knot-backend/internal/questionnaire"
)

type Handler struct {
	svc     *Service
	maxSize int64
}

func NewHandler(svc *Service, maxFileSize int64) *Handler {
	return &Handler{svc: svc, maxSize: maxFileSize}
}

// Create handles POST /api/leads.
func (h *Handler) Create(c *fiber.Ctx) error {
	var body CreateInput
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	lead, err := h.svc.Create(c.UserContext(), body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Lead created successfully",
		"data":    lead,
	})
}

// List handles GET /api/leads.
func (h *Handler) List(c *fiber.Ctx) error {
	page, limit := api.PageParams(c, 10, 100)
	leads, total, err := h.svc.List(c.UserContext(), model.LeadFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"leads":      leads,
		"pagination": api.NewPagination(page, limit, total),
	})
}

func (h *Handler) Get(c *fiber.Ctx) error {
	lead, err := h.svc.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return api.Data(c, lead)
}

// Update handles PUT /api/leads/:id.
func (h *Handler) Update(c *fiber.Ctx) error {
	var body model.LeadUpdate
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	lead, err := h.svc.Update(c.UserContext(), c.Params("id"), body)
	if err != nil {
		return err
	}
	return api.Data(c, lead)
}

// Verify handles PATCH /api/leads/:id/verify.
func (h *Handler) Verify(c *fiber.Ctx) error {
	lead, err := h.svc.Verify(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return api.Data(c, lead)
}

// AddNote handles POST /api/leads/:id/notes.
func (h *Handler) AddNote(c *fiber.Ctx) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	addedBy := ""
	if user := auth.GetUser(c); user != nil {
		addedBy = user.ID
	}
	lead, err := h.svc.AddNote(c.UserContext(), c.Params("id"), body.Message, addedBy)
	if err != nil {
		return err
	}
	return api.Data(c, lead)
}

// Delete handles DELETE /api/leads/:id?confirm=true.
func (h *Handler) Delete(c *fiber.Ctx) error {
	if c.Query("confirm") != "true" {
		return api.BadRequestError("Deleting a lead requires confirm=true")
	}
	id := c.Params("id")
	if err := h.svc.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Lead deleted", "id": id})
}

// UploadBiodata handles POST /api/leads/:id/biodata (multipart "file").
func (h *Handler) UploadBiodata(c *fiber.Ctx) error {
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

	lead, err := h.svc.AttachBiodata(c.UserContext(), c.Params("id"), file.Filename, src)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"leadId":    lead.ID,
			"key":       lead.BiodataKey,
			"filename":  file.Filename,
			"size":      file.Size,
			"leadScore": lead.LeadScore,
		},
	})
}

// DownloadBiodata handles GET /api/leads/:id/biodata (admin).
func (h *Handler) DownloadBiodata(c *fiber.Ctx) error {
	rc, contentType, err := h.svc.OpenBiodata(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	c.Set("Content-Type", contentType)
	c.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="biodata%s"`, contentExt(contentType)))
	return c.SendStream(rc)
}

func contentExt(contentType string) string {
	switch contentType {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "application/msword":
		return ".doc"
	}
	return ".docx"
}

// Score handles GET /api/leads/:id/score (admin).
func (h *Handler) Score(c *fiber.Ctx) error {
	score, rules, err := h.svc.Explain(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return api.Data(c, fiber.Map{"leadScore": score, "rules": rules})
}

// Matches handles GET /api/leads/:id/matches (admin).
func (h *Handler) Matches(c *fiber.Ctx) error {
	minScore := c.QueryInt("minScore", questionnaire.DefaultMinScore)
	limit := api.IntQuery(c, "limit", questionnaire.DefaultMatchLimit, 50)
	matches, err := h.svc.Matches(c.UserContext(), c.Params("id"), minScore, limit)
	if err != nil {
		return err
	}
	return api.Data(c, fiber.Map{"matches": matches, "total": len(matches)})
}

// RegisterRoutes mounts /api/leads. Signup and biodata upload are public.
func RegisterRoutes(app *fiber.App, h *Handler, authed, admin fiber.Handler) {
	g := app.Group("/api/leads")
	g.Post("/", h.Create)
	g.Post("/:id/biodata", h.UploadBiodata)

	g.Get("/", authed, admin, h.List)
	g.Get("/:id", authed, admin, h.Get)
	g.Put("/:id", authed, admin, h.Update)
	g.Delete("/:id", authed, admin, h.Delete)
	g.Patch("/:id/verify", authed, admin, h.Verify)
	g.Post("/:id/notes", authed, admin, h.AddNote)
	g.Get("/:id/biodata", authed, admin, h.DownloadBiodata)
	g.Get("/:id/score", authed, admin, h.Score)
	g.Get("/:id/matches", authed, admin, h.Matches)
}
