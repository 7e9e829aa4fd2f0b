package migration

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"knot-backend/internal/api"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func respond[T any](c *fiber.Ctx, res Result[T], field, existingMsg, createdMsg string) error {
	status, msg := fiber.StatusOK, existingMsg
	if res.Created {
		status, msg = fiber.StatusCreated, createdMsg
	}
	return c.Status(status).JSON(fiber.Map{
		"status":  "success",
		"message": msg,
		"data":    fiber.Map{field: res.Record},
	})
}

// Leads handles POST /api/migration/leads.
func (h *Handler) Leads(c *fiber.Ctx) error {
	var body LeadRecord
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	res, err := h.svc.MigrateLead(c.UserContext(), body)
	if err != nil {
		return err
	}
	return respond(c, res, "lead", "Lead already exists", "Lead migrated successfully")
}

// Questionnaires handles POST /api/migration/questionnaires.
func (h *Handler) Questionnaires(c *fiber.Ctx) error {
	var body QuestionnaireRecord
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	res, err := h.svc.MigrateQuestionnaire(c.UserContext(), body)
	if err != nil {
		return err
	}
	return respond(c, res, "questionnaire", "Questionnaire already exists", "Questionnaire migrated successfully")
}

// Users handles POST /api/migration/users.
func (h *Handler) Users(c *fiber.Ctx) error {
	var body UserRecord
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	res, err := h.svc.MigrateUser(c.UserContext(), body)
	if err != nil {
		return err
	}
	return respond(c, res, "user", "User already exists", "User migrated successfully")
}

type adminBody struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// Admin handles POST /api/migration/admin.
func (h *Handler) Admin(c *fiber.Ctx) error {
	var body adminBody
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}
	var data any
	if len(body.Data) > 0 {
		if err := json.Unmarshal(body.Data, &data); err != nil {
			return api.InvalidPayload()
		}
	}
	res, err := h.svc.MigrateAdminData(c.UserContext(), body.Key, data)
	if err != nil {
		return err
	}
	return respond(c, res, "adminData", "Admin data updated", "Admin data migrated successfully")
}

// Status handles GET /api/migration/status.
func (h *Handler) Status(c *fiber.Ctx) error {
	counts, err := h.svc.Status(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status": "success",
		"data": fiber.Map{
			"migratedCounts": counts,
			"totalMigrated":  counts.Total(),
		},
	})
}

// AdminData handles GET /api/admin/data/:key.
func (h *Handler) AdminData(c *fiber.Ctx) error {
	rec, err := h.svc.AdminData(c.UserContext(), c.Params("key"))
	if err != nil {
		return err
	}
	return api.Data(c, rec)
}

func RegisterRoutes(app *fiber.App, h *Handler, authed, admin fiber.Handler) {
	g := app.Group("/api/migration", authed, admin)
	g.Post("/leads", h.Leads)
	g.Post("/questionnaires", h.Questionnaires)
	g.Post("/users", h.Users)
	g.Post("/admin", h.Admin)
	g.Get("/status", h.Status)

	app.Get("/api/admin/data/:key", authed, admin, h.AdminData)
}
