package questionnaire

import (
	"github.com/gofiber/fiber/v2"

	"knot-backend/internal/api"
	"knot-backend/internal/auth"
	"knot-backend/internal/model"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Questions handles GET /api/questionnaire/questions.
func (h *Handler) Questions(c *fiber.Ctx) error {
	cat := h.svc.Catalog()
	return api.Data(c, fiber.Map{
		"questions":  cat.Questions(),
		"categories": cat.Categories(),
		"total":      cat.Len(),
	})
}

type saveRequest struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	LeadID         string         `json:"leadId"`
	UserName       string         `json:"userName"`
	UserEmail      string         `json:"userEmail"`
	UserPhone      string         `json:"userPhone"`
	UserType       string         `json:"userType"`
	Responses      map[string]any `json:"responses"`
	IsComplete     bool           `json:"isComplete"`
	Source         string         `json:"source"`
	CompletionTime float64        `json:"completionTime"`
}

// Save handles POST /api/questionnaire/responses. Signed-in callers always
// save against their own account.
func (h *Handler) Save(c *fiber.Ctx) error {
	var body saveRequest
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayload()
	}

	resp := &model.QuestionnaireResponse{
		ID:             body.ID,
		UserID:         body.UserID,
		LeadID:         body.LeadID,
		UserName:       body.UserName,
		UserEmail:      body.UserEmail,
		UserPhone:      body.UserPhone,
		UserType:       body.UserType,
		Responses:      body.Responses,
		IsComplete:     body.IsComplete,
		Source:         body.Source,
		CompletionTime: body.CompletionTime,
	}
	if user := auth.GetUser(c); user != nil {
		resp.UserID = user.ID
		if resp.LeadID == "" {
			resp.UserType = model.RespondentUser
		}
	}
	if resp.ID != "" {
		existing, err := h.svc.repo.Get(c.UserContext(), resp.ID)
		if err == nil && !owns(auth.GetUser(c), existing, resp) {
			return api.ForbiddenError("Cannot overwrite another respondent's answers")
		}
	}

	saved, err := h.svc.Save(c.UserContext(), resp)
	if err != nil {
		return err
	}
	return api.Created(c, saved)
}

// owns reports whether an update of existing is made by its respondent:
// the signed-in user, or the same lead for anonymous submissions.
func owns(user *auth.UserContext, existing, incoming *model.QuestionnaireResponse) bool {
	if user != nil {
		return user.IsAdmin() || existing.UserID == "" || existing.UserID == user.ID
	}
	return existing.UserID == "" && existing.LeadID == incoming.LeadID
}

// Mine handles GET /api/questionnaire/responses/me.
func (h *Handler) Mine(c *fiber.Ctx) error {
	resp, err := h.svc.ForUser(c.UserContext(), auth.GetUser(c).ID)
	if err != nil {
		return err
	}
	return api.Data(c, resp)
}

// Matches handles GET /api/questionnaire/matches.
func (h *Handler) Matches(c *fiber.Ctx) error {
	minScore := c.QueryInt("minScore", DefaultMinScore)
	limit := api.IntQuery(c, "limit", DefaultMatchLimit, 50)
	matches, err := h.svc.MatchesForUser(c.UserContext(), auth.GetUser(c).ID, minScore, limit)
	if err != nil {
		return err
	}
	return api.Data(c, matches)
}

// List handles GET /api/questionnaire/responses (admin).
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

// Get handles GET /api/questionnaire/responses/:id (admin).
func (h *Handler) Get(c *fiber.Ctx) error {
	resp, err := h.svc.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return api.Data(c, resp)
}

// Delete handles DELETE /api/questionnaire/responses/:id (admin).
func (h *Handler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.svc.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Questionnaire response deleted", "id": id})
}

// RegisterRoutes mounts the questionnaire endpoints. optional attaches the
// caller when a token is present; authed and admin guard the rest.
func RegisterRoutes(app *fiber.App, h *Handler, optional, authed, admin fiber.Handler) {
	g := app.Group("/api/questionnaire")
	g.Get("/questions", h.Questions)
	g.Post("/responses", optional, h.Save)
	g.Get("/responses/me", authed, h.Mine)
	g.Get("/matches", authed, h.Matches)
	g.Get("/responses", authed, admin, h.List)
	g.Get("/responses/:id", authed, admin, h.Get)
	g.Delete("/responses/:id", authed, admin, h.Delete)
}
