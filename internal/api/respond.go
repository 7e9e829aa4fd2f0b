package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Pagination is the paging block returned by list endpoints.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func NewPagination(page, limit int, total int64) Pagination {
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// PageParams reads page/limit query params, clamping limit to [1, max].
func PageParams(c *fiber.Ctx, defaultLimit, max int) (page, limit int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.Query("limit", strconv.Itoa(defaultLimit)))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > max {
		limit = max
	}
	return page, limit
}

// IntQuery parses an integer query parameter, falling back to def and
// clamping to max when max > 0.
func IntQuery(c *fiber.Ctx, key string, def, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		v = def
	}
	if max > 0 && v > max {
		v = max
	}
	return v
}

func Data(c *fiber.Ctx, v any) error {
	return c.JSON(fiber.Map{"data": v})
}

func Created(c *fiber.Ctx, v any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": v})
}
