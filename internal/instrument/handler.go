package instrument

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"knot-backend/internal/api"
)

// EventQuerier is the read side of the events table. *pgxpool.Pool
// satisfies it.
type EventQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ EventQuerier = (*pgxpool.Pool)(nil)

// EventHandler exposes the admin events listing.
type EventHandler struct {
	db EventQuerier
}

// NewEventHandler creates an EventHandler. db may be nil when the events
// sink is disabled; List then answers 503.
func NewEventHandler(db EventQuerier) *EventHandler {
	return &EventHandler{db: db}
}

type eventFilter struct {
	conditions []string
	args       []any
}

func (f *eventFilter) add(column, op string, v any) {
	f.args = append(f.args, v)
	f.conditions = append(f.conditions, fmt.Sprintf("%s %s $%d", column, op, len(f.args)))
}

func (f *eventFilter) where() string {
	if len(f.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conditions, " AND ")
}

// List handles GET /api/admin/events.
func (h *EventHandler) List(c *fiber.Ctx) error {
	if h.db == nil {
		return api.NewAppError("EVENTS_DISABLED", fiber.StatusServiceUnavailable, "Event storage is not enabled")
	}
	ctx := c.UserContext()

	var f eventFilter
	for _, key := range []struct{ query, column string }{
		{"event_type", "event_type"},
		{"entity", "entity"},
		{"record_id", "record_id"},
		{"user_id", "user_id"},
		{"source", "source"},
	} {
		if v := c.Query(key.query); v != "" {
			f.add(key.column, "=", v)
		}
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return api.BadRequestError("from must be an RFC3339 timestamp")
		}
		f.add("created_at", ">=", t)
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return api.BadRequestError("to must be an RFC3339 timestamp")
		}
		f.add("created_at", "<=", t)
	}

	page, limit := api.PageParams(c, 50, 100)
	offset := (page - 1) * limit

	var total int64
	if err := h.db.QueryRow(ctx, "SELECT COUNT(*) FROM events"+f.where(), f.args...).Scan(&total); err != nil {
		return fmt.Errorf("count events: %w", err)
	}

	orderBy := "created_at DESC"
	if c.Query("sort") == "created_at" {
		orderBy = "created_at ASC"
	}

	args := append(append([]any{}, f.args...), limit, offset)
	sql := fmt.Sprintf(
		"SELECT event_type, entity, record_id, user_id, source, metadata, created_at FROM events%s ORDER BY %s LIMIT $%d OFFSET $%d",
		f.where(), orderBy, len(f.args)+1, len(f.args)+2)

	rows, err := h.db.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var meta []byte
		if err := rows.Scan(&e.Type, &e.Entity, &e.RecordID, &e.UserID, &e.Source, &meta, &e.CreatedAt); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Metadata)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate events: %w", err)
	}

	return c.JSON(fiber.Map{
		"data": events,
		"meta": fiber.Map{
			"page":     page,
			"per_page": limit,
			"total":    total,
		},
	})
}
