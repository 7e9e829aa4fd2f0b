package instrument

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// EventBuffer collects events in memory and periodically flushes them
// to the events table in a batch insert.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	pool    *pgxpool.Pool
	log     *zap.Logger
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
}

// NewEventBuffer creates a buffer that flushes on a timer or when full.
func NewEventBuffer(pool *pgxpool.Pool, log *zap.Logger, maxSize int, flushIntervalMs int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 200
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 1000
	}
	eb := &EventBuffer{
		pool:    pool,
		log:     log,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	eb.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush()
		}
	}
}

// Record adds an event to the buffer. If the buffer is full, a flush
// is triggered asynchronously.
func (eb *EventBuffer) Record(_ context.Context, event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	shouldFlush := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if shouldFlush {
		go eb.Flush()
	}
}

var eventColumns = []string{"event_type", "entity", "record_id", "user_id", "source", "metadata", "created_at"}

// buildInsert renders one multi-row INSERT for the batch.
func buildInsert(batch []Event) (string, []any) {
	placeholders := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*len(eventColumns))
	for i, e := range batch {
		offset := i * len(eventColumns)
		ph := make([]string, len(eventColumns))
		for j := range eventColumns {
			ph[j] = fmt.Sprintf("$%d", offset+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")

		var metaJSON any
		if e.Metadata != nil {
			b, _ := json.Marshal(e.Metadata)
			metaJSON = string(b)
		}
		args = append(args, e.Type, e.Entity, e.RecordID, e.UserID, e.Source, metaJSON, e.CreatedAt)
	}
	sql := fmt.Sprintf("INSERT INTO events (%s) VALUES %s", strings.Join(eventColumns, ","), strings.Join(placeholders, ","))
	return sql, args
}

// Flush writes all buffered events to the database in a single batch insert.
func (eb *EventBuffer) Flush() {
	eb.mu.Lock()
	if len(eb.events) == 0 {
		eb.mu.Unlock()
		return
	}
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := eb.pool.Begin(ctx)
	if err != nil {
		eb.log.Error("event buffer begin tx", zap.Error(err), zap.Int("dropped", len(batch)))
		return
	}

	if _, err := tx.Exec(ctx, "SET LOCAL synchronous_commit = off"); err != nil {
		_ = tx.Rollback(ctx)
		eb.log.Error("event buffer set sync commit", zap.Error(err))
		return
	}

	sql, args := buildInsert(batch)
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		_ = tx.Rollback(ctx)
		eb.log.Error("event buffer insert", zap.Error(err), zap.Int("dropped", len(batch)))
		return
	}

	if err := tx.Commit(ctx); err != nil {
		eb.log.Error("event buffer commit", zap.Error(err))
	}
}

// Stop halts the background ticker and flushes remaining events.
func (eb *EventBuffer) Stop() {
	if eb.ticker != nil {
		eb.ticker.Stop()
	}
	close(eb.done)
	eb.Flush()
}
