//go:build integration

package instrument

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"knot-backend/internal/config"
)

func TestEventBuffer_FlushToPostgres(t *testing.T) {
	cfg := config.EventsConfig{
		Host:     envOr("KNOT_TEST_PG_HOST", "localhost"),
		Port:     5432,
		User:     envOr("KNOT_TEST_PG_USER", "postgres"),
		Password: envOr("KNOT_TEST_PG_PASSWORD", "postgres"),
		Name:     envOr("KNOT_TEST_PG_DB", "knot_test"),
		PoolSize: 2,
	}
	ctx := context.Background()
	pool, err := Connect(ctx, cfg)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer pool.Close()

	marker := "it-" + time.Now().Format("150405.000000")
	eb := NewEventBuffer(pool, zap.NewNop(), 10, 60000)
	eb.Record(ctx, Event{Type: EventLeadCreated, RecordID: marker, Metadata: map[string]any{"score": 40}})
	eb.Stop()

	var n int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM events WHERE record_id = $1", marker).Scan(&n))
	assert.Equal(t, 1, n)

	_, err = pool.Exec(ctx, "DELETE FROM events WHERE record_id = $1", marker)
	require.NoError(t, err)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
