//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knot-backend/internal/config"
	"knot-backend/internal/model"
)

// testMongo connects to KNOT_TEST_MONGO_URI (default localhost) using a
// throwaway database that is dropped when the test finishes.
func testMongo(t *testing.T) *Mongo {
	t.Helper()
	uri := os.Getenv("KNOT_TEST_MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	ctx := context.Background()
	m, err := Connect(ctx, config.MongoConfig{
		URI:      uri,
		Database: "knot_test_" + NewID(),
		Timeout:  10 * time.Second,
	})
	if err != nil {
		t.Skipf("mongo not available: %v", err)
	}
	require.NoError(t, m.EnsureIndexes(ctx))
	t.Cleanup(func() {
		_ = m.DB.Drop(ctx)
		_ = m.Close(ctx)
	})
	return m
}

func TestMongoLeads_UniqueEmail(t *testing.T) {
	ctx := context.Background()
	repos := testMongo(t).Repositories()

	now := time.Now().UTC()
	require.NoError(t, repos.Leads.Create(ctx, &model.Lead{Email: "a@x.com", Status: "new", CreatedAt: now}))
	err := repos.Leads.Create(ctx, &model.Lead{Email: "a@x.com", Status: "new", CreatedAt: now})
	assert.ErrorIs(t, err, ErrDuplicate)

	// leads without a migrationId must not collide on the partial index
	require.NoError(t, repos.Leads.Create(ctx, &model.Lead{Email: "b@x.com", CreatedAt: now}))
}

func TestMongoLeads_SearchAndNotes(t *testing.T) {
	ctx := context.Background()
	repos := testMongo(t).Repositories()

	lead := &model.Lead{Name: "Asha Rao", Email: "asha@x.com", Phone: "9876543210", CreatedAt: time.Now().UTC()}
	require.NoError(t, repos.Leads.Create(ctx, lead))

	leads, total, err := repos.Leads.List(ctx, model.LeadFilter{Search: "asha", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, leads, 1)

	updated, err := repos.Leads.AddNote(ctx, lead.ID, model.LeadNote{Message: "called", AddedBy: "admin", AddedAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.Len(t, updated.Notes, 1)
}

func TestMongoAdminData_Upsert(t *testing.T) {
	ctx := context.Background()
	repos := testMongo(t).Repositories()

	_, created, err := repos.AdminData.Upsert(ctx, "k", map[string]any{"a": 1}, true)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = repos.AdminData.Upsert(ctx, "k", map[string]any{"a": 2}, true)
	require.NoError(t, err)
	assert.False(t, created)

	n, err := repos.AdminData.CountMigrated(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMongoConversations(t *testing.T) {
	ctx := context.Background()
	repos := testMongo(t).Repositories()

	c, err := repos.Conversations.GetOrCreate(ctx, "u2", "u1")
	require.NoError(t, err)
	again, err := repos.Conversations.GetOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)

	require.NoError(t, repos.Conversations.AddMessage(ctx, &model.Message{
		ConversationID: c.ID, SenderID: "u1", ReceiverID: "u2", Content: "hello", CreatedAt: time.Now().UTC(),
	}))
	n, err := repos.Conversations.UnreadCount(ctx, c.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
