package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knot-backend/internal/model"
	"knot-backend/internal/store"
)

var (
	_ store.LeadRepository          = (*Leads)(nil)
	_ store.QuestionnaireRepository = (*Questionnaires)(nil)
	_ store.UserRepository          = (*Users)(nil)
	_ store.AdminDataRepository     = (*AdminData)(nil)
	_ store.ConversationRepository  = (*Conversations)(nil)
	_ store.ContactRepository       = (*Contacts)(nil)
	_ store.TokenRepository         = (*Tokens)(nil)
)

func TestLeads_DuplicateEmailAndMigrationID(t *testing.T) {
	ctx := context.Background()
	r := NewLeads()

	require.NoError(t, r.Create(ctx, &model.Lead{Email: "a@x.com", MigrationID: "m1"}))
	assert.ErrorIs(t, r.Create(ctx, &model.Lead{Email: "a@x.com"}), store.ErrDuplicate)
	assert.ErrorIs(t, r.Create(ctx, &model.Lead{Email: "b@x.com", MigrationID: "m1"}), store.ErrDuplicate)
	require.NoError(t, r.Create(ctx, &model.Lead{Email: "c@x.com"}))

	found, err := r.FindByEmailOrMigrationID(ctx, "zzz@x.com", "m1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", found.Email)
}

func TestLeads_ListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	r := NewLeads()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"Asha Rao", "Vikram Shah", "Meera Iyer", "Rahul Rao"} {
		require.NoError(t, r.Create(ctx, &model.Lead{
			Name:      name,
			Email:     string(rune('a'+i)) + "@x.com",
			Status:    model.LeadStatusNew,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	leads, total, err := r.List(ctx, model.LeadFilter{Search: "RAO", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "Rahul Rao", leads[0].Name)

	leads, total, err = r.List(ctx, model.LeadFilter{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, leads, 1)
	assert.Equal(t, "Asha Rao", leads[0].Name)
}

func TestLeads_FollowUpsRearm(t *testing.T) {
	ctx := context.Background()
	r := NewLeads()
	past := time.Now().Add(-time.Hour)
	lead := &model.Lead{Email: "f@x.com", IsActive: true, FollowUpDate: &past}
	require.NoError(t, r.Create(ctx, lead))

	due, err := r.DueFollowUps(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, r.MarkFollowUpNotified(ctx, lead.ID, time.Now()))
	due, _ = r.DueFollowUps(ctx, time.Now(), 10)
	assert.Empty(t, due)

	next := time.Now().Add(-time.Minute)
	_, err = r.Update(ctx, lead.ID, model.LeadUpdate{FollowUpDate: &next})
	require.NoError(t, err)
	due, _ = r.DueFollowUps(ctx, time.Now(), 10)
	assert.Len(t, due, 1)
}

func TestAdminData_UpsertByKey(t *testing.T) {
	ctx := context.Background()
	r := NewAdminData()

	_, created, err := r.Upsert(ctx, "makemyknot_admin_stats", map[string]any{"v": 1}, true)
	require.NoError(t, err)
	assert.True(t, created)

	rec, created, err := r.Upsert(ctx, "makemyknot_admin_stats", map[string]any{"v": 2}, true)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, map[string]any{"v": 2}, rec.Data)

	n, _ := r.CountMigrated(ctx)
	assert.Equal(t, int64(1), n)
}

func TestConversations_PairIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewConversations()

	c1, err := r.GetOrCreate(ctx, "u2", "u1")
	require.NoError(t, err)
	c2, err := r.GetOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, []string{"u1", "u2"}, c1.Participants)

	now := time.Now()
	require.NoError(t, r.AddMessage(ctx, &model.Message{ConversationID: c1.ID, SenderID: "u1", ReceiverID: "u2", Content: "hi", CreatedAt: now}))
	require.NoError(t, r.AddMessage(ctx, &model.Message{ConversationID: c1.ID, SenderID: "u1", ReceiverID: "u2", Content: "there", CreatedAt: now.Add(time.Second)}))

	n, _ := r.UnreadCount(ctx, c1.ID, "u2")
	assert.Equal(t, int64(2), n)

	marked, _ := r.MarkRead(ctx, c1.ID, "u2")
	assert.Equal(t, int64(2), marked)

	conv, _ := r.Get(ctx, c1.ID)
	assert.Equal(t, "there", conv.LastMessage)
}

func TestTokens_ResetSingleUse(t *testing.T) {
	ctx := context.Background()
	r := NewTokens()
	require.NoError(t, r.SaveReset(ctx, &model.PasswordReset{TokenHash: "h", UserID: "u", ExpiresAt: time.Now().Add(time.Hour)}))

	require.NoError(t, r.MarkResetUsed(ctx, "h", time.Now()))
	assert.ErrorIs(t, r.MarkResetUsed(ctx, "h", time.Now()), store.ErrNotFound)
}
