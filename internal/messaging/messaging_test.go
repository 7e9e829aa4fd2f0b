package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"knot-backend/internal/api"
	"knot-backend/internal/auth"
	"knot-backend/internal/instrument"
	"knot-backend/internal/model"
	"knot-backend/internal/store"
	"knot-backend/internal/store/memory"
)

const testSecret = "test-secret"

func setup(t *testing.T) (*Service, *store.Repositories, *instrument.MemoryRecorder, []*model.User) {
	t.Helper()
	repos := memory.New()
	rec := &instrument.MemoryRecorder{}
	var users []*model.User
	for _, name := range []string{"asha", "ravi", "meera"} {
		u := &model.User{Name: name, Email: name + "@example.com", Active: true}
		require.NoError(t, repos.Users.Create(context.Background(), u))
		users = append(users, u)
	}
	return NewService(repos, rec, zap.NewNop()), repos, rec, users
}

func appErr(t *testing.T, err error) *api.AppError {
	t.Helper()
	var ae *api.AppError
	require.True(t, errors.As(err, &ae), "expected AppError, got %v", err)
	return ae
}

func TestStart_IsIdempotentPerPair(t *testing.T) {
	ctx := context.Background()
	svc, _, _, u := setup(t)

	a, err := svc.Start(ctx, u[0].ID, u[1].ID)
	require.NoError(t, err)
	b, err := svc.Start(ctx, u[1].ID, u[0].ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, model.ConversationID(u[0].ID, u[1].ID), a.ID)
	assert.Equal(t, "ravi", a.With.Name)

	_, err = svc.Start(ctx, u[0].ID, u[0].ID)
	assert.Equal(t, 400, appErr(t, err).Status)
	_, err = svc.Start(ctx, u[0].ID, "ghost")
	assert.Equal(t, 404, appErr(t, err).Status)
}

func TestSend_ValidatesAndRestrictsToParticipants(t *testing.T) {
	ctx := context.Background()
	svc, _, rec, u := setup(t)
	conv, err := svc.Start(ctx, u[0].ID, u[1].ID)
	require.NoError(t, err)

	_, err = svc.Send(ctx, conv.ID, u[0].ID, "   ")
	assert.Equal(t, 422, appErr(t, err).Status)
	_, err = svc.Send(ctx, conv.ID, u[0].ID, strings.Repeat("a", MaxMessageLength+1))
	assert.Equal(t, 422, appErr(t, err).Status)
	_, err = svc.Send(ctx, conv.ID, u[2].ID, "hello")
	assert.Equal(t, 403, appErr(t, err).Status)

	msg, err := svc.Send(ctx, conv.ID, u[0].ID, strings.Repeat("a", MaxMessageLength))
	require.NoError(t, err)
	assert.Equal(t, u[1].ID, msg.ReceiverID)
	assert.Equal(t, []string{instrument.EventMessageSent}, rec.Types())
}

func TestUnreadCountsAndMarkRead(t *testing.T) {
	ctx := context.Background()
	svc, _, _, u := setup(t)
	conv, err := svc.Start(ctx, u[0].ID, u[1].ID)
	require.NoError(t, err)

	base := time.Now()
	for i, text := range []string{"hi", "how are you?"} {
		svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		_, err := svc.Send(ctx, conv.ID, u[0].ID, text)
		require.NoError(t, err)
	}

	threads, err := svc.List(ctx, u[1].ID)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, int64(2), threads[0].UnreadCount)
	assert.Equal(t, "how are you?", threads[0].LastMessage)
	assert.Equal(t, "asha", threads[0].With.Name)

	msgs, err := svc.Messages(ctx, conv.ID, u[1].ID, DefaultHistory)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)

	n, err := svc.MarkRead(ctx, conv.ID, u[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	threads, err = svc.List(ctx, u[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), threads[0].UnreadCount)

	// The sender has nothing unread.
	threads, err = svc.List(ctx, u[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), threads[0].UnreadCount)
}

func TestHandler_SendAndList(t *testing.T) {
	svc, _, _, u := setup(t)
	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler(zap.NewNop())})
	RegisterRoutes(app, NewHandler(svc), auth.Middleware(testSecret))

	tok, err := auth.GenerateAccessToken(u[0].ID, []string{model.RoleUser}, testSecret)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/conversations", strings.NewReader(`{"userId":"`+u[1].ID+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	convID := model.ConversationID(u[0].ID, u[1].ID)
	req = httptest.NewRequest("POST", "/api/conversations/"+convID+"/messages", strings.NewReader(`{"content":"Namaste!"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/conversations/"+convID+"/messages", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	var body struct {
		Data []model.Message `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Namaste!", body.Data[0].Content)
}
