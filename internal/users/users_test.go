package users

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
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
	"knot-backend/internal/email"
	"knot-backend/internal/matching"
	"knot-backend/internal/model"
	"knot-backend/internal/storage"
	"knot-backend/internal/store"
	"knot-backend/internal/store/memory"
)

const testSecret = "test-secret"

func profile(city string) matching.Profile {
	return matching.Profile{
		Age:       28,
		Location:  matching.Location{City: city, State: "Maharashtra"},
		Education: "Masters",
		Religion:  "Hindu",
		Values: matching.Values{
			FamilyImportance: 8, CareerAmbition: 7, ReligiousValues: 5,
			TraditionalValues: 6, SocialLife: 6,
		},
		Lifestyle: matching.Lifestyle{
			SmokingHabits: "never", DrinkingHabits: "socially",
			ExerciseFrequency: 3, DietPreference: "vegetarian",
		},
		PersonalityTraits: matching.PersonalityTraits{
			Extroversion: 6, Openness: 7, Agreeableness: 8,
			Conscientiousness: 7, EmotionalStability: 7,
		},
		RelationshipGoals: matching.RelationshipGoals{
			TimelineToMarriage: matching.TimelineOneToTwo, ChildrenDesired: true, NumberOfChildren: 2,
		},
		Preferences: matching.Preferences{AgeRange: matching.AgeRange{Min: 24, Max: 32}},
	}
}

type fixture struct {
	svc    *Service
	repos  *store.Repositories
	sender *email.MemorySender
	files  *storage.LocalStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := memory.New()
	sender := &email.MemorySender{}
	mailer, err := email.NewMailer(sender, "https://knot.test", "support@knot.test", nil, zap.NewNop())
	require.NoError(t, err)
	files := storage.NewLocalStorage(t.TempDir(), "/uploads")
	svc := NewService(repos.Users, files, mailer, nil, Options{TrialDays: 7, NotifyThreshold: 90}, zap.NewNop())
	return &fixture{svc: svc, repos: repos, sender: sender, files: files}
}

func (f *fixture) user(t *testing.T, name string, p *matching.Profile) *model.User {
	t.Helper()
	u := &model.User{
		Name:          name,
		Email:         strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Active:        true,
		Roles:         []string{model.RoleUser},
		Compatibility: p,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, f.repos.Users.Create(context.Background(), u))
	return u
}

func ptr[T any](v T) *T { return &v }

func TestService_UpdateProfileRecomputesCompleteness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "Asha Rao", nil)

	updated, err := f.svc.UpdateProfile(ctx, u.ID, ProfileUpdate{
		Age:        ptr(29),
		Location:   ptr(" Pune "),
		Education:  ptr("Masters"),
		Profession: ptr("Architect"),
		Interests:  ptr([]string{"travel", " Travel ", "", "music"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "Pune", updated.Location)
	assert.Equal(t, []string{"travel", "music"}, updated.Interests)
	assert.False(t, updated.ProfileComplete)

	updated, err = f.svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Bio: ptr("Loves long walks")})
	require.NoError(t, err)
	assert.True(t, updated.ProfileComplete)
}

func TestService_UpdateProfileValidates(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "Asha Rao", nil)

	_, err := f.svc.UpdateProfile(context.Background(), u.ID, ProfileUpdate{
		Age:                ptr(12),
		CommunicationStyle: ptr("pigeon"),
	})
	var appErr *api.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 422, appErr.Status)
	assert.Len(t, appErr.Details, 2)
}

func TestService_SetCompatibilityValidatesScales(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "Asha Rao", nil)

	bad := profile("Pune")
	bad.Values.SocialLife = 11
	bad.Lifestyle.DietPreference = "carnivore"
	_, err := f.svc.SetCompatibility(context.Background(), u.ID, bad)
	var appErr *api.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Len(t, appErr.Details, 2)

	saved, err := f.svc.SetCompatibility(context.Background(), u.ID, profile("Pune"))
	require.NoError(t, err)
	require.NotNil(t, saved.Compatibility)
	assert.Equal(t, 28, saved.Age)
}

func TestService_MatchesRanksAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	me := f.user(t, "Asha Rao", ptr(profile("Pune")))
	f.user(t, "Twin Match", ptr(profile("Pune")))
	far := profile("Delhi")
	far.Location.State = "Delhi"
	far.Age = 40
	far.Lifestyle.SmokingHabits = "regularly"
	far.Values.FamilyImportance = 2
	far.Values.CareerAmbition = 1
	f.user(t, "Far Away", &far)
	f.user(t, "No Profile", nil)

	matches, err := f.svc.Matches(ctx, me.ID, 10, true)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "Twin Match", matches[0].User.Name)
	assert.GreaterOrEqual(t, matches[0].OverallScore, matches[1].OverallScore)
	for _, m := range matches {
		assert.NotEqual(t, me.ID, m.UserID)
	}

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, me.Email, sent[0].To)
	assert.Contains(t, sent[0].HTML, "Twin Match")
}

func TestService_MatchesNeedProfile(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "Asha Rao", nil)
	_, err := f.svc.Matches(context.Background(), u.ID, 10, false)
	var appErr *api.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "PROFILE_INCOMPLETE", appErr.Code)
}

func TestService_StartTrialOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "Asha Rao", nil)

	got, err := f.svc.StartTrial(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionTrialing, got.Subscription.Status)
	require.NotNil(t, got.Subscription.TrialEndsAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), *got.Subscription.TrialEndsAt, time.Minute)

	_, err = f.svc.StartTrial(ctx, u.ID)
	var appErr *api.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 409, appErr.Status)
}

func TestService_PublicHidesInactive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "Asha Rao", nil)

	p, err := f.svc.Public(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", p.Name)

	u.Active = false
	require.NoError(t, f.repos.Users.Update(ctx, u))
	_, err = f.svc.Public(ctx, u.ID)
	assert.Error(t, err)
}

func newTestApp(f *fixture) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler(zap.NewNop())})
	RegisterRoutes(app, NewHandler(f.svc, 1024, 10, 50), auth.Middleware(testSecret), auth.RequireAdmin())
	return app
}

func bearer(t *testing.T, id string, roles ...string) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken(id, roles, testSecret)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestHandler_MeHidesPasswordHash(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	u := f.user(t, "Asha Rao", nil)
	u.PasswordHash = "$2a$10$secret"
	require.NoError(t, f.repos.Users.Update(context.Background(), u))

	req := httptest.NewRequest("GET", "/api/users/me", nil)
	req.Header.Set("Authorization", bearer(t, u.ID, model.RoleUser))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var raw map[string]map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, u.ID, raw["data"]["id"])
	assert.NotContains(t, raw["data"], "passwordHash")
}

func TestHandler_UploadPicture(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	u := f.user(t, "Asha Rao", nil)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "me.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("png"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/users/me/picture", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", bearer(t, u.ID, model.RoleUser))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)

	stored, err := f.repos.Users.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.ProfilePicture, "/uploads/pictures/"+u.ID+"/"))
}

func TestHandler_AdminUsersRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	f.user(t, "Asha Rao", nil)

	req := httptest.NewRequest("GET", "/api/admin/users", nil)
	req.Header.Set("Authorization", bearer(t, "u1", model.RoleUser))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/admin/users", nil)
	req.Header.Set("Authorization", bearer(t, "a1", model.RoleAdmin))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
