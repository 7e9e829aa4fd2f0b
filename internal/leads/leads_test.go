package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"knot-backend/internal/api"
	"knot-backend/internal/auth"
	"knot-backend/internal/config"
	"knot-backend/internal/email"
	"knot-backend/internal/instrument"
	"knot-backend/internal/model"
	"knot-backend/internal/questionnaire"
	"knot-backend/internal/storage"
	"knot-backend/internal/store"
	"knot-backend/internal/store/memory"
)

const testSecret = "test-secret"

type stubNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *stubNotifier) Notify(event string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

type fixture struct {
	svc    *Service
	repos  *store.Repositories
	rec    *instrument.MemoryRecorder
	notify *stubNotifier
	files  *storage.LocalStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := memory.New()
	rec := &instrument.MemoryRecorder{}
	scorer, err := NewScorer(config.DefaultLeadRules())
	require.NoError(t, err)
	files := storage.NewLocalStorage(t.TempDir(), "/uploads")
	notify := &stubNotifier{}
	qs := questionnaire.NewService(repos, questionnaire.MustDefault(), rec, nil, zap.NewNop())

	svc := NewService(repos.Leads, Deps{
		Scorer:   scorer,
		Files:    files,
		Matches:  qs,
		Notifier: notify,
		Events:   rec,
	}, zap.NewNop())
	return &fixture{svc: svc, repos: repos, rec: rec, notify: notify, files: files}
}

func validInput() CreateInput {
	return CreateInput{
		Name:  "Priya Shah",
		Email: " Priya@Example.com ",
		Phone: "98765 43210",
		Answers: map[string]any{
			"age": "25-30", "city": "Pune", "education": "Masters",
			"profession": "Engineer", "relationship_type": "Marriage",
		},
		Source: "referral",
	}
}

func TestScorer_DefaultRules(t *testing.T) {
	s, err := NewScorer(config.DefaultLeadRules())
	require.NoError(t, err)

	score, results := s.Score(&model.Lead{Phone: "9876543210", Source: "website"})
	assert.Equal(t, 15, score)
	assert.Len(t, results, 5)

	full := &model.Lead{
		Phone:      "9876543210",
		Source:     "referral",
		BiodataKey: "biodata/x/y.pdf",
		Answers: map[string]any{
			"a": 1, "b": 2, "c": 3, "d": 4, "relationship_type": "Marriage",
		},
	}
	score, _ = s.Score(full)
	assert.Equal(t, 100, score)
}

func TestScorer_ClampsAndSurvivesRuntimeErrors(t *testing.T) {
	s, err := NewScorer([]config.LeadRuleConfig{
		{Name: "big", Expression: `true`, Points: 80},
		{Name: "bigger", Expression: `true`, Points: 80},
		{Name: "broken", Expression: `answers.missing.deeper == 1`, Points: 10},
	})
	require.NoError(t, err)
	score, results := s.Score(&model.Lead{})
	assert.Equal(t, 100, score)
	assert.False(t, results[2].Matched)

	_, err = NewScorer([]config.LeadRuleConfig{{Name: "bad", Expression: `phone ==`}})
	assert.Error(t, err)
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	lead, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, "priya@example.com", lead.Email)
	assert.Equal(t, model.LeadStatusNew, lead.Status)
	assert.Equal(t, "referral", lead.Source)
	assert.True(t, lead.IsActive)
	assert.Equal(t, 85, lead.LeadScore)
	assert.Equal(t, []string{instrument.EventLeadCreated}, f.rec.Types())
	assert.Equal(t, []string{instrument.EventLeadCreated}, f.notify.events)
}

func TestService_CreateDefaultsSource(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Source = ""
	lead, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultLeadSource, lead.Source)
}

func TestService_CreateRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.Email = "PRIYA@example.com"
	_, err = f.svc.Create(context.Background(), in)
	var appErr *api.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 409, appErr.Status)
	assert.Equal(t, "Lead with this email already exists", appErr.Message)
}

func TestService_CreateValidates(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateInput{Name: "P", Email: "nope", Phone: "123"})
	var appErr *api.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 422, appErr.Status)
	fields := map[string]bool{}
	for _, d := range appErr.Details {
		fields[d.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["email"])
	assert.True(t, fields["phone"])
}

func TestService_UpdateVerifyAndNotes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lead, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)

	bad := "archived"
	_, err = f.svc.Update(ctx, lead.ID, model.LeadUpdate{Status: &bad})
	assert.Error(t, err)

	verified, err := f.svc.Verify(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusVerified, verified.Status)

	noted, err := f.svc.AddNote(ctx, lead.ID, "  Called, will revert  ", "admin-1")
	require.NoError(t, err)
	require.Len(t, noted.Notes, 1)
	assert.Equal(t, "Called, will revert", noted.Notes[0].Message)
	assert.Equal(t, "admin-1", noted.Notes[0].AddedBy)

	_, err = f.svc.AddNote(ctx, lead.ID, " ", "admin-1")
	assert.Error(t, err)

	_, err = f.svc.Verify(ctx, "missing")
	var appErr *api.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 404, appErr.Status)
}

func TestService_BiodataRescoresAndReplaces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lead, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = f.svc.AttachBiodata(ctx, lead.ID, "run.exe", strings.NewReader("x"))
	assert.Error(t, err)

	first, err := f.svc.AttachBiodata(ctx, lead.ID, "biodata.pdf", strings.NewReader("v1"))
	require.NoError(t, err)
	assert.Equal(t, 100, first.LeadScore)
	assert.True(t, strings.HasPrefix(first.BiodataKey, "biodata/"+lead.ID+"/"))

	second, err := f.svc.AttachBiodata(ctx, lead.ID, "biodata.docx", strings.NewReader("v2"))
	require.NoError(t, err)
	_, err = f.files.Open(ctx, first.BiodataKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rc, ct, err := f.svc.OpenBiodata(ctx, lead.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "v2", string(data))
	assert.Contains(t, ct, "wordprocessingml")
	assert.NotEqual(t, first.BiodataKey, second.BiodataKey)
}

func TestService_DeleteRemovesBiodata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lead, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)
	withFile, err := f.svc.AttachBiodata(ctx, lead.ID, "b.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, lead.ID))
	_, err = f.files.Open(ctx, withFile.BiodataKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.repos.Leads.Get(ctx, lead.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, f.notify.events, instrument.EventLeadDeleted)
}

func TestFollowUpScheduler_RunOnce(t *testing.T) {
	ctx := context.Background()
	repos := memory.New()
	sender := &email.MemorySender{}
	mailer, err := email.NewMailer(sender, "https://knot.test", "support@knot.test", nil, zap.NewNop())
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	require.NoError(t, repos.Leads.Create(ctx, &model.Lead{ID: "due", Name: "Due Lead", Email: "due@x.com", IsActive: true, FollowUpDate: &past, AssignedTo: "agent@knot.test"}))
	require.NoError(t, repos.Leads.Create(ctx, &model.Lead{ID: "due2", Name: "Unassigned", Email: "due2@x.com", IsActive: true, FollowUpDate: &past}))
	require.NoError(t, repos.Leads.Create(ctx, &model.Lead{ID: "later", Name: "Later", Email: "later@x.com", IsActive: true, FollowUpDate: &future}))

	s := NewFollowUpScheduler(repos.Leads, mailer, "admin@knot.test", time.Minute, 10, zap.NewNop())
	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recipients := []string{}
	for _, m := range sender.Sent() {
		recipients = append(recipients, m.To)
	}
	assert.ElementsMatch(t, []string{"agent@knot.test", "admin@knot.test"}, recipients)

	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

type flakyReminders struct {
	sent []string
}

func (f *flakyReminders) FollowUpReminder(_ context.Context, _ string, lead email.FollowUpLead) error {
	if strings.HasPrefix(lead.ID, "bad") {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, lead.ID)
	return nil
}

func TestFollowUpScheduler_FailedSendsBackOff(t *testing.T) {
	ctx := context.Background()
	repos := memory.New()
	reminders := &flakyReminders{}

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	oldest, older, recent := now.Add(-3*time.Hour), now.Add(-2*time.Hour), now.Add(-time.Hour)
	require.NoError(t, repos.Leads.Create(ctx, &model.Lead{ID: "bad1", Name: "Bad One", Email: "bad1@x.com", IsActive: true, FollowUpDate: &oldest}))
	require.NoError(t, repos.Leads.Create(ctx, &model.Lead{ID: "bad2", Name: "Bad Two", Email: "bad2@x.com", IsActive: true, FollowUpDate: &older}))
	require.NoError(t, repos.Leads.Create(ctx, &model.Lead{ID: "good", Name: "Good", Email: "good@x.com", IsActive: true, FollowUpDate: &recent}))

	// Batch of two: the failing leads fill the first run.
	s := NewFollowUpScheduler(repos.Leads, reminders, "admin@knot.test", time.Minute, 2, zap.NewNop())
	s.now = func() time.Time { return now }
	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"good"}, reminders.sent)

	bad, err := repos.Leads.Get(ctx, "bad1")
	require.NoError(t, err)
	assert.Equal(t, 1, bad.FollowUpAttempts)
	require.NotNil(t, bad.FollowUpRetryAt)
	assert.Equal(t, now.Add(time.Minute), *bad.FollowUpRetryAt)

	// Once the retry time passes they are due again, with a doubled delay.
	now = now.Add(time.Minute)
	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	bad, err = repos.Leads.Get(ctx, "bad1")
	require.NoError(t, err)
	assert.Equal(t, 2, bad.FollowUpAttempts)
	assert.Equal(t, now.Add(2*time.Minute), *bad.FollowUpRetryAt)

	// A new follow-up date re-arms the reminder.
	next := now.Add(-time.Second)
	_, err = repos.Leads.Update(ctx, "bad1", model.LeadUpdate{FollowUpDate: &next})
	require.NoError(t, err)
	due, err := repos.Leads.DueFollowUps(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "bad1", due[0].ID)
	assert.Zero(t, due[0].FollowUpAttempts)

	assert.Equal(t, 24*time.Hour, s.backoff(30))
}

func newTestApp(f *fixture) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler(zap.NewNop())})
	RegisterRoutes(app, NewHandler(f.svc, 1024), auth.Middleware(testSecret), auth.RequireAdmin())
	return app
}

func adminBearer(t *testing.T) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken("admin-1", []string{model.RoleAdmin}, testSecret)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestHandler_CreateAndList(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)

	body, _ := json.Marshal(validInput())
	req := httptest.NewRequest("POST", "/api/leads", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)

	req = httptest.NewRequest("POST", "/api/leads", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/leads", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/leads?search=PRIYA&limit=500", nil)
	req.Header.Set("Authorization", adminBearer(t))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var list struct {
		Leads      []model.Lead   `json:"leads"`
		Pagination api.Pagination `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Leads, 1)
	assert.Equal(t, int64(1), list.Pagination.Total)
	assert.Equal(t, 100, list.Pagination.Limit)
}

func TestHandler_DeleteRequiresConfirm(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	lead, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	req := httptest.NewRequest("DELETE", "/api/leads/"+lead.ID, nil)
	req.Header.Set("Authorization", adminBearer(t))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	req = httptest.NewRequest("DELETE", "/api/leads/"+lead.ID+"?confirm=true", nil)
	req.Header.Set("Authorization", adminBearer(t))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func multipartFile(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandler_UploadBiodata(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	lead, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	body, ct := multipartFile(t, "biodata.pdf", "%PDF-1.4")
	req := httptest.NewRequest("POST", "/api/leads/"+lead.ID+"/biodata", body)
	req.Header.Set("Content-Type", ct)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)

	body, ct = multipartFile(t, "huge.pdf", strings.Repeat("x", 2048))
	req = httptest.NewRequest("POST", "/api/leads/"+lead.ID+"/biodata", body)
	req.Header.Set("Content-Type", ct)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 413, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/leads/"+lead.ID+"/biodata", nil)
	req.Header.Set("Authorization", adminBearer(t))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
}

func TestHandler_MatchesForLeadWithoutQuestionnaire(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)
	lead, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/leads/"+lead.ID+"/matches", nil)
	req.Header.Set("Authorization", adminBearer(t))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 0, body.Data.Total)
}
