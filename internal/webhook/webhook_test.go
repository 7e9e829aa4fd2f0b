package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"knot-backend/internal/config"
)

type captured struct {
	mu       sync.Mutex
	payloads []Payload
	headers  []http.Header
}

func newCRM(t *testing.T) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		c.mu.Lock()
		c.payloads = append(c.payloads, p)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestDispatcher_ConditionAndEventFilter(t *testing.T) {
	srv, got := newCRM(t)
	t.Setenv("CRM_TOKEN", "s3cret")

	d, err := NewDispatcher([]config.WebhookConfig{
		{
			Name:      "hot-leads",
			URL:       srv.URL,
			Events:    []string{"lead.created"},
			Condition: `record.leadScore >= 50`,
			Headers:   map[string]string{"Authorization": "Bearer {{env.CRM_TOKEN}}"},
		},
	}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())

	d.Notify("lead.created", map[string]any{"id": "l1", "leadScore": 80})
	d.Notify("lead.created", map[string]any{"id": "l2", "leadScore": 10})
	d.Notify("lead.deleted", map[string]any{"id": "l3", "leadScore": 90})
	d.Wait()

	require.Len(t, got.payloads, 1)
	assert.Equal(t, "lead.created", got.payloads[0].Event)
	assert.Equal(t, "l1", got.payloads[0].Record["id"])
	assert.Contains(t, got.payloads[0].IdempotencyKey, "wh_")
	assert.Equal(t, "Bearer s3cret", got.headers[0].Get("Authorization"))
}

func TestNewDispatcher_RejectsBadCondition(t *testing.T) {
	_, err := NewDispatcher([]config.WebhookConfig{{URL: "http://x", Condition: "record.("}}, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewDispatcher([]config.WebhookConfig{{Name: "no-url"}}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestDispatcher_RetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d, err := NewDispatcher([]config.WebhookConfig{{Name: "flaky", URL: srv.URL}}, nil, zap.NewNop())
	require.NoError(t, err)
	d.backoff = time.Millisecond

	d.Notify("lead.created", map[string]any{"id": "l1"})
	d.Wait()
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(-10)
	d.Notify("lead.created", map[string]any{"id": "l2"})
	d.Wait()
	assert.Equal(t, int32(-7), calls.Load(), "gives up after max attempts")
}

func TestDispatcher_CloseAbandonsPendingRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	d, err := NewDispatcher([]config.WebhookConfig{{Name: "down", URL: srv.URL, MaxAttempts: 5}}, nil, zap.NewNop())
	require.NoError(t, err)
	d.backoff = time.Hour

	d.Notify("lead.created", map[string]any{"id": "l1"})
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close waited on the retry backoff")
	}
	assert.Equal(t, int32(1), calls.Load())
	d.Close()
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	d.Notify("lead.created", nil)
	d.Wait()
	d.Close()
	assert.Equal(t, 0, d.Len())
}

func TestResolveHeaders(t *testing.T) {
	t.Setenv("A", "1")
	out := ResolveHeaders(map[string]string{"X": "{{env.A}}-{{env.A}}", "Y": "plain"})
	assert.Equal(t, "1-1", out["X"])
	assert.Equal(t, "plain", out["Y"])

	t.Setenv("LOOP", "{{env.LOOP}}")
	out = ResolveHeaders(map[string]string{"Z": "x-{{env.LOOP}}-{{env.A}}", "W": "{{env.A"})
	assert.Equal(t, "x-{{env.LOOP}}-1", out["Z"])
	assert.Equal(t, "{{env.A", out["W"])
}
