package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"knot-backend/internal/instrument"
)

func newTestMailer(t *testing.T, sender Sender, metrics *instrument.Metrics) *Mailer {
	t.Helper()
	m, err := NewMailer(sender, "https://knot.test", "support@knot.test", metrics, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestMailer_RendersEveryTemplate(t *testing.T) {
	ctx := context.Background()
	sender := &MemorySender{}
	m := newTestMailer(t, sender, nil)

	require.NoError(t, m.Welcome(ctx, "a@x.com", "Asha"))
	require.NoError(t, m.MatchNotification(ctx, "a@x.com", "Asha", "Ravi", 92))
	require.NoError(t, m.PasswordReset(ctx, "a@x.com", "abc123"))
	require.NoError(t, m.SubscriptionConfirmation(ctx, "a@x.com", "Asha", "Premium", "₹1,999", "month", []string{"Unlimited matches"}))
	require.NoError(t, m.ContactAcknowledgement(ctx, "a@x.com", "Asha", "Billing", "email", "sub-1"))
	require.NoError(t, m.FollowUpReminder(ctx, "admin@x.com", FollowUpLead{ID: "l1", Name: "Neha", Due: time.Now()}))

	sent := sender.Sent()
	require.Len(t, sent, 6)
	assert.Equal(t, templateNames, sender.Templates())

	assert.Contains(t, sent[0].HTML, "Hi Asha")
	assert.Contains(t, sent[0].HTML, "https://knot.test/dashboard")
	assert.Equal(t, "New 92% Compatible Match Found!", sent[1].Subject)
	assert.Contains(t, sent[1].HTML, "<strong>Ravi</strong>")
	assert.Contains(t, sent[2].HTML, "reset-password?token=abc123")
	assert.Contains(t, sent[2].HTML, "1 hour")
	assert.Contains(t, sent[3].HTML, "₹1,999/month")
	assert.Contains(t, sent[5].HTML, "/admin/leads/l1")
	for _, msg := range sent {
		assert.Contains(t, msg.HTML, "support@knot.test")
	}
}

func TestMailer_EscapesUserInput(t *testing.T) {
	sender := &MemorySender{}
	m := newTestMailer(t, sender, nil)

	require.NoError(t, m.Welcome(context.Background(), "a@x.com", "<script>alert(1)</script>"))
	assert.NotContains(t, sender.Sent()[0].HTML, "<script>")
}

func TestMailer_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := instrument.NewMetrics(reg)
	sender := &MemorySender{Err: errors.New("relay down")}
	m := newTestMailer(t, sender, metrics)

	err := m.Welcome(context.Background(), "a@x.com", "Asha")
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "knot_emails_sent_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
