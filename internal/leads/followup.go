package leads

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"knot-backend/internal/email"
	"knot-backend/internal/store"
)

// ReminderSender delivers follow-up reminders.
type ReminderSender interface {
	FollowUpReminder(ctx context.Context, to string, lead email.FollowUpLead) error
}

// FollowUpScheduler mails a reminder for every lead whose follow-up date
// has passed, once per date.
type FollowUpScheduler struct {
	repo       store.LeadRepository
	mailer     ReminderSender
	adminEmail string
	interval   time.Duration
	batch      int
	log        *zap.Logger
	now        func() time.Time

	ticker *time.Ticker
	done   chan struct{}
}

func NewFollowUpScheduler(repo store.LeadRepository, mailer ReminderSender, adminEmail string, interval time.Duration, batch int, log *zap.Logger) *FollowUpScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	return &FollowUpScheduler{
		repo:       repo,
		mailer:     mailer,
		adminEmail: adminEmail,
		interval:   interval,
		batch:      batch,
		log:        log,
		now:        time.Now,
	}
}

// Start begins the background ticker.
func (s *FollowUpScheduler) Start() {
	s.done = make(chan struct{})
	s.ticker = time.NewTicker(s.interval)
	go s.run()
	s.log.Info("follow-up scheduler started", zap.Duration("interval", s.interval))
}

// Stop halts the ticker.
func (s *FollowUpScheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.done != nil {
		close(s.done)
	}
}

func (s *FollowUpScheduler) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if _, err := s.RunOnce(ctx); err != nil {
				s.log.Error("follow-up run", zap.Error(err))
			}
			cancel()
		}
	}
}

// maxFollowUpBackoff caps the delay after repeated failed reminders.
const maxFollowUpBackoff = 24 * time.Hour

// RunOnce sends reminders for one batch of due leads and returns how many
// were sent. A failed send pushes the lead back by interval x 2^(attempts-1)
// so it cannot hold the head of the batch.
func (s *FollowUpScheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.repo.DueFollowUps(ctx, now, s.batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, lead := range due {
		to := lead.AssignedTo
		if !strings.Contains(to, "@") {
			to = s.adminEmail
		}
		err := s.mailer.FollowUpReminder(ctx, to, email.FollowUpLead{
			ID:     lead.ID,
			Name:   lead.Name,
			Email:  lead.Email,
			Phone:  lead.Phone,
			Status: lead.Status,
			Score:  lead.LeadScore,
			Due:    *lead.FollowUpDate,
		})
		if err != nil {
			attempts := lead.FollowUpAttempts + 1
			retryAt := now.Add(s.backoff(attempts))
			s.log.Warn("follow-up reminder", zap.String("lead_id", lead.ID),
				zap.Int("attempts", attempts), zap.Time("retry_at", retryAt), zap.Error(err))
			if err := s.repo.DeferFollowUp(ctx, lead.ID, attempts, retryAt); err != nil {
				s.log.Error("defer follow-up", zap.String("lead_id", lead.ID), zap.Error(err))
			}
			continue
		}
		if err := s.repo.MarkFollowUpNotified(ctx, lead.ID, now); err != nil {
			s.log.Error("mark follow-up notified", zap.String("lead_id", lead.ID), zap.Error(err))
			continue
		}
		sent++
	}
	if sent > 0 {
		s.log.Info("follow-up reminders sent", zap.Int("count", sent))
	}
	return sent, nil
}

func (s *FollowUpScheduler) backoff(attempts int) time.Duration {
	d := s.interval
	for i := 1; i < attempts && d < maxFollowUpBackoff; i++ {
		d *= 2
	}
	return min(d, maxFollowUpBackoff)
}
