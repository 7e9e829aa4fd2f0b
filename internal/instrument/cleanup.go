package instrument

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// CleanupOldEvents deletes events older than retentionDays.
func CleanupOldEvents(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	tag, err := pool.Exec(ctx,
		"DELETE FROM events WHERE created_at < NOW() - make_interval(days => $1::int)", retentionDays)
	if err != nil {
		log.Error("event cleanup", zap.Error(err))
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		log.Info("event cleanup", zap.Int64("deleted", n))
	}
}

// RetentionJob runs CleanupOldEvents once a day until Stop is called.
type RetentionJob struct {
	pool          *pgxpool.Pool
	log           *zap.Logger
	retentionDays int
	ticker        *time.Ticker
	done          chan struct{}
}

func NewRetentionJob(pool *pgxpool.Pool, log *zap.Logger, retentionDays int) *RetentionJob {
	return &RetentionJob{pool: pool, log: log, retentionDays: retentionDays}
}

func (j *RetentionJob) Start() {
	j.done = make(chan struct{})
	j.ticker = time.NewTicker(24 * time.Hour)
	go func() {
		j.runOnce()
		for {
			select {
			case <-j.done:
				return
			case <-j.ticker.C:
				j.runOnce()
			}
		}
	}()
	j.log.Info("event retention job started", zap.Int("retention_days", j.retentionDays))
}

func (j *RetentionJob) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	CleanupOldEvents(ctx, j.pool, j.log, j.retentionDays)
}

func (j *RetentionJob) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	if j.done != nil {
		close(j.done)
	}
}
