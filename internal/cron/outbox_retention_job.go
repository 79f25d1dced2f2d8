package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	outboxMinAttempts      = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqPurger interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure the outbox cleanup job. MinAttempts is
// the attempt count at which an unpublished row is considered dead. DLQ is
// optional; without it dead-letter rows are kept forever.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Repository   outboxPurger
	DLQ          dlqPurger
	Retention    time.Duration
	DLQRetention time.Duration
	MinAttempts  int
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	outbox       outboxPurger
	dlq          dlqPurger
	retention    time.Duration
	dlqRetention time.Duration
	minAttempts  int
	now          func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		outbox:       params.Repository,
		dlq:          params.DLQ,
		retention:    orDefault(params.Retention, defaultOutboxRetention),
		dlqRetention: orDefault(params.DLQRetention, defaultDLQRetention),
		minAttempts:  params.MinAttempts,
		now:          time.Now,
	}
	if job.minAttempts <= 0 {
		job.minAttempts = outboxMinAttempts
	}
	return job, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run purges both tables in one transaction so a failure leaves neither
// half-cleaned.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := now.Add(-j.retention)
	dlqCutoff := now.Add(-j.dlqRetention)

	var outboxRows, dlqRows int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if outboxRows, err = j.outbox.DeletePublishedBefore(ctx, tx, outboxCutoff, j.minAttempts); err != nil {
			return fmt.Errorf("purge outbox: %w", err)
		}
		if j.dlq == nil {
			return nil
		}
		if dlqRows, err = j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("purge dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":    outboxCutoff,
		"dlq_cutoff":       dlqCutoff,
		"min_attempts":     j.minAttempts,
		"outbox_rows":      outboxRows,
		"dead_letter_rows": dlqRows,
	}), "outbox retention cleanup complete")
	return nil
}
