package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/pkg/logger"
)

const (
	outboxRetentionDays = 30
	dlqRetentionDays    = 90
	outboxMinAttempts   = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEventPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBeforeTx(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure outbox cleanup. Retention and DLQ are in
// days. MinAttempts should match the dispatcher's max attempts so rows already
// copied to the DLQ are removed from the outbox as well. DeadLetters is optional.
type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Events      outboxEventPruner
	DeadLetters deadLetterPruner
	Retention   int
	DLQ         int
	MinAttempts int
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	events      outboxEventPruner
	deadLetters deadLetterPruner
	retention   int
	dlq         int
	minAttempts int
	now         func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Events == nil:
		return nil, errors.New("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		events:      params.Events,
		deadLetters: params.DeadLetters,
		retention:   positiveOr(params.Retention, outboxRetentionDays),
		dlq:         positiveOr(params.DLQ, dlqRetentionDays),
		minAttempts: positiveOr(params.MinAttempts, outboxMinAttempts),
		now:         time.Now,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes delivered or exhausted outbox rows, then old dead letters, in one
// transaction so a failure leaves both tables untouched.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	today := j.now().UTC()
	eventCutoff := today.AddDate(0, 0, -j.retention)
	dlqCutoff := today.AddDate(0, 0, -j.dlq)

	var eventsDeleted, dlqDeleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.events.DeletePublishedBefore(ctx, tx, eventCutoff, j.minAttempts)
		if err != nil {
			return err
		}
		eventsDeleted = n
		if j.deadLetters == nil {
			return nil
		}
		dlqDeleted, err = j.deadLetters.DeleteFailedBeforeTx(ctx, tx, dlqCutoff)
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	fields := map[string]any{
		"cutoff":       eventCutoff,
		"min_attempts": j.minAttempts,
		"rows_deleted": eventsDeleted,
	}
	if j.deadLetters != nil {
		fields["dlq_cutoff"] = dlqCutoff
		fields["dlq_rows_deleted"] = dlqDeleted
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}
