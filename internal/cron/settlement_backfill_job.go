package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/activityhub-backend/internal/commissions"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
)

const (
	backfillMinAge    = 10 * time.Minute
	backfillBatchSize = 100
)

type unsettledLister interface {
	ListUnsettled(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
}

type resettler interface {
	Resettle(ctx context.Context, bookingID uuid.UUID) (*commissions.Settlement, error)
}

type SettlementBackfillJobParams struct {
	Logger    *logger.Logger
	Bookings  unsettledLister
	Settler   resettler
	MinAge    time.Duration
	BatchSize int
}

func NewSettlementBackfillJob(params SettlementBackfillJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking lister required")
	}
	if params.Settler == nil {
		return nil, fmt.Errorf("commission service required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = backfillMinAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = backfillBatchSize
	}
	return &settlementBackfillJob{
		logg:      params.Logger,
		bookings:  params.Bookings,
		settler:   params.Settler,
		minAge:    minAge,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

type settlementBackfillJob struct {
	logg      *logger.Logger
	bookings  unsettledLister
	settler   resettler
	minAge    time.Duration
	batchSize int
	now       func() time.Time
}

func (j *settlementBackfillJob) Name() string { return "settlement-backfill" }

// Run re-settles confirmed bookings whose commission invoice was never generated.
// Every booking in the batch is attempted; failures are reported together.
func (j *settlementBackfillJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.minAge)
	rows, err := j.bookings.ListUnsettled(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list unsettled bookings: %w", err)
	}

	var errs error
	settled := 0
	for _, booking := range rows {
		if _, err := j.settler.Resettle(ctx, booking.ID); err != nil {
			j.logg.Error(j.logg.WithBookingID(ctx, booking.ID.String()), "backfill settlement failed", err)
			errs = multierr.Append(errs, fmt.Errorf("booking %s: %w", booking.ID, err))
			continue
		}
		settled++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(rows),
		"settled":    settled,
	}), "settlement backfill complete")
	return errs
}
