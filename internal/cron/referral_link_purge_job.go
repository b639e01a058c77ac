package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/activityhub-backend/pkg/logger"
)

const referralPurgeAfterDays = 30

type referralPurger interface {
	PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

type ReferralLinkPurgeJobParams struct {
	Logger    *logger.Logger
	Referrals referralPurger
	AfterDays int
}

func NewReferralLinkPurgeJob(params ReferralLinkPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Referrals == nil {
		return nil, fmt.Errorf("referral service required")
	}
	days := params.AfterDays
	if days <= 0 {
		days = referralPurgeAfterDays
	}
	return &referralLinkPurgeJob{logg: params.Logger, referrals: params.Referrals, afterDays: days}, nil
}

type referralLinkPurgeJob struct {
	logg      *logger.Logger
	referrals referralPurger
	afterDays int
}

func (j *referralLinkPurgeJob) Name() string { return "referral-link-purge" }

// Run removes links that expired more than afterDays ago. Links that back a recorded
// commission are kept by the tracker.
func (j *referralLinkPurgeJob) Run(ctx context.Context) error {
	deleted, err := j.referrals.PurgeExpired(ctx, time.Duration(j.afterDays)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("referral link purge: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"expired_for_days": j.afterDays,
		"rows_deleted":     deleted,
	}), "expired referral links purged")
	return nil
}
