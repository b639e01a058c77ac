package referrals

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/activityhub-backend/internal/repo"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists establishment referral links.
type Repository struct {
	base repo.Base
}

// NewRepository constructs a referral link repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// WithTx binds the repository to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.WithTx(tx)}
}

// Create inserts a new link row.
func (r *Repository) Create(ctx context.Context, link *models.EstablishmentReferralLink) error {
	return r.base.DB(ctx).Create(link).Error
}

// FindByID loads a link regardless of expiry. Returns nil when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.EstablishmentReferralLink, error) {
	var link models.EstablishmentReferralLink
	err := r.base.DB(ctx).Where("id = ?", id).First(&link).Error
	return nullableLink(&link, err)
}

// FindActiveByUser returns the most recently created link for the user that has not expired at now.
func (r *Repository) FindActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.EstablishmentReferralLink, error) {
	var link models.EstablishmentReferralLink
	err := r.base.DB(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("created_at DESC").
		First(&link).Error
	return nullableLink(&link, err)
}

// FindActiveBySession returns the most recently created link for the visitor session that has not expired at now.
func (r *Repository) FindActiveBySession(ctx context.Context, sessionID string, now time.Time) (*models.EstablishmentReferralLink, error) {
	var link models.EstablishmentReferralLink
	err := r.base.DB(ctx).
		Where("session_id = ? AND expires_at > ?", sessionID, now).
		Order("created_at DESC").
		First(&link).Error
	return nullableLink(&link, err)
}

// DeleteExpiredBefore removes links whose expiry is older than cutoff and are not referenced
// by a commission record.
func (r *Repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.base.DB(ctx).
		Where("expires_at < ?", cutoff).
		Where("NOT EXISTS (SELECT 1 FROM establishment_commissions c WHERE c.referral_link_id = establishment_referral_links.id)").
		Delete(&models.EstablishmentReferralLink{})
	return res.RowsAffected, res.Error
}

func nullableLink(link *models.EstablishmentReferralLink, err error) (*models.EstablishmentReferralLink, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}
