package catalog

import (
	"context"
	"errors"

	"github.com/angelmondragon/activityhub-backend/internal/repo"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const partnerStatusApproved = "approved"

// Repository reads the reference tables the settlement pipeline depends on.
type Repository struct {
	base repo.Base
}

// NewRepository constructs a catalog repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// WithTx binds the repository to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.WithTx(tx)}
}

// FindActivity loads an activity by id. Returns gorm.ErrRecordNotFound when absent.
func (r *Repository) FindActivity(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	var activity models.Activity
	if err := r.base.DB(ctx).Where("id = ?", id).First(&activity).Error; err != nil {
		return nil, err
	}
	return &activity, nil
}

// FindActivities loads every activity in ids keyed by id. Missing ids are simply absent.
func (r *Repository) FindActivities(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Activity, error) {
	out := make(map[uuid.UUID]models.Activity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Activity
	if err := r.base.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// FindOwner loads the activity owner (provider) by id.
func (r *Repository) FindOwner(ctx context.Context, id uuid.UUID) (*models.ActivityOwner, error) {
	var owner models.ActivityOwner
	if err := r.base.DB(ctx).Where("id = ?", id).First(&owner).Error; err != nil {
		return nil, err
	}
	return &owner, nil
}

// FindEstablishment loads an establishment by id.
func (r *Repository) FindEstablishment(ctx context.Context, id uuid.UUID) (*models.Establishment, error) {
	var establishment models.Establishment
	if err := r.base.DB(ctx).Where("id = ?", id).First(&establishment).Error; err != nil {
		return nil, err
	}
	return &establishment, nil
}

// FindPartnerContact returns the newest approved partner registration for the establishment,
// or nil when the establishment has none.
func (r *Repository) FindPartnerContact(ctx context.Context, establishmentID uuid.UUID) (*models.PartnerRegistration, error) {
	var registration models.PartnerRegistration
	err := r.base.DB(ctx).
		Where("establishment_id = ? AND status = ?", establishmentID, partnerStatusApproved).
		Order("created_at DESC").
		First(&registration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &registration, nil
}
