package bookings

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/internal/repo"
	"github.com/angelmondragon/activityhub-backend/pkg/db"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
)

const sessionLineConstraint = "ux_bookings_session_line"

// Repository stores bookings keyed by (checkout session, line index).
type Repository struct {
	base repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(conn)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.WithTx(tx)}
}

// ExistsBySessionLine reports whether a booking was already created for the session line.
func (r *Repository) ExistsBySessionLine(ctx context.Context, sessionID string, lineIndex int) (bool, error) {
	var count int64
	err := r.base.DB(ctx).
		Model(&models.Booking{}).
		Where("stripe_session_id = ? AND line_index = ?", sessionID, lineIndex).
		Count(&count).Error
	return count > 0, err
}

// Insert creates the booking and returns false when another delivery already created the
// same session line. The insert runs in a savepoint so a conflict leaves the surrounding
// transaction usable.
func (r *Repository) Insert(ctx context.Context, booking *models.Booking) (bool, error) {
	err := r.base.DB(ctx).Transaction(func(inner *gorm.DB) error {
		return inner.Create(booking).Error
	})
	if err != nil {
		if db.IsUniqueViolation(err, sessionLineConstraint) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Repository) FindBySession(ctx context.Context, sessionID string) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.base.DB(ctx).
		Where("stripe_session_id = ?", sessionID).
		Order("line_index ASC").
		Find(&rows).Error
	return rows, err
}

