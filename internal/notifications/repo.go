package notifications

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/internal/repo"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
)

// Repository reads the booking-side records a notification is composed from.
type Repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.WithTx(tx)}
}

func (r *Repository) FindBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.base.DB(ctx).First(&booking, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindInvoiceNumber returns the commission invoice number for the booking, or "" when none exists yet.
func (r *Repository) FindInvoiceNumber(ctx context.Context, bookingID uuid.UUID) (string, error) {
	var numbers []string
	err := r.base.DB(ctx).
		Model(&models.CommissionInvoice{}).
		Where("booking_id = ?", bookingID).
		Limit(1).
		Pluck("invoice_number", &numbers).Error
	if err != nil || len(numbers) == 0 {
		return "", err
	}
	return numbers[0], nil
}
