package commissions

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/activityhub-backend/internal/repo"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists commission records, invoices, and the fee columns on bookings.
type Repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// WithTx binds the repository to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.WithTx(tx)}
}

// FindBooking loads a booking by id.
func (r *Repository) FindBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.base.DB(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListUnsettled returns confirmed bookings created before cutoff that have no invoice yet.
func (r *Repository) ListUnsettled(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.base.DB(ctx).
		Where("status = ? AND commission_invoice_generated = ? AND created_at < ?", enums.BookingStatusConfirmed, false, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ApplyBreakdown writes the split onto the booking and marks the invoice as generated.
func (r *Repository) ApplyBreakdown(ctx context.Context, booking *models.Booking, b Breakdown, establishmentID *uuid.UUID, now time.Time) error {
	updates := map[string]any{
		"provider_id":                  booking.ProviderID,
		"platform_fee":                 b.PlatformFeeGross,
		"provider_amount":              b.ProviderAmount,
		"referral_commission":          b.EstablishmentCommission,
		"establishment_id":             establishmentID,
		"commission_invoice_generated": true,
		"updated_at":                   now,
	}
	res := r.base.DB(ctx).Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	booking.PlatformFee = b.PlatformFeeGross
	booking.ProviderAmount = b.ProviderAmount
	booking.ReferralCommission = b.EstablishmentCommission
	booking.EstablishmentID = establishmentID
	booking.CommissionInvoiceGenerated = true
	booking.UpdatedAt = now
	return nil
}

// UpsertCommission inserts or refreshes the establishment commission for the booking.
func (r *Repository) UpsertCommission(ctx context.Context, row *models.EstablishmentCommission) error {
	return r.base.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "booking_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"establishment_id",
			"booking_amount",
			"commission_rate",
			"commission_amount",
			"referral_link_id",
			"updated_at",
		}),
	}).Create(row).Error
}

// UpsertInvoice inserts or refreshes the commission invoice for the booking. The invoice
// number and issue/due dates of an existing invoice are kept.
func (r *Repository) UpsertInvoice(ctx context.Context, row *models.CommissionInvoice) error {
	return r.base.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "booking_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_id",
			"total_booking_amount",
			"platform_commission_rate",
			"platform_commission_amount",
			"partner_commission_rate",
			"partner_commission_amount",
			"updated_at",
		}),
	}).Create(row).Error
}

// FindCommissionByBooking returns the commission record or nil.
func (r *Repository) FindCommissionByBooking(ctx context.Context, bookingID uuid.UUID) (*models.EstablishmentCommission, error) {
	var row models.EstablishmentCommission
	err := r.base.DB(ctx).Where("booking_id = ?", bookingID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindInvoiceByBooking returns the commission invoice or nil.
func (r *Repository) FindInvoiceByBooking(ctx context.Context, bookingID uuid.UUID) (*models.CommissionInvoice, error) {
	var row models.CommissionInvoice
	err := r.base.DB(ctx).Where("booking_id = ?", bookingID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
