package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/pkg/enums"
)

// Booking is one paid reservation of an activity, created once per
// (checkout session, line index).
type Booking struct {
	ID                         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ActivityID                 uuid.UUID           `gorm:"column:activity_id;type:uuid;not null"`
	ScheduleID                 *uuid.UUID          `gorm:"column:schedule_id;type:uuid"`
	ProviderID                 *uuid.UUID          `gorm:"column:provider_id;type:uuid"`
	CustomerID                 *uuid.UUID          `gorm:"column:customer_id;type:uuid"`
	CustomerName               string              `gorm:"column:customer_name;not null"`
	CustomerEmail              string              `gorm:"column:customer_email;not null;index"`
	Participants               int                 `gorm:"column:participants;not null"`
	TotalAmount                decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency                   string              `gorm:"column:currency;not null"`
	Status                     enums.BookingStatus `gorm:"column:status;type:booking_status;not null"`
	BookingDate                time.Time           `gorm:"column:booking_date;not null"`
	PlatformFee                decimal.Decimal     `gorm:"column:platform_fee;type:numeric(12,2);not null;default:0"`
	ProviderAmount             decimal.Decimal     `gorm:"column:provider_amount;type:numeric(12,2);not null;default:0"`
	ReferralCommission         decimal.Decimal     `gorm:"column:referral_commission;type:numeric(12,2);not null;default:0"`
	EstablishmentID            *uuid.UUID          `gorm:"column:establishment_id;type:uuid"`
	CommissionInvoiceGenerated bool                `gorm:"column:commission_invoice_generated;not null;default:false"`
	StripeSessionID            string              `gorm:"column:stripe_session_id;not null;uniqueIndex:ux_bookings_session_line"`
	LineIndex                  int                 `gorm:"column:line_index;not null;default:0;uniqueIndex:ux_bookings_session_line"`
	CreatedAt                  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Booking) TableName() string { return "bookings" }

func (b *Booking) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
