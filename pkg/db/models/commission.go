package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/pkg/enums"
)

// EstablishmentCommission is the amount owed to a referring establishment for one booking.
type EstablishmentCommission struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	EstablishmentID  uuid.UUID              `gorm:"column:establishment_id;type:uuid;not null"`
	BookingID        uuid.UUID              `gorm:"column:booking_id;type:uuid;not null;uniqueIndex:ux_establishment_commissions_booking"`
	ActivityID       uuid.UUID              `gorm:"column:activity_id;type:uuid;not null"`
	CustomerID       *uuid.UUID             `gorm:"column:customer_id;type:uuid"`
	BookingAmount    decimal.Decimal        `gorm:"column:booking_amount;type:numeric(12,2);not null"`
	CommissionRate   decimal.Decimal        `gorm:"column:commission_rate;type:numeric(5,4);not null"`
	CommissionAmount decimal.Decimal        `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	Status           enums.CommissionStatus `gorm:"column:status;type:commission_status;not null"`
	ReferralLinkID   *uuid.UUID             `gorm:"column:referral_link_id;type:uuid"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (EstablishmentCommission) TableName() string { return "establishment_commissions" }

func (c *EstablishmentCommission) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CommissionInvoice is the provider-facing audit record of what a settled booking owes.
type CommissionInvoice struct {
	ID                       uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	BookingID                uuid.UUID              `gorm:"column:booking_id;type:uuid;not null;uniqueIndex:ux_commission_invoices_booking"`
	ProviderID               uuid.UUID              `gorm:"column:provider_id;type:uuid;not null"`
	InvoiceNumber            string                 `gorm:"column:invoice_number;not null;uniqueIndex:ux_commission_invoices_number"`
	TotalBookingAmount       decimal.Decimal        `gorm:"column:total_booking_amount;type:numeric(12,2);not null"`
	PlatformCommissionRate   decimal.Decimal        `gorm:"column:platform_commission_rate;type:numeric(5,4);not null"`
	PlatformCommissionAmount decimal.Decimal        `gorm:"column:platform_commission_amount;type:numeric(12,2);not null"`
	PartnerCommissionRate    decimal.NullDecimal    `gorm:"column:partner_commission_rate;type:numeric(5,4)"`
	PartnerCommissionAmount  decimal.NullDecimal    `gorm:"column:partner_commission_amount;type:numeric(12,2)"`
	IssueDate                time.Time              `gorm:"column:issue_date;not null"`
	DueDate                  time.Time              `gorm:"column:due_date;not null"`
	Status                   enums.CommissionStatus `gorm:"column:status;type:commission_status;not null"`
	CreatedAt                time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (CommissionInvoice) TableName() string { return "commission_invoices" }

func (i *CommissionInvoice) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
