package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Activity is the bookable offering; OwnerID points at activity_owners.
type Activity struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID   uuid.UUID       `gorm:"column:owner_id;type:uuid;not null"`
	Title     string          `gorm:"column:title;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Currency  string          `gorm:"column:currency;not null"`
	Active    bool            `gorm:"column:active;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Activity) TableName() string { return "activities" }

func (a *Activity) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// ActivityOwner is the provider that runs activities and receives commission invoices.
type ActivityOwner struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID       *uuid.UUID `gorm:"column:user_id;type:uuid"`
	BusinessName string     `gorm:"column:business_name;not null"`
	ContactName  string     `gorm:"column:contact_name"`
	Email        string     `gorm:"column:email;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (ActivityOwner) TableName() string { return "activity_owners" }

func (o *ActivityOwner) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

type Establishment struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Email     string    `gorm:"column:email"`
	Active    bool      `gorm:"column:active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Establishment) TableName() string { return "establishments" }

func (e *Establishment) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// PartnerRegistration holds the contact that receives commission notices for an establishment.
type PartnerRegistration struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	EstablishmentID uuid.UUID `gorm:"column:establishment_id;type:uuid;not null;index"`
	ContactName     string    `gorm:"column:contact_name"`
	ContactEmail    string    `gorm:"column:contact_email;not null"`
	Status          string    `gorm:"column:status;not null;default:approved"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (PartnerRegistration) TableName() string { return "partner_registrations" }

func (p *PartnerRegistration) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
