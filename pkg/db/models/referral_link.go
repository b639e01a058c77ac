package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EstablishmentReferralLink attributes a user or anonymous visitor session to a
// referring establishment until ExpiresAt.
type EstablishmentReferralLink struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	EstablishmentID uuid.UUID      `gorm:"column:establishment_id;type:uuid;not null"`
	UserID          *uuid.UUID     `gorm:"column:user_id;type:uuid;index"`
	SessionID       *string        `gorm:"column:session_id;index"`
	Metadata        datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	CreatedAt       time.Time      `gorm:"column:created_at;not null"`
	ExpiresAt       time.Time      `gorm:"column:expires_at;not null"`
}

func (EstablishmentReferralLink) TableName() string { return "establishment_referral_links" }

func (l *EstablishmentReferralLink) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// ActiveAt reports whether the link is still inside its attribution window.
func (l EstablishmentReferralLink) ActiveAt(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}
