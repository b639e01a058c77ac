package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/activityhub-backend/pkg/enums"
)

// NotificationRequestedEvent asks the dispatcher to notify one audience about a settled booking.
// Contact details are loaded at delivery time so retries pick up corrected addresses.
type NotificationRequestedEvent struct {
	BookingID uuid.UUID                  `json:"booking_id"`
	Audience  enums.NotificationAudience `json:"audience"`
	Mode      enums.CheckoutMode         `json:"mode"`
}

// BookingSettledEvent is the integration event published once a booking carries its commission split.
type BookingSettledEvent struct {
	BookingID               uuid.UUID          `json:"booking_id"`
	ActivityID              uuid.UUID          `json:"activity_id"`
	ProviderID              *uuid.UUID         `json:"provider_id,omitempty"`
	EstablishmentID         *uuid.UUID         `json:"establishment_id,omitempty"`
	StripeSessionID         string             `json:"stripe_session_id"`
	LineIndex               int                `json:"line_index"`
	Mode                    enums.CheckoutMode `json:"mode"`
	Currency                string             `json:"currency"`
	TotalAmount             decimal.Decimal    `json:"total_amount"`
	PlatformFee             decimal.Decimal    `json:"platform_fee"`
	ProviderAmount          decimal.Decimal    `json:"provider_amount"`
	EstablishmentCommission decimal.Decimal    `json:"establishment_commission"`
	SettledAt               time.Time          `json:"settled_at"`
}
