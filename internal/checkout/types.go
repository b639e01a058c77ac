package checkout

import (
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemRequest is one requested cart line. UnitPrice is the price the client displayed; when
// set it must match the catalog price, which is what gets charged.
type ItemRequest struct {
	ActivityID uuid.UUID
	ScheduleID *uuid.UUID
	Quantity   int
	UnitPrice  decimal.Decimal
}

// Request carries either Items (cart checkout) or the single-activity fields.
type Request struct {
	Items []ItemRequest

	ActivityID   *uuid.UUID
	ScheduleID   *uuid.UUID
	Participants int
	UnitPrice    decimal.Decimal

	Currency         string
	CustomerEmail    string
	CustomerName     string
	CustomerID       *uuid.UUID
	VisitorSessionID string
	// EstablishmentID is a client hint only; attribution comes from the referral tracker.
	EstablishmentID *uuid.UUID

	SuccessURL string
	CancelURL  string
}

// Session is the created hosted payment session.
type Session struct {
	ID          string
	URL         string
	Mode        enums.CheckoutMode
	TotalAmount decimal.Decimal
	Rounding    decimal.Decimal
	Currency    string
	Attribution AttributionSnapshot
}
