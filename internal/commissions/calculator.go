package commissions

import (
	"github.com/angelmondragon/activityhub-backend/pkg/money"
	"github.com/shopspring/decimal"
)

var (
	// PlatformRate is the platform's gross share of every booking.
	PlatformRate = decimal.RequireFromString("0.20")
	// EstablishmentShare is the part of the platform fee passed on to a referring establishment.
	EstablishmentShare = decimal.RequireFromString("0.50")
	// NominalCommissionRate is the establishment commission expressed against the booking total.
	NominalCommissionRate = decimal.RequireFromString("0.10")
)

// Breakdown splits a booking total between provider, platform and referrer.
// ProviderAmount + PlatformFeeGross == Total and PlatformFeeGross == PlatformNet + EstablishmentCommission.
type Breakdown struct {
	Total                   decimal.Decimal
	PlatformFeeGross        decimal.Decimal
	PlatformNet             decimal.Decimal
	EstablishmentCommission decimal.Decimal
	ProviderAmount          decimal.Decimal
	HasActiveLink           bool
}

// Calculate is pure. Derived amounts come from subtraction so the invariants hold exactly at cent precision.
func Calculate(total decimal.Decimal, hasActiveLink bool) Breakdown {
	total = money.Round(total)
	gross := money.Percent(total, PlatformRate)

	establishment := decimal.Zero
	if hasActiveLink {
		establishment = money.Percent(gross, EstablishmentShare)
	}

	return Breakdown{
		Total:                   total,
		PlatformFeeGross:        gross,
		PlatformNet:             gross.Sub(establishment),
		EstablishmentCommission: establishment,
		ProviderAmount:          total.Sub(gross),
		HasActiveLink:           hasActiveLink,
	}
}
