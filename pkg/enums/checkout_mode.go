package enums

import "strings"

// CheckoutMode distinguishes single-activity sessions from cart sessions.
type CheckoutMode string

const (
	CheckoutModeSingle CheckoutMode = "single"
	CheckoutModeCart   CheckoutMode = "cart"
)

var validCheckoutModes = []CheckoutMode{
	CheckoutModeSingle,
	CheckoutModeCart,
}

func (m CheckoutMode) IsValid() bool { return member(validCheckoutModes, m) }

// ParseCheckoutMode accepts case-insensitive input.
func ParseCheckoutMode(value string) (CheckoutMode, error) {
	return parse("checkout mode", strings.ToLower(strings.TrimSpace(value)), validCheckoutModes)
}
