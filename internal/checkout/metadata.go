package checkout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stripe caps metadata values at 500 characters and a session at 50 keys.
const (
	metadataValueLimit = 500
	maxCartChunks      = 30
)

const (
	keyIsCart              = "isCartCheckout"
	keyCart                = "cart"
	keyCartChunks          = "cartChunks"
	keyCartChunkPrefix     = "cart_"
	keyActivityID          = "activityId"
	keyScheduleID          = "scheduleId"
	keyParticipants        = "participants"
	keyUnitPrice           = "unitPrice"
	keyCustomerID          = "customerId"
	keyCustomerName        = "customerName"
	keyCustomerEmail       = "customerEmail"
	keyVisitorSessionID    = "visitorSessionId"
	keyHasActiveLink       = "hasActiveEstablishmentLink"
	keyLinkedEstablishment = "linkedEstablishmentId"
	keyLinkID              = "establishmentLinkId"
)

// Metadata is the checkout snapshot carried on a Stripe session. It is either a
// CartCheckoutMetadata or a SingleCheckoutMetadata.
type Metadata interface {
	Mode() enums.CheckoutMode
	Customer() CustomerSnapshot
	Attribution() AttributionSnapshot
	isMetadata()
}

// CustomerSnapshot is the contact captured at checkout time.
type CustomerSnapshot struct {
	CustomerID       *uuid.UUID
	Name             string
	Email            string
	VisitorSessionID string
}

// AttributionSnapshot records the referral link that was active when the session was created.
type AttributionSnapshot struct {
	HasActiveLink   bool
	EstablishmentID *uuid.UUID
	LinkID          *uuid.UUID
}

// CartItem is one priced line of a cart checkout.
type CartItem struct {
	ActivityID uuid.UUID
	ScheduleID *uuid.UUID
	Quantity   int
	UnitPrice  decimal.Decimal
	ProviderID *uuid.UUID
	Title      string
}

// LineTotal is UnitPrice × Quantity rounded to cents.
func (i CartItem) LineTotal() decimal.Decimal {
	return money.Round(i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))))
}

type CartCheckoutMetadata struct {
	Items    []CartItem
	Contact  CustomerSnapshot
	Referral AttributionSnapshot
}

func (CartCheckoutMetadata) Mode() enums.CheckoutMode { return enums.CheckoutModeCart }
func (m CartCheckoutMetadata) Customer() CustomerSnapshot { return m.Contact }
func (m CartCheckoutMetadata) Attribution() AttributionSnapshot { return m.Referral }
func (CartCheckoutMetadata) isMetadata() {}

type SingleCheckoutMetadata struct {
	ActivityID   uuid.UUID
	ScheduleID   *uuid.UUID
	Participants int
	UnitPrice    decimal.Decimal
	Contact      CustomerSnapshot
	Referral     AttributionSnapshot
}

func (SingleCheckoutMetadata) Mode() enums.CheckoutMode { return enums.CheckoutModeSingle }
func (m SingleCheckoutMetadata) Customer() CustomerSnapshot { return m.Contact }
func (m SingleCheckoutMetadata) Attribution() AttributionSnapshot { return m.Referral }
func (SingleCheckoutMetadata) isMetadata() {}

// cartLine is the compact wire form of a CartItem; short keys keep carts inside few chunks.
type cartLine struct {
	ActivityID string `json:"a"`
	ScheduleID string `json:"s,omitempty"`
	Quantity   int    `json:"q"`
	UnitPrice  string `json:"p"`
	ProviderID string `json:"o,omitempty"`
	Title      string `json:"t,omitempty"`
}

// EncodeMetadata flattens the snapshot into Stripe metadata keys.
func EncodeMetadata(m Metadata) (map[string]string, error) {
	out := map[string]string{}
	encodeCustomer(out, m.Customer())
	encodeAttribution(out, m.Attribution())

	switch v := m.(type) {
	case CartCheckoutMetadata:
		out[keyIsCart] = "true"
		lines := make([]cartLine, 0, len(v.Items))
		for _, item := range v.Items {
			lines = append(lines, cartLine{
				ActivityID: item.ActivityID.String(),
				ScheduleID: uuidString(item.ScheduleID),
				Quantity:   item.Quantity,
				UnitPrice:  money.String(item.UnitPrice),
				ProviderID: uuidString(item.ProviderID),
				Title:      truncate(item.Title, 60),
			})
		}
		raw, err := json.Marshal(lines)
		if err != nil {
			return nil, fmt.Errorf("encode cart: %w", err)
		}
		chunks := cartChunks(string(raw))
		if len(chunks) > maxCartChunks {
			return nil, fmt.Errorf("cart too large for session metadata (%d chunks)", len(chunks))
		}
		if len(chunks) == 1 {
			out[keyCart] = chunks[0]
		} else {
			for i, chunk := range chunks {
				out[keyCartChunkPrefix+strconv.Itoa(i)] = chunk
			}
		}
		out[keyCartChunks] = strconv.Itoa(len(chunks))
	case SingleCheckoutMetadata:
		out[keyIsCart] = "false"
		out[keyActivityID] = v.ActivityID.String()
		if v.ScheduleID != nil {
			out[keyScheduleID] = v.ScheduleID.String()
		}
		out[keyParticipants] = strconv.Itoa(v.Participants)
		out[keyUnitPrice] = money.String(v.UnitPrice)
	default:
		return nil, fmt.Errorf("unsupported metadata variant %T", m)
	}
	return out, nil
}

// ParseMetadata validates Stripe session metadata and returns the matching variant.
// Every failure carries CodeInvalidMetadata.
func ParseMetadata(raw map[string]string) (Metadata, error) {
	if len(raw) == 0 {
		return nil, invalidMetadata("metadata is empty")
	}

	contact, err := parseCustomer(raw)
	if err != nil {
		return nil, err
	}
	referral, err := parseAttribution(raw)
	if err != nil {
		return nil, err
	}

	isCart, err := parseBool(raw[keyIsCart])
	if err != nil {
		return nil, invalidMetadata("%s: %v", keyIsCart, err)
	}
	if isCart {
		items, err := parseCart(raw)
		if err != nil {
			return nil, err
		}
		return CartCheckoutMetadata{Items: items, Contact: contact, Referral: referral}, nil
	}

	activityID, err := requiredUUID(raw, keyActivityID)
	if err != nil {
		return nil, err
	}
	scheduleID, err := optionalUUID(raw, keyScheduleID)
	if err != nil {
		return nil, err
	}
	participants, err := strconv.Atoi(strings.TrimSpace(raw[keyParticipants]))
	if err != nil || participants <= 0 {
		return nil, invalidMetadata("%s must be a positive integer", keyParticipants)
	}
	var unitPrice decimal.Decimal
	if strings.TrimSpace(raw[keyUnitPrice]) != "" {
		unitPrice, err = money.Parse(raw[keyUnitPrice])
		if err != nil || unitPrice.IsNegative() {
			return nil, invalidMetadata("%s must be a non-negative amount", keyUnitPrice)
		}
	}

	return SingleCheckoutMetadata{
		ActivityID:   activityID,
		ScheduleID:   scheduleID,
		Participants: participants,
		UnitPrice:    unitPrice,
		Contact:      contact,
		Referral:     referral,
	}, nil
}

func parseCart(raw map[string]string) ([]CartItem, error) {
	payload := raw[keyCart]
	if countRaw := strings.TrimSpace(raw[keyCartChunks]); countRaw != "" && payload == "" {
		count, err := strconv.Atoi(countRaw)
		if err != nil || count <= 0 || count > maxCartChunks {
			return nil, invalidMetadata("%s must be between 1 and %d", keyCartChunks, maxCartChunks)
		}
		var sb strings.Builder
		for i := 0; i < count; i++ {
			chunk, ok := raw[keyCartChunkPrefix+strconv.Itoa(i)]
			if !ok {
				return nil, invalidMetadata("missing cart chunk %d of %d", i, count)
			}
			sb.WriteString(chunk)
		}
		payload = sb.String()
	}
	if strings.TrimSpace(payload) == "" {
		return nil, invalidMetadata("cart checkout without cart items")
	}

	var lines []cartLine
	if err := json.Unmarshal([]byte(payload), &lines); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidMetadata, err, "cart is not valid JSON")
	}
	if len(lines) == 0 {
		return nil, invalidMetadata("cart checkout without cart items")
	}

	items := make([]CartItem, 0, len(lines))
	for i, line := range lines {
		activityID, err := uuid.Parse(line.ActivityID)
		if err != nil {
			return nil, invalidMetadata("cart item %d: invalid activity id", i)
		}
		if line.Quantity <= 0 {
			return nil, invalidMetadata("cart item %d: quantity must be positive", i)
		}
		price, err := money.Parse(line.UnitPrice)
		if err != nil || price.IsNegative() {
			return nil, invalidMetadata("cart item %d: invalid unit price", i)
		}
		item := CartItem{ActivityID: activityID, Quantity: line.Quantity, UnitPrice: price, Title: line.Title}
		if item.ScheduleID, err = parseUUIDPtr(line.ScheduleID); err != nil {
			return nil, invalidMetadata("cart item %d: invalid schedule id", i)
		}
		if item.ProviderID, err = parseUUIDPtr(line.ProviderID); err != nil {
			return nil, invalidMetadata("cart item %d: invalid provider id", i)
		}
		items = append(items, item)
	}
	return items, nil
}

func encodeCustomer(out map[string]string, c CustomerSnapshot) {
	if c.CustomerID != nil {
		out[keyCustomerID] = c.CustomerID.String()
	}
	out[keyCustomerName] = truncate(c.Name, metadataValueLimit)
	out[keyCustomerEmail] = truncate(c.Email, metadataValueLimit)
	if c.VisitorSessionID != "" {
		out[keyVisitorSessionID] = c.VisitorSessionID
	}
}

func parseCustomer(raw map[string]string) (CustomerSnapshot, error) {
	customerID, err := optionalUUID(raw, keyCustomerID)
	if err != nil {
		return CustomerSnapshot{}, err
	}
	email := strings.TrimSpace(raw[keyCustomerEmail])
	if email == "" {
		return CustomerSnapshot{}, invalidMetadata("%s is required", keyCustomerEmail)
	}
	return CustomerSnapshot{
		CustomerID:       customerID,
		Name:             strings.TrimSpace(raw[keyCustomerName]),
		Email:            email,
		VisitorSessionID: strings.TrimSpace(raw[keyVisitorSessionID]),
	}, nil
}

func encodeAttribution(out map[string]string, a AttributionSnapshot) {
	out[keyHasActiveLink] = strconv.FormatBool(a.HasActiveLink)
	if a.EstablishmentID != nil {
		out[keyLinkedEstablishment] = a.EstablishmentID.String()
	}
	if a.LinkID != nil {
		out[keyLinkID] = a.LinkID.String()
	}
}

func parseAttribution(raw map[string]string) (AttributionSnapshot, error) {
	has, err := parseBool(raw[keyHasActiveLink])
	if err != nil {
		return AttributionSnapshot{}, invalidMetadata("%s: %v", keyHasActiveLink, err)
	}
	establishmentID, err := optionalUUID(raw, keyLinkedEstablishment)
	if err != nil {
		return AttributionSnapshot{}, err
	}
	linkID, err := optionalUUID(raw, keyLinkID)
	if err != nil {
		return AttributionSnapshot{}, err
	}
	if has && establishmentID == nil {
		return AttributionSnapshot{}, invalidMetadata("%s set without %s", keyHasActiveLink, keyLinkedEstablishment)
	}
	return AttributionSnapshot{HasActiveLink: has, EstablishmentID: establishmentID, LinkID: linkID}, nil
}

// cartChunks splits s into pieces no longer than the Stripe value limit without
// breaking a UTF-8 sequence.
func cartChunks(s string) []string {
	var chunks []string
	for len(s) > metadataValueLimit {
		cut := runeBoundary(s, metadataValueLimit)
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	return append(chunks, s)
}

func runeBoundary(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return cut
}

func parseBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func requiredUUID(raw map[string]string, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw[key]))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, invalidMetadata("%s must be a uuid", key)
	}
	return id, nil
}

func optionalUUID(raw map[string]string, key string) (*uuid.UUID, error) {
	id, err := parseUUIDPtr(raw[key])
	if err != nil {
		return nil, invalidMetadata("%s must be a uuid", key)
	}
	return id, nil
}

func parseUUIDPtr(raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:runeBoundary(s, limit)]
}

func invalidMetadata(format string, args ...any) error {
	return pkgerrors.Newf(pkgerrors.CodeInvalidMetadata, format, args...)
}
