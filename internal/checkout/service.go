package checkout

import (
	"context"
	"strings"

	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	"github.com/angelmondragon/activityhub-backend/internal/referrals"
	"github.com/angelmondragon/activityhub-backend/pkg/config"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
)

const roundingLineName = "Rounding"

type sessionCreator interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type activityLoader interface {
	FindActivities(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Activity, error)
}

type linkResolver interface {
	GetActiveLink(ctx context.Context, subject referrals.Subject) (*referrals.Link, error)
}

// ServiceParams groups dependencies for the checkout session builder.
type ServiceParams struct {
	Sessions  sessionCreator
	Catalog   *catalog.Repository
	Referrals referrals.Service
	Config    config.CheckoutConfig
	Logger    *logger.Logger
}

// Service builds hosted Stripe Checkout sessions. Nothing is persisted locally; the
// session metadata carries everything settlement needs.
type Service interface {
	CreateSession(ctx context.Context, req Request) (*Session, error)
}

type service struct {
	sessions   sessionCreator
	activities activityLoader
	referrals  linkResolver
	cfg        config.CheckoutConfig
	logg       *logger.Logger
}

// NewService builds the checkout session builder.
func NewService(params ServiceParams) (Service, error) {
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe checkout sessions client is required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repo is required")
	}
	if params.Referrals == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referral service is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &service{
		sessions:   params.Sessions,
		activities: params.Catalog,
		referrals:  params.Referrals,
		cfg:        params.Config,
		logg:       params.Logger,
	}, nil
}

// CreateSession prices the request, snapshots attribution, and creates the Stripe session.
func (s *service) CreateSession(ctx context.Context, req Request) (*Session, error) {
	if strings.TrimSpace(req.CustomerEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if strings.TrimSpace(req.SuccessURL) == "" || strings.TrimSpace(req.CancelURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "success and cancel urls are required")
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = strings.ToLower(s.cfg.DefaultCurrency)
	}
	if !s.cfg.CurrencyAllowed(currency) {
		return nil, sessionError(nil, "currency %q is not supported", currency)
	}

	lines, mode, err := s.priceLines(ctx, req, currency)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal())
	}
	if !subtotal.IsPositive() {
		return nil, sessionError(nil, "checkout total must be greater than zero")
	}
	total := money.CeilUnit(subtotal)
	rounding := total.Sub(subtotal)

	attribution := s.snapshotAttribution(ctx, req)
	contact := CustomerSnapshot{
		CustomerID:       req.CustomerID,
		Name:             strings.TrimSpace(req.CustomerName),
		Email:            strings.TrimSpace(req.CustomerEmail),
		VisitorSessionID: strings.TrimSpace(req.VisitorSessionID),
	}

	var meta Metadata
	if mode == enums.CheckoutModeCart {
		meta = CartCheckoutMetadata{Items: lines, Contact: contact, Referral: attribution}
	} else {
		meta = SingleCheckoutMetadata{
			ActivityID:   lines[0].ActivityID,
			ScheduleID:   lines[0].ScheduleID,
			Participants: lines[0].Quantity,
			UnitPrice:    lines[0].UnitPrice,
			Contact:      contact,
			Referral:     attribution,
		}
	}
	encoded, err := EncodeMetadata(meta)
	if err != nil {
		return nil, sessionError(err, "encode session metadata")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(successURL(req.SuccessURL, mode)),
		CancelURL:     stripe.String(strings.TrimSpace(req.CancelURL)),
		CustomerEmail: stripe.String(contact.Email),
		Metadata:      encoded,
		LineItems:     lineItems(lines, rounding, currency),
	}
	if req.CustomerID != nil {
		params.ClientReferenceID = stripe.String(req.CustomerID.String())
	}

	created, err := s.sessions.Create(ctx, params)
	if err != nil {
		s.logg.Error(ctx, "checkout.session_create_failed", err)
		return nil, sessionError(err, "payment processor rejected the checkout session")
	}
	if created == nil || created.ID == "" {
		return nil, sessionError(nil, "payment processor returned an empty session")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_session_id": created.ID,
		"mode":              string(mode),
		"total":             money.String(total),
		"has_active_link":   attribution.HasActiveLink,
	})
	s.logg.Info(ctx, "checkout.session_created")

	return &Session{
		ID:          created.ID,
		URL:         created.URL,
		Mode:        mode,
		TotalAmount: total,
		Rounding:    rounding,
		Currency:    currency,
		Attribution: attribution,
	}, nil
}

// priceLines resolves every requested activity and returns the priced lines in request order.
func (s *service) priceLines(ctx context.Context, req Request, currency string) ([]CartItem, enums.CheckoutMode, error) {
	mode := enums.CheckoutModeCart
	requested := req.Items
	if len(requested) == 0 {
		if req.ActivityID == nil || *req.ActivityID == uuid.Nil {
			return nil, "", sessionError(nil, "either cart items or an activity are required")
		}
		mode = enums.CheckoutModeSingle
		requested = []ItemRequest{{
			ActivityID: *req.ActivityID,
			ScheduleID: req.ScheduleID,
			Quantity:   req.Participants,
			UnitPrice:  req.UnitPrice,
		}}
	}

	ids := make([]uuid.UUID, 0, len(requested))
	for i, item := range requested {
		if item.ActivityID == uuid.Nil {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "activity id is required").WithDetails(map[string]any{"item": i})
		}
		if item.Quantity <= 0 {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").WithDetails(map[string]any{"item": i})
		}
		if item.UnitPrice.IsNegative() {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative").WithDetails(map[string]any{"item": i})
		}
		ids = append(ids, item.ActivityID)
	}

	activities, err := s.activities.FindActivities(ctx, ids)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load activities")
	}

	lines := make([]CartItem, 0, len(requested))
	for _, item := range requested {
		activity, ok := activities[item.ActivityID]
		if !ok || !activity.Active {
			return nil, "", sessionError(nil, "activity %s is not available", item.ActivityID)
		}
		if activity.Currency != "" && !strings.EqualFold(activity.Currency, currency) {
			return nil, "", sessionError(nil, "activity %s is priced in %s", item.ActivityID, strings.ToLower(activity.Currency))
		}
		// the catalog is the only price source; a client price must agree with it
		unitPrice := money.Round(activity.Price)
		if quoted := money.Round(item.UnitPrice); !quoted.IsZero() && !quoted.Equal(unitPrice) {
			return nil, "", sessionError(nil, "price of activity %s changed: quoted %s, current %s", item.ActivityID, money.String(quoted), money.String(unitPrice))
		}
		ownerID := activity.OwnerID
		lines = append(lines, CartItem{
			ActivityID: activity.ID,
			ScheduleID: item.ScheduleID,
			Quantity:   item.Quantity,
			UnitPrice:  unitPrice,
			ProviderID: &ownerID,
			Title:      activity.Title,
		})
	}
	return lines, mode, nil
}

// snapshotAttribution never fails checkout; a lookup error means no attribution.
func (s *service) snapshotAttribution(ctx context.Context, req Request) AttributionSnapshot {
	subject := referrals.Subject{UserID: req.CustomerID, SessionID: req.VisitorSessionID}
	link, err := s.referrals.GetActiveLink(ctx, subject)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "checkout.referral_lookup_failed")
		return AttributionSnapshot{}
	}
	if link == nil {
		if req.EstablishmentID != nil {
			s.logg.Warn(s.logg.WithField(ctx, "establishment_hint", req.EstablishmentID.String()), "checkout.establishment_hint_without_link")
		}
		return AttributionSnapshot{}
	}
	if req.EstablishmentID != nil && *req.EstablishmentID != link.EstablishmentID {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"establishment_hint": req.EstablishmentID.String(),
			"linked":             link.EstablishmentID.String(),
		}), "checkout.establishment_hint_mismatch")
	}
	establishmentID := link.EstablishmentID
	linkID := link.ID
	return AttributionSnapshot{HasActiveLink: true, EstablishmentID: &establishmentID, LinkID: &linkID}
}

func lineItems(lines []CartItem, rounding decimal.Decimal, currency string) []*stripe.CheckoutSessionLineItemParams {
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(lines)+1)
	for _, line := range lines {
		items = append(items, priceLine(line.Title, line.UnitPrice, int64(line.Quantity), currency))
	}
	if rounding.IsPositive() {
		items = append(items, priceLine(roundingLineName, rounding, 1, currency))
	}
	return items
}

func priceLine(name string, unitPrice decimal.Decimal, quantity int64, currency string) *stripe.CheckoutSessionLineItemParams {
	if strings.TrimSpace(name) == "" {
		name = "Activity"
	}
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(money.ToMinorUnits(unitPrice, currency)),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
		},
		Quantity: stripe.Int64(quantity),
	}
}

// successURL appends the session placeholder Stripe substitutes on redirect so the
// confirmation page can resolve booking details.
func successURL(raw string, mode enums.CheckoutMode) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "{CHECKOUT_SESSION_ID}") {
		return raw
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "session_id={CHECKOUT_SESSION_ID}&type=" + string(mode)
}

func sessionError(cause error, format string, args ...any) error {
	return pkgerrors.Wrapf(pkgerrors.CodeSessionCreation, cause, format, args...)
}
