package bookings

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	"github.com/angelmondragon/activityhub-backend/internal/checkout"
	"github.com/angelmondragon/activityhub-backend/pkg/config"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/money"
)

// PaymentStatusUnknown is reported when the processor could not be reached.
const PaymentStatusUnknown = "unknown"

type sessionReader interface {
	Get(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

// BookingView is what the confirmation page shows for one booking. Placeholders carry
// no id and have status "processing".
type BookingView struct {
	ID            *uuid.UUID       `json:"id,omitempty"`
	ActivityID    *uuid.UUID       `json:"activityId,omitempty"`
	ActivityTitle string           `json:"activityTitle,omitempty"`
	ScheduleID    *uuid.UUID       `json:"scheduleId,omitempty"`
	Participants  int              `json:"participants"`
	TotalAmount   decimal.Decimal  `json:"totalAmount"`
	Currency      string           `json:"currency,omitempty"`
	Status        string           `json:"status"`
	BookingDate   *time.Time       `json:"bookingDate,omitempty"`
	CustomerName  string           `json:"customerName,omitempty"`
	CustomerEmail string           `json:"customerEmail,omitempty"`
	Placeholder   bool             `json:"placeholder"`
	PlatformFee   *decimal.Decimal `json:"platformFee,omitempty"`
}

// Detail is the response for the post-checkout confirmation page.
type Detail struct {
	SessionID     string             `json:"sessionId"`
	Type          enums.CheckoutMode `json:"type"`
	CustomerEmail string             `json:"customerEmail,omitempty"`
	TotalAmount   decimal.Decimal    `json:"totalAmount"`
	Currency      string             `json:"currency,omitempty"`
	PaymentStatus string             `json:"paymentStatus"`
	Booking       *BookingView       `json:"booking,omitempty"`
	Bookings      []BookingView      `json:"bookings,omitempty"`
}

type ResolverParams struct {
	Sessions sessionReader
	Repo     *Repository
	Catalog  *catalog.Repository
	Config   config.BookingsConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

// Resolver answers "what did this checkout session book?" without writing anything.
type Resolver struct {
	sessions sessionReader
	repo     *Repository
	catalog  *catalog.Repository
	window   time.Duration
	logg     *logger.Logger
	now      func() time.Time
}

func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session reader is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking repository is required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repository is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	window := params.Config.DetailRecencyWindow
	if window <= 0 {
		window = 30 * time.Minute
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		sessions: params.Sessions,
		repo:     params.Repo,
		catalog:  params.Catalog,
		window:   window,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Resolve looks bookings up by session id and falls back to placeholders built from the
// session metadata. Bookings of other sessions are never shown, even for the same customer.
func (r *Resolver) Resolve(ctx context.Context, sessionID string, mode enums.CheckoutMode) (*Detail, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sessionId is required")
	}
	if mode == "" {
		mode = enums.CheckoutModeSingle
	}
	if !mode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "type must be single or cart")
	}
	ctx = r.logg.WithSessionID(ctx, sessionID)

	detail := &Detail{SessionID: sessionID, Type: mode, PaymentStatus: PaymentStatusUnknown}

	session, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		r.logg.Warn(ctx, "checkout session lookup failed; answering from local state: "+err.Error())
		session = nil
	}

	var meta checkout.Metadata
	createdAt := r.now().UTC()
	if session != nil {
		detail.PaymentStatus = string(session.PaymentStatus)
		detail.Currency = strings.ToLower(string(session.Currency))
		detail.TotalAmount = money.FromMinorUnits(session.AmountTotal, detail.Currency)
		detail.CustomerEmail = sessionEmail(session)
		if session.Created > 0 {
			createdAt = time.Unix(session.Created, 0).UTC()
		}
		if parsed, parseErr := checkout.ParseMetadata(session.Metadata); parseErr == nil {
			meta = parsed
			if detail.CustomerEmail == "" {
				detail.CustomerEmail = parsed.Customer().Email
			}
		}
	}

	rows, err := r.repo.FindBySession(ctx, sessionID)
	if err != nil {
		r.logg.Error(ctx, "booking lookup by session failed", err)
		rows = nil
	}
	if len(rows) == 0 && createdAt.Before(r.now().UTC().Add(-r.window)) {
		r.logg.Warn(r.logg.WithField(ctx, "session_created_at", createdAt.Format(time.RFC3339)), "no bookings for checkout session past the recency window")
	}

	var views []BookingView
	if len(rows) > 0 {
		views = r.viewsFromBookings(ctx, rows)
		if detail.TotalAmount.IsZero() {
			for _, row := range rows {
				detail.TotalAmount = detail.TotalAmount.Add(row.TotalAmount)
			}
			detail.Currency = rows[0].Currency
		}
	} else {
		views = r.placeholders(ctx, meta, detail)
	}

	if mode == enums.CheckoutModeCart {
		detail.Bookings = views
	} else if len(views) > 0 {
		detail.Booking = &views[0]
	}
	return detail, nil
}

func (r *Resolver) viewsFromBookings(ctx context.Context, rows []models.Booking) []BookingView {
	titles := r.titles(ctx, activityIDsOf(rows))
	views := make([]BookingView, 0, len(rows))
	for _, row := range rows {
		id := row.ID
		activityID := row.ActivityID
		bookingDate := row.BookingDate
		fee := row.PlatformFee
		views = append(views, BookingView{
			ID:            &id,
			ActivityID:    &activityID,
			ActivityTitle: titles[row.ActivityID],
			ScheduleID:    row.ScheduleID,
			Participants:  row.Participants,
			TotalAmount:   row.TotalAmount,
			Currency:      row.Currency,
			Status:        string(row.Status),
			BookingDate:   &bookingDate,
			CustomerName:  row.CustomerName,
			CustomerEmail: row.CustomerEmail,
			PlatformFee:   &fee,
		})
	}
	return views
}

// placeholders describes what the webhook is about to create.
func (r *Resolver) placeholders(ctx context.Context, meta checkout.Metadata, detail *Detail) []BookingView {
	processing := string(enums.BookingStatusProcessing)
	switch m := meta.(type) {
	case checkout.CartCheckoutMetadata:
		ids := make([]uuid.UUID, 0, len(m.Items))
		for _, item := range m.Items {
			ids = append(ids, item.ActivityID)
		}
		titles := r.titles(ctx, ids)
		views := make([]BookingView, 0, len(m.Items))
		for _, item := range m.Items {
			activityID := item.ActivityID
			title := titles[item.ActivityID]
			if title == "" {
				title = item.Title
			}
			views = append(views, BookingView{
				ActivityID:    &activityID,
				ActivityTitle: title,
				ScheduleID:    item.ScheduleID,
				Participants:  item.Quantity,
				TotalAmount:   money.Round(item.LineTotal()),
				Currency:      detail.Currency,
				Status:        processing,
				CustomerName:  m.Contact.Name,
				CustomerEmail: m.Contact.Email,
				Placeholder:   true,
			})
		}
		return views
	case checkout.SingleCheckoutMetadata:
		activityID := m.ActivityID
		titles := r.titles(ctx, []uuid.UUID{activityID})
		return []BookingView{{
			ActivityID:    &activityID,
			ActivityTitle: titles[activityID],
			ScheduleID:    m.ScheduleID,
			Participants:  m.Participants,
			TotalAmount:   detail.TotalAmount,
			Currency:      detail.Currency,
			Status:        processing,
			CustomerName:  m.Contact.Name,
			CustomerEmail: m.Contact.Email,
			Placeholder:   true,
		}}
	default:
		return []BookingView{{
			TotalAmount:   detail.TotalAmount,
			Currency:      detail.Currency,
			Status:        processing,
			CustomerEmail: detail.CustomerEmail,
			Placeholder:   true,
		}}
	}
}

func (r *Resolver) titles(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]string {
	out := map[uuid.UUID]string{}
	if len(ids) == 0 {
		return out
	}
	activities, err := r.catalog.FindActivities(ctx, ids)
	if err != nil {
		r.logg.Warn(ctx, "activity title lookup failed: "+err.Error())
		return out
	}
	for id, activity := range activities {
		out[id] = activity.Title
	}
	return out
}

func activityIDsOf(rows []models.Booking) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ActivityID)
	}
	return ids
}

func sessionEmail(session *stripe.CheckoutSession) string {
	if session.CustomerDetails != nil && strings.TrimSpace(session.CustomerDetails.Email) != "" {
		return strings.ToLower(strings.TrimSpace(session.CustomerDetails.Email))
	}
	return strings.ToLower(strings.TrimSpace(session.CustomerEmail))
}
