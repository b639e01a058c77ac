package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	"github.com/angelmondragon/activityhub-backend/internal/checkout"
	"github.com/angelmondragon/activityhub-backend/internal/commissions"
	"github.com/angelmondragon/activityhub-backend/internal/notifications"
	"github.com/angelmondragon/activityhub-backend/internal/referrals"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/metrics"
	"github.com/angelmondragon/activityhub-backend/pkg/money"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settler interface {
	Settle(ctx context.Context, tx *gorm.DB, booking *models.Booking, subject referrals.Subject, snapshot checkout.AttributionSnapshot) (*commissions.Settlement, error)
}

type notificationEnqueuer interface {
	Enqueue(ctx context.Context, tx *gorm.DB, in notifications.EnqueueInput) error
}

// CompletedSession is the slice of a paid checkout session the materializer needs.
// Metadata has already been parsed and validated by the webhook.
type CompletedSession struct {
	ID            string
	EventID       string
	AmountTotal   int64
	Currency      string
	CustomerEmail string
	CustomerName  string
	Metadata      checkout.Metadata
}

// Result reports what one materialization pass did.
type Result struct {
	Created []models.Booking
	Skipped int
}

type MaterializerParams struct {
	Tx            txRunner
	Repo          *Repository
	Catalog       *catalog.Repository
	Commissions   settler
	Notifications notificationEnqueuer
	Outbox        outbox.Emitter
	Metrics       *metrics.SettlementMetrics
	Logger        *logger.Logger
	Now           func() time.Time
}

// Materializer turns a completed checkout session into settled bookings.
type Materializer struct {
	tx            txRunner
	repo          *Repository
	catalog       *catalog.Repository
	commissions   settler
	notifications notificationEnqueuer
	outbox        outbox.Emitter
	metrics       *metrics.SettlementMetrics
	logg          *logger.Logger
	now           func() time.Time
}

func NewMaterializer(params MaterializerParams) (*Materializer, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking repository is required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repository is required")
	}
	if params.Commissions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission service is required")
	}
	if params.Notifications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification enqueuer is required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbox emitter is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Materializer{
		tx:            params.Tx,
		repo:          params.Repo,
		catalog:       params.Catalog,
		commissions:   params.Commissions,
		notifications: params.Notifications,
		outbox:        params.Outbox,
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           now,
	}, nil
}

// line is one booking to create; the index is the idempotency key within the session.
type line struct {
	index        int
	activityID   uuid.UUID
	scheduleID   *uuid.UUID
	providerID   *uuid.UUID
	participants int
	total        decimal.Decimal
}

// Materialize creates one booking per cart item, or one booking for a single-activity
// session. Cart lines are independent: every line is attempted and the failures are
// returned together.
func (m *Materializer) Materialize(ctx context.Context, session CompletedSession) (*Result, error) {
	if strings.TrimSpace(session.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id is required")
	}
	if session.Metadata == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidMetadata, "checkout metadata is required")
	}
	ctx = m.logg.WithSessionID(ctx, session.ID)

	switch meta := session.Metadata.(type) {
	case checkout.CartCheckoutMetadata:
		return m.materializeCart(ctx, session, meta)
	case checkout.SingleCheckoutMetadata:
		return m.materializeSingle(ctx, session, meta)
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidMetadata, "unsupported metadata %T", session.Metadata)
	}
}

func (m *Materializer) materializeCart(ctx context.Context, session CompletedSession, meta checkout.CartCheckoutMetadata) (*Result, error) {
	result := &Result{}
	var errs error
	for i, item := range meta.Items {
		booking, err := m.materializeLine(ctx, session, meta, line{
			index:        i,
			activityID:   item.ActivityID,
			scheduleID:   item.ScheduleID,
			providerID:   item.ProviderID,
			participants: item.Quantity,
			total:        money.Round(item.LineTotal()),
		})
		if err != nil {
			m.metrics.BookingFailed(string(enums.CheckoutModeCart))
			m.logg.Error(m.logg.WithField(ctx, "line_index", i), "cart booking failed", err)
			errs = multierr.Append(errs, fmt.Errorf("cart line %d: %w", i, err))
			continue
		}
		if booking == nil {
			result.Skipped++
			continue
		}
		result.Created = append(result.Created, *booking)
	}
	if errs != nil {
		return result, pkgerrors.Wrapf(pkgerrors.CodePersistence, errs, "%d of %d cart bookings failed", len(multierr.Errors(errs)), len(meta.Items))
	}
	return result, nil
}

func (m *Materializer) materializeSingle(ctx context.Context, session CompletedSession, meta checkout.SingleCheckoutMetadata) (*Result, error) {
	participants := meta.Participants
	if participants <= 0 {
		participants = 1
	}
	total := money.FromMinorUnits(session.AmountTotal, session.Currency)
	if !total.IsPositive() {
		total = money.Round(meta.UnitPrice.Mul(decimal.NewFromInt(int64(participants))))
	}

	booking, err := m.materializeLine(ctx, session, meta, line{
		activityID:   meta.ActivityID,
		scheduleID:   meta.ScheduleID,
		participants: participants,
		total:        total,
	})
	if err != nil {
		m.metrics.BookingFailed(string(enums.CheckoutModeSingle))
		m.logg.Error(ctx, "single booking failed", err)
		return nil, err
	}
	result := &Result{}
	if booking == nil {
		result.Skipped = 1
	} else {
		result.Created = append(result.Created, *booking)
	}
	return result, nil
}

// materializeLine creates and settles one booking in its own transaction. A nil booking
// with a nil error means the line was already materialized by an earlier delivery.
func (m *Materializer) materializeLine(ctx context.Context, session CompletedSession, meta checkout.Metadata, ln line) (*models.Booking, error) {
	contact := meta.Customer()
	mode := meta.Mode()
	now := m.now().UTC()

	var created *models.Booking
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		exists, err := repo.ExistsBySessionLine(ctx, session.ID, ln.index)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "check existing booking")
		}
		if exists {
			return nil
		}

		activity, err := m.catalog.WithTx(tx).FindActivity(ctx, ln.activityID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrapf(pkgerrors.CodePersistence, err, "activity %s not found", ln.activityID)
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load activity")
		}
		providerID := activity.OwnerID
		if ln.providerID != nil {
			providerID = *ln.providerID
		}

		booking := &models.Booking{
			ActivityID:      activity.ID,
			ScheduleID:      ln.scheduleID,
			ProviderID:      &providerID,
			CustomerID:      contact.CustomerID,
			CustomerName:    firstNonEmpty(contact.Name, session.CustomerName),
			CustomerEmail:   strings.ToLower(firstNonEmpty(contact.Email, session.CustomerEmail)),
			Participants:    ln.participants,
			TotalAmount:     ln.total,
			Currency:        strings.ToLower(firstNonEmpty(session.Currency, activity.Currency)),
			Status:          enums.BookingStatusConfirmed,
			BookingDate:     now,
			StripeSessionID: session.ID,
			LineIndex:       ln.index,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		inserted, err := repo.Insert(ctx, booking)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "insert booking")
		}
		if !inserted {
			return nil
		}

		subject := referrals.Subject{UserID: contact.CustomerID, SessionID: contact.VisitorSessionID}
		settlement, err := m.commissions.Settle(ctx, tx, booking, subject, meta.Attribution())
		if err != nil {
			return err
		}

		actor := outbox.WebhookActor(session.EventID)
		if err := m.notifications.Enqueue(ctx, tx, notifications.EnqueueInput{
			Booking:              booking,
			Mode:                 mode,
			HasPartnerCommission: settlement.EstablishmentID != nil && settlement.EstablishmentCommission.IsPositive(),
			Actor:                actor,
		}); err != nil {
			return err
		}

		if err := m.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingSettled,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         actor,
			OccurredAt:    now,
			DedupeKey:     "booking_settled:" + booking.ID.String(),
			Data: payloads.BookingSettledEvent{
				BookingID:               booking.ID,
				ActivityID:              booking.ActivityID,
				ProviderID:              booking.ProviderID,
				EstablishmentID:         settlement.EstablishmentID,
				StripeSessionID:         session.ID,
				LineIndex:               booking.LineIndex,
				Mode:                    mode,
				Currency:                booking.Currency,
				TotalAmount:             settlement.Total,
				PlatformFee:             settlement.PlatformFeeGross,
				ProviderAmount:          settlement.ProviderAmount,
				EstablishmentCommission: settlement.EstablishmentCommission,
				SettledAt:               now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit booking settled event")
		}

		created = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created != nil {
		m.metrics.BookingCreated(string(mode))
		m.logg.Info(m.logg.WithBookingID(m.logg.WithField(ctx, "line_index", ln.index), created.ID.String()), "booking created")
	} else {
		m.logg.Info(m.logg.WithField(ctx, "line_index", ln.index), "booking already exists; skipping")
	}
	return created, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
