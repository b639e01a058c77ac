package notifications

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	"github.com/angelmondragon/activityhub-backend/pkg/config"
	"github.com/angelmondragon/activityhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/email"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox/registry"
)

type recordingSender struct {
	sent []email.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type memoryClaims struct {
	claimed  map[string]bool
	released int
}

func (m *memoryClaims) Claim(_ context.Context, consumer string, id uuid.UUID) (bool, error) {
	key := consumer + ":" + id.String()
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *memoryClaims) Release(_ context.Context, consumer string, id uuid.UUID) error {
	delete(m.claimed, consumer+":"+id.String())
	m.released++
	return nil
}

type deliveryEnv struct {
	conn     *gorm.DB
	delivery *Delivery
	enqueuer *Enqueuer
	registry *registry.EventRegistry
	sender   *recordingSender
	claims   *memoryClaims
	booking  *models.Booking
	est      models.Establishment
}

func newDeliveryEnv(t *testing.T) *deliveryEnv {
	t.Helper()
	conn := dbtest.Open(t)
	env := &deliveryEnv{
		conn:   conn,
		sender: &recordingSender{},
		claims: &memoryClaims{claimed: map[string]bool{}},
	}

	tpl, err := DefaultTemplates()
	require.NoError(t, err)
	env.delivery, err = NewDelivery(DeliveryParams{
		Repo:        NewRepository(conn),
		Catalog:     catalog.NewRepository(conn),
		Sender:      env.sender,
		Templates:   tpl,
		Idempotency: env.claims,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)

	env.enqueuer, err = NewEnqueuer(outbox.NewService(outbox.NewRepository(conn), nil))
	require.NoError(t, err)
	env.registry, err = registry.NewEventRegistry(config.PubSubConfig{SettlementTopic: "settlements"})
	require.NoError(t, err)

	owner := models.ActivityOwner{BusinessName: "Sea Kayaks", ContactName: "Marta", Email: "owner@example.com"}
	require.NoError(t, conn.Create(&owner).Error)
	activity := models.Activity{OwnerID: owner.ID, Title: "Sunset Kayak", Price: decimal.NewFromInt(100), Currency: "eur", Active: true}
	require.NoError(t, conn.Create(&activity).Error)
	env.est = models.Establishment{Name: "Hotel Mar", Email: "desk@hotelmar.example", Active: true}
	require.NoError(t, conn.Create(&env.est).Error)

	env.booking = &models.Booking{
		ActivityID:         activity.ID,
		ProviderID:         &owner.ID,
		CustomerName:       "Ana",
		CustomerEmail:      "ana@example.com",
		Participants:       1,
		TotalAmount:        decimal.NewFromInt(100),
		Currency:           "eur",
		Status:             enums.BookingStatusConfirmed,
		BookingDate:        time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
		PlatformFee:        decimal.NewFromInt(20),
		ProviderAmount:     decimal.NewFromInt(80),
		ReferralCommission: decimal.NewFromInt(10),
		EstablishmentID:    &env.est.ID,
		StripeSessionID:    "cs_test_1",
	}
	require.NoError(t, conn.Create(env.booking).Error)
	return env
}

func (e *deliveryEnv) enqueue(t *testing.T, hasPartner bool) []models.OutboxEvent {
	t.Helper()
	err := e.conn.Transaction(func(tx *gorm.DB) error {
		return e.enqueuer.Enqueue(context.Background(), tx, EnqueueInput{
			Booking:              e.booking,
			Mode:                 enums.CheckoutModeSingle,
			HasPartnerCommission: hasPartner,
			Actor:                outbox.WebhookActor("evt_1"),
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, e.conn.Order("created_at").Find(&rows).Error)
	return rows
}

func (e *deliveryEnv) handle(t *testing.T, row models.OutboxEvent) error {
	t.Helper()
	resolved, err := e.registry.Resolve(row)
	require.NoError(t, err)
	return e.conn.Transaction(func(tx *gorm.DB) error {
		return e.delivery.Handle(context.Background(), tx, row, resolved)
	})
}

func TestEnqueueWritesOneRowPerAudienceOnce(t *testing.T) {
	env := newDeliveryEnv(t)

	rows := env.enqueue(t, true)
	require.Len(t, rows, 3)
	keys := map[string]bool{}
	for _, row := range rows {
		require.NotNil(t, row.DedupeKey)
		keys[*row.DedupeKey] = true
		assert.Equal(t, enums.EventNotificationRequested, row.EventType)
		assert.Equal(t, env.booking.ID, row.AggregateID)
	}
	assert.True(t, keys[DedupeKey(env.booking, enums.NotificationAudiencePartner)])

	rows = env.enqueue(t, true)
	assert.Len(t, rows, 3)
}

func TestEnqueueWithoutPartnerCommission(t *testing.T) {
	env := newDeliveryEnv(t)
	rows := env.enqueue(t, false)
	assert.Len(t, rows, 2)
}

func TestHandleSendsToEachAudience(t *testing.T) {
	env := newDeliveryEnv(t)
	partner := models.PartnerRegistration{EstablishmentID: env.est.ID, ContactName: "Luis", ContactEmail: "luis@hotelmar.example", Status: "approved"}
	require.NoError(t, env.conn.Create(&partner).Error)

	for _, row := range env.enqueue(t, true) {
		require.NoError(t, env.handle(t, row))
	}

	require.Len(t, env.sender.sent, 3)
	byAddress := map[string]email.Message{}
	for _, msg := range env.sender.sent {
		byAddress[msg.ToEmail] = msg
	}
	assert.Contains(t, byAddress["ana@example.com"].Subject, "Sunset Kayak")
	assert.Equal(t, "Marta", byAddress["owner@example.com"].ToName)
	assert.Contains(t, byAddress["owner@example.com"].PlainText, "Your payout: 80.00 EUR")
	assert.Contains(t, byAddress["luis@hotelmar.example"].PlainText, "Your commission: 10.00 EUR")
	assert.Equal(t, env.booking.ID.String(), byAddress["luis@hotelmar.example"].Tags["booking_id"])
}

func TestHandlePartnerFallsBackToEstablishmentEmail(t *testing.T) {
	env := newDeliveryEnv(t)
	rows := env.enqueue(t, true)

	for _, row := range rows {
		require.NoError(t, env.handle(t, row))
	}
	var found bool
	for _, msg := range env.sender.sent {
		if msg.ToEmail == "desk@hotelmar.example" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestHandleSkipsRedeliveredRow(t *testing.T) {
	env := newDeliveryEnv(t)
	row := env.enqueue(t, false)[0]

	require.NoError(t, env.handle(t, row))
	require.NoError(t, env.handle(t, row))
	assert.Len(t, env.sender.sent, 1)
}

func TestHandleReleasesClaimOnTransientFailure(t *testing.T) {
	env := newDeliveryEnv(t)
	row := env.enqueue(t, false)[0]
	env.sender.err = errors.New("connection reset")

	err := env.handle(t, row)
	require.Error(t, err)
	var nonRetryable registry.NonRetryableError
	assert.False(t, errors.As(err, &nonRetryable))
	assert.Equal(t, 1, env.claims.released)

	env.sender.err = nil
	require.NoError(t, env.handle(t, row))
	assert.Len(t, env.sender.sent, 1)
}

func TestHandlePermanentRejectionIsNotRetried(t *testing.T) {
	env := newDeliveryEnv(t)
	row := env.enqueue(t, false)[0]
	env.sender.err = &email.PermanentError{StatusCode: 400, Body: "invalid address"}

	err := env.handle(t, row)
	var nonRetryable registry.NonRetryableError
	assert.True(t, errors.As(err, &nonRetryable))
}

func TestHandleMissingBookingIsNotRetried(t *testing.T) {
	env := newDeliveryEnv(t)
	row := env.enqueue(t, false)[0]
	require.NoError(t, env.conn.Delete(&models.Booking{}, "id = ?", env.booking.ID).Error)

	err := env.handle(t, row)
	var nonRetryable registry.NonRetryableError
	assert.True(t, errors.As(err, &nonRetryable))
	assert.Empty(t, env.sender.sent)
}
