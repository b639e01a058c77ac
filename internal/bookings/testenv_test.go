package bookings

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	"github.com/angelmondragon/activityhub-backend/internal/checkout"
	"github.com/angelmondragon/activityhub-backend/internal/commissions"
	"github.com/angelmondragon/activityhub-backend/internal/notifications"
	"github.com/angelmondragon/activityhub-backend/internal/referrals"
	"github.com/angelmondragon/activityhub-backend/pkg/db"
	"github.com/angelmondragon/activityhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox"
)

type testEnv struct {
	conn         *gorm.DB
	now          time.Time
	logg         *logger.Logger
	materializer *Materializer
	referrals    referrals.Service
	catalog      *catalog.Repository
	repo         *Repository
	owner        models.ActivityOwner
	kayak        models.Activity
	snorkel      models.Activity
	est          models.Establishment
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn := dbtest.Open(t)
	env := &testEnv{
		conn: conn,
		now:  time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
		logg: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	}
	clock := func() time.Time { return env.now }
	txRunner := db.NewWithConn(conn)

	env.catalog = catalog.NewRepository(conn)
	env.repo = NewRepository(conn)
	var err error
	env.referrals, err = referrals.NewService(referrals.ServiceParams{Repo: referrals.NewRepository(conn), Catalog: env.catalog, Now: clock})
	require.NoError(t, err)

	commissionSvc, err := commissions.NewService(commissions.ServiceParams{
		Tx:        txRunner,
		Repo:      commissions.NewRepository(conn),
		Catalog:   env.catalog,
		Referrals: env.referrals,
		Now:       clock,
	})
	require.NoError(t, err)

	emitter := outbox.NewService(outbox.NewRepository(conn), env.logg)
	enqueuer, err := notifications.NewEnqueuer(emitter)
	require.NoError(t, err)

	env.materializer, err = NewMaterializer(MaterializerParams{
		Tx:            txRunner,
		Repo:          env.repo,
		Catalog:       env.catalog,
		Commissions:   commissionSvc,
		Notifications: enqueuer,
		Outbox:        emitter,
		Logger:        env.logg,
		Now:           clock,
	})
	require.NoError(t, err)

	env.owner = models.ActivityOwner{BusinessName: "Sea Kayaks", Email: "owner@example.com"}
	require.NoError(t, conn.Create(&env.owner).Error)
	env.kayak = models.Activity{OwnerID: env.owner.ID, Title: "Sunset Kayak", Price: decimal.NewFromInt(100), Currency: "eur", Active: true}
	require.NoError(t, conn.Create(&env.kayak).Error)
	env.snorkel = models.Activity{OwnerID: env.owner.ID, Title: "Snorkel Tour", Price: decimal.NewFromInt(50), Currency: "eur", Active: true}
	require.NoError(t, conn.Create(&env.snorkel).Error)
	env.est = models.Establishment{Name: "Hotel Mar", Email: "desk@hotelmar.example", Active: true}
	require.NoError(t, conn.Create(&env.est).Error)
	return env
}

func (e *testEnv) contact() checkout.CustomerSnapshot {
	return checkout.CustomerSnapshot{Name: "Ana", Email: "ana@example.com", VisitorSessionID: "visitor-1"}
}

func (e *testEnv) single(sessionID string, amountMinor int64, referral checkout.AttributionSnapshot) CompletedSession {
	return CompletedSession{
		ID:          sessionID,
		EventID:     "evt_" + sessionID,
		AmountTotal: amountMinor,
		Currency:    "eur",
		Metadata: checkout.SingleCheckoutMetadata{
			ActivityID:   e.kayak.ID,
			Participants: 1,
			UnitPrice:    decimal.NewFromInt(100),
			Contact:      e.contact(),
			Referral:     referral,
		},
	}
}

func (e *testEnv) recordVisit(t *testing.T) checkout.AttributionSnapshot {
	t.Helper()
	link, err := e.referrals.RecordVisit(context.Background(), e.est.ID, referrals.Subject{SessionID: "visitor-1"}, nil)
	require.NoError(t, err)
	estID := link.EstablishmentID
	linkID := link.ID
	return checkout.AttributionSnapshot{HasActiveLink: true, EstablishmentID: &estID, LinkID: &linkID}
}

func (e *testEnv) countOutbox(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func (e *testEnv) countBookings(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.conn.Model(&models.Booking{}).Count(&count).Error)
	return count
}

func newID() uuid.UUID { return uuid.New() }
