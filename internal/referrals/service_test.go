package referrals

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	"github.com/angelmondragon/activityhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (Service, *gorm.DB, *clock) {
	t.Helper()
	db := dbtest.Open(t)
	clk := &clock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(db),
		Catalog: catalog.NewRepository(db),
		Now:     clk.Now,
	})
	require.NoError(t, err)
	return svc, db, clk
}

func seedEstablishment(t *testing.T, db *gorm.DB, active bool) models.Establishment {
	t.Helper()
	e := models.Establishment{Name: "Hotel " + uuid.NewString()[:4], Active: active}
	require.NoError(t, db.Create(&e).Error)
	return e
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRecordVisitAndResolveBySession(t *testing.T) {
	svc, db, clk := newTestService(t)
	ctx := context.Background()
	est := seedEstablishment(t, db, true)

	link, err := svc.RecordVisit(ctx, est.ID, Subject{SessionID: "visitor-1"}, map[string]any{"source": "qr"})
	require.NoError(t, err)
	assert.Equal(t, clk.now.Add(AttributionWindow), link.ExpiresAt)
	assert.JSONEq(t, `{"source":"qr"}`, string(link.Metadata))

	active, err := svc.GetActiveLink(ctx, Subject{SessionID: "visitor-1"})
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, link.ID, active.ID)
	assert.Equal(t, est.ID, active.EstablishmentID)
}

func TestGetActiveLinkExpiresAfterWindow(t *testing.T) {
	svc, db, clk := newTestService(t)
	ctx := context.Background()
	est := seedEstablishment(t, db, true)

	_, err := svc.RecordVisit(ctx, est.ID, Subject{SessionID: "visitor-1"}, nil)
	require.NoError(t, err)

	clk.now = clk.now.Add(AttributionWindow - time.Minute)
	active, err := svc.GetActiveLink(ctx, Subject{SessionID: "visitor-1"})
	require.NoError(t, err)
	assert.NotNil(t, active)

	clk.now = clk.now.Add(2 * time.Minute)
	active, err = svc.GetActiveLink(ctx, Subject{SessionID: "visitor-1"})
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestGetActiveLinkNewestWins(t *testing.T) {
	svc, db, clk := newTestService(t)
	ctx := context.Background()
	first := seedEstablishment(t, db, true)
	second := seedEstablishment(t, db, true)
	userID := uuid.New()

	_, err := svc.RecordVisit(ctx, first.ID, Subject{UserID: &userID}, nil)
	require.NoError(t, err)
	clk.now = clk.now.Add(time.Hour)
	_, err = svc.RecordVisit(ctx, second.ID, Subject{UserID: &userID}, nil)
	require.NoError(t, err)

	active, err := svc.GetActiveLink(ctx, Subject{UserID: &userID})
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.EstablishmentID)

	var count int64
	require.NoError(t, db.Model(&models.EstablishmentReferralLink{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestGetActiveLinkUserFallsBackToSession(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	est := seedEstablishment(t, db, true)
	userID := uuid.New()

	_, err := svc.RecordVisit(ctx, est.ID, Subject{SessionID: "visitor-9"}, nil)
	require.NoError(t, err)

	active, err := svc.GetActiveLink(ctx, Subject{UserID: &userID, SessionID: "visitor-9"})
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, est.ID, active.EstablishmentID)

	none, err := svc.GetActiveLink(ctx, Subject{UserID: &userID})
	require.NoError(t, err)
	assert.Nil(t, none)

	empty, err := svc.GetActiveLink(ctx, Subject{})
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestRecordVisitValidation(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	inactive := seedEstablishment(t, db, false)
	active := seedEstablishment(t, db, true)

	_, err := svc.RecordVisit(ctx, uuid.Nil, Subject{SessionID: "v"}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.RecordVisit(ctx, active.ID, Subject{SessionID: "   "}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.RecordVisit(ctx, uuid.New(), Subject{SessionID: "v"}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.RecordVisit(ctx, inactive.ID, Subject{SessionID: "v"}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetLinkIgnoresExpiry(t *testing.T) {
	svc, db, clk := newTestService(t)
	ctx := context.Background()
	est := seedEstablishment(t, db, true)

	link, err := svc.RecordVisit(ctx, est.ID, Subject{SessionID: "visitor-1"}, nil)
	require.NoError(t, err)
	clk.now = clk.now.Add(2 * AttributionWindow)

	loaded, err := svc.GetLink(ctx, link.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, link.ID, loaded.ID)

	missing, err := svc.GetLink(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPurgeExpiredKeepsReferencedLinks(t *testing.T) {
	svc, db, clk := newTestService(t)
	ctx := context.Background()
	est := seedEstablishment(t, db, true)

	stale, err := svc.RecordVisit(ctx, est.ID, Subject{SessionID: "a"}, nil)
	require.NoError(t, err)
	referenced, err := svc.RecordVisit(ctx, est.ID, Subject{SessionID: "b"}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.EstablishmentCommission{
		EstablishmentID:  est.ID,
		BookingID:        uuid.New(),
		ActivityID:       uuid.New(),
		BookingAmount:    decimal.NewFromInt(100),
		CommissionRate:   decimal.RequireFromString("0.10"),
		CommissionAmount: decimal.NewFromInt(10),
		Status:           "pending",
		ReferralLinkID:   &referenced.ID,
	}).Error)

	clk.now = clk.now.Add(AttributionWindow + 31*24*time.Hour)
	fresh, err := svc.RecordVisit(ctx, est.ID, Subject{SessionID: "c"}, nil)
	require.NoError(t, err)

	deleted, err := svc.PurgeExpired(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	gone, err := svc.GetLink(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := svc.GetLink(ctx, referenced.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
	current, err := svc.GetLink(ctx, fresh.ID)
	require.NoError(t, err)
	assert.NotNil(t, current)
}
