package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/activityhub-backend/internal/commissions"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
)

type fakePurger struct {
	olderThan time.Duration
	err       error
}

func (f *fakePurger) PurgeExpired(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 3, f.err
}

func TestReferralLinkPurgeJobUsesConfiguredAge(t *testing.T) {
	purger := &fakePurger{}
	job, err := NewReferralLinkPurgeJob(ReferralLinkPurgeJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Referrals: purger,
		AfterDays: 45,
	})
	if err != nil {
		t.Fatalf("NewReferralLinkPurgeJob: %v", err)
	}
	if job.Name() != "referral-link-purge" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if purger.olderThan != 45*24*time.Hour {
		t.Fatalf("expected 45 days, got %v", purger.olderThan)
	}

	purger.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected purge error to propagate")
	}
}

type fakeUnsettled struct {
	rows   []models.Booking
	cutoff time.Time
	limit  int
}

func (f *fakeUnsettled) ListUnsettled(_ context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.rows, nil
}

type fakeResettler struct {
	failFor map[uuid.UUID]bool
	calls   []uuid.UUID
}

func (f *fakeResettler) Resettle(_ context.Context, id uuid.UUID) (*commissions.Settlement, error) {
	f.calls = append(f.calls, id)
	if f.failFor[id] {
		return nil, errors.New("settle failed")
	}
	return &commissions.Settlement{}, nil
}

func TestSettlementBackfillJobAttemptsEveryBooking(t *testing.T) {
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	bad := uuid.New()
	lister := &fakeUnsettled{rows: []models.Booking{{ID: uuid.New()}, {ID: bad}, {ID: uuid.New()}}}
	settler := &fakeResettler{failFor: map[uuid.UUID]bool{bad: true}}

	jobIface, err := NewSettlementBackfillJob(SettlementBackfillJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Bookings: lister,
		Settler:  settler,
	})
	if err != nil {
		t.Fatalf("NewSettlementBackfillJob: %v", err)
	}
	job := jobIface.(*settlementBackfillJob)
	job.now = func() time.Time { return now }

	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected the failed booking to be reported")
	}
	if got := len(multierr.Errors(err)); got != 1 {
		t.Fatalf("expected 1 aggregated error, got %d", got)
	}
	if len(settler.calls) != 3 {
		t.Fatalf("expected all 3 bookings attempted, got %d", len(settler.calls))
	}
	if !lister.cutoff.Equal(now.Add(-backfillMinAge)) {
		t.Fatalf("unexpected cutoff %s", lister.cutoff)
	}
	if lister.limit != backfillBatchSize {
		t.Fatalf("unexpected batch size %d", lister.limit)
	}
}

type memoryRedis struct {
	values map[string]string
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockReleasesOnlyOwnLock(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	first, err := NewRedisLock(store, "ah:lock:"+LockName, 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "ah:lock:"+LockName, time.Minute)

	ok, err := first.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed: %v", err)
	}
	if ok, _ := second.Acquire(context.Background()); ok {
		t.Fatal("expected second acquire to fail while held")
	}

	store.values["ah:lock:"+LockName] = "someone-else"
	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["ah:lock:"+LockName] != "someone-else" {
		t.Fatal("release must not drop a lock owned by another instance")
	}

	delete(store.values, "ah:lock:"+LockName)
	if ok, _ := second.Acquire(context.Background()); !ok {
		t.Fatal("expected acquire after expiry")
	}
	if err := second.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, held := store.values["ah:lock:"+LockName]; held {
		t.Fatal("expected owner release to delete the key")
	}
	if err := second.Release(context.Background()); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
}
