package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/metrics"
)

type fakeLock struct {
	acquired bool
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.acquired = false
	f.released++
	return nil
}

type testJob struct {
	name     string
	err      error
	panics   bool
	runs     int
	deadline time.Time
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	t.deadline, _ = ctx.Deadline()
	if t.panics {
		panic("nil booking")
	}
	return t.err
}

func newTestService(t *testing.T, lock Lock, reg prometheus.Registerer, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry:   NewRegistry(jobs...),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(reg),
		JobTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunOnceRunsAllJobsAndAggregatesFailures(t *testing.T) {
	ok := &testJob{name: "outbox-retention"}
	failing := &testJob{name: "referral-link-purge", err: errors.New("boom")}
	panicking := &testJob{name: "settlement-backfill", panics: true}
	lock := &fakeLock{}
	service := newTestService(t, lock, nil, ok, failing, panicking)

	err := service.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 failures, got %d: %v", got, err)
	}
	if !strings.Contains(err.Error(), "referral-link-purge: boom") || !strings.Contains(err.Error(), "settlement-backfill: panic") {
		t.Fatalf("unexpected error %v", err)
	}
	for _, job := range []*testJob{ok, failing, panicking} {
		if job.runs != 1 {
			t.Fatalf("expected %s to run once, ran %d", job.name, job.runs)
		}
	}
	if lock.released != 1 || lock.acquired {
		t.Fatalf("expected lock released once, released=%d", lock.released)
	}
}

func TestRunJobAppliesTimeout(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	service := newTestService(t, &fakeLock{}, nil, job)
	before := time.Now()

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.deadline.IsZero() || job.deadline.Before(before) || job.deadline.After(before.Add(time.Minute+time.Second)) {
		t.Fatalf("expected a one minute job deadline, got %s", job.deadline)
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "settlement-backfill"}
	reg := prometheus.NewRegistry()
	service := newTestService(t, &fakeLock{acquired: true}, reg, job)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped while another instance holds the lock, ran %d", job.runs)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "cron_cycles_skipped_total" {
			found = mf.GetMetric()[0].GetCounter().GetValue() == 1
		}
	}
	if !found {
		t.Fatal("expected skipped cycle to be counted")
	}
}

func TestRunStopsOnCancelAndReleasesLock(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	lock := &fakeLock{}
	service := newTestService(t, lock, nil, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if lock.released != 1 {
		t.Fatalf("expected lock released despite canceled context, released=%d", lock.released)
	}
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: logger.New(logger.Options{})}); err == nil {
		t.Fatal("expected lock error")
	}
}
