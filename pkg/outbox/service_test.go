package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
)

func newTestService(t *testing.T) (*Service, *Repository, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(conn)
	return NewService(repo, nil), repo, conn
}

func TestEmitWritesEnvelope(t *testing.T) {
	svc, _, conn := newTestService(t)
	bookingID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventBookingSettled,
			AggregateType: enums.AggregateBooking,
			AggregateID:   bookingID,
			Actor:         WebhookActor("evt_1"),
			Data:          map[string]string{"bookingId": bookingID.String()},
		})
	})
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	var rows []models.OutboxEvent
	if err := conn.Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	var envelope PayloadEnvelope
	if err := json.Unmarshal(rows[0].Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Version != 1 {
		t.Fatalf("expected default version 1, got %d", envelope.Version)
	}
	if envelope.EventID == "" || envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope missing identity: %+v", envelope)
	}
	if envelope.Actor == nil || envelope.Actor.ID != "evt_1" {
		t.Fatalf("unexpected actor %+v", envelope.Actor)
	}
	if rows[0].DedupeKey != nil {
		t.Fatalf("expected no dedupe key, got %q", *rows[0].DedupeKey)
	}
}

func TestEmitSkipsDuplicateDedupeKey(t *testing.T) {
	svc, _, conn := newTestService(t)
	event := DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateBooking,
		AggregateID:   uuid.New(),
		Data:          map[string]string{"audience": "customer"},
		DedupeKey:     "notification:booking:customer",
	}

	for i := 0; i < 2; i++ {
		if err := conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, event)
		}); err != nil {
			t.Fatalf("emit %d failed: %v", i, err)
		}
	}

	var count int64
	if err := conn.Model(&models.OutboxEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single deduplicated row, got %d", count)
	}
}

func TestEmitRejectsUnknownTypes(t *testing.T) {
	svc, _, conn := newTestService(t)
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.OutboxEventType("order_created"),
			AggregateType: enums.AggregateBooking,
			AggregateID:   uuid.New(),
		})
	})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for unknown event type, got %v", err)
	}
	err = conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventBookingSettled,
			AggregateType: enums.AggregateBooking,
		})
	})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for missing aggregate id, got %v", err)
	}
	if err := svc.Emit(context.Background(), nil, DomainEvent{}); err == nil {
		t.Fatal("expected error without transaction")
	}
}

func TestEmitStampsOccurredAtFromClock(t *testing.T) {
	svc, _, conn := newTestService(t)
	fixed := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventBookingSettled,
			AggregateType: enums.AggregateBooking,
			AggregateID:   uuid.New(),
			Version:       3,
		})
	})
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	var row models.OutboxEvent
	if err := conn.First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	var envelope PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !envelope.OccurredAt.Equal(fixed) || envelope.Version != 3 {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestRepositoryDispatchLifecycle(t *testing.T) {
	_, repo, conn := newTestService(t)

	fresh := models.OutboxEvent{
		EventType:     enums.EventBookingSettled,
		AggregateType: enums.AggregateBooking,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
	}
	exhausted := fresh
	exhausted.AggregateID = uuid.New()
	exhausted.AttemptCount = 10
	for _, row := range []models.OutboxEvent{fresh, exhausted} {
		if err := repo.Insert(conn, row); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	var batch []models.OutboxEvent
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 10, time.Now())
		return err
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(batch) != 1 || batch[0].AggregateID != fresh.AggregateID {
		t.Fatalf("expected only the fresh row, got %+v", batch)
	}

	id := batch[0].ID
	retryAt := time.Now().UTC().Add(time.Minute).Truncate(time.Second)
	if err := repo.MarkFailedTx(conn, id, errors.New("smtp timeout"), retryAt); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	row, err := repo.FindByID(context.Background(), id)
	if err != nil || row == nil {
		t.Fatalf("find: %v", err)
	}
	if row.AttemptCount != 1 || row.LastError == nil || *row.LastError != "smtp timeout" {
		t.Fatalf("unexpected failed row %+v", row)
	}
	if row.NextAttemptAt == nil || !row.NextAttemptAt.Equal(retryAt) {
		t.Fatalf("expected next attempt at %s, got %v", retryAt, row.NextAttemptAt)
	}

	fetchAt := func(now time.Time) []models.OutboxEvent {
		var due []models.OutboxEvent
		if err := conn.Transaction(func(tx *gorm.DB) error {
			var err error
			due, err = repo.FetchUnpublishedForPublish(tx, 10, 10, now)
			return err
		}); err != nil {
			t.Fatalf("fetch: %v", err)
		}
		return due
	}
	if due := fetchAt(retryAt.Add(-time.Second)); len(due) != 0 {
		t.Fatalf("row must stay parked before its retry time, got %d", len(due))
	}
	if due := fetchAt(retryAt.Add(time.Second)); len(due) != 1 || due[0].ID != id {
		t.Fatalf("expected the row once due, got %+v", due)
	}

	if err := repo.MarkPublishedTx(conn, id); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	row, _ = repo.FindByID(context.Background(), id)
	if row.PublishedAt == nil || row.LastError != nil || row.NextAttemptAt != nil {
		t.Fatalf("expected published row with cleared error, got %+v", row)
	}

	if err := repo.MarkTerminalTx(conn, id, errors.New("bad payload"), 10); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}
	row, _ = repo.FindByID(context.Background(), id)
	if row.AttemptCount != 10 {
		t.Fatalf("expected terminal attempt count, got %d", row.AttemptCount)
	}
}

func TestDeletePublishedBefore(t *testing.T) {
	_, repo, conn := newTestService(t)
	old := time.Now().UTC().Add(-48 * time.Hour)
	published := old

	rows := []models.OutboxEvent{
		{EventType: enums.EventBookingSettled, AggregateType: enums.AggregateBooking, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old, PublishedAt: &published},
		{EventType: enums.EventBookingSettled, AggregateType: enums.AggregateBooking, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old, AttemptCount: 6},
		{EventType: enums.EventBookingSettled, AggregateType: enums.AggregateBooking, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old},
		{EventType: enums.EventBookingSettled, AggregateType: enums.AggregateBooking, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &published},
	}
	for _, row := range rows {
		if err := repo.Insert(conn, row); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	deleted, err := repo.DeletePublishedBefore(context.Background(), conn, time.Now().UTC().Add(-24*time.Hour), 5)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 rows deleted, got %d", deleted)
	}
}
