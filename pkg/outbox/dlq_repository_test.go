package outbox

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
)

func seedDLQ(t *testing.T, conn *gorm.DB, repo *DLQRepository, eventType enums.OutboxEventType, reason enums.OutboxDLQErrorReason, failedAt time.Time) uuid.UUID {
	t.Helper()
	eventID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     eventType,
			AggregateType: enums.AggregateBooking,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
			ErrorReason:   reason,
			AttemptCount:  1,
			FailedAt:      failedAt,
		})
	})
	if err != nil {
		t.Fatalf("insert dlq row: %v", err)
	}
	return eventID
}

func TestDLQListFiltersAndOrders(t *testing.T) {
	conn := dbtest.Open(t, &models.OutboxDLQ{})
	repo := NewDLQRepository(conn)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	older := seedDLQ(t, conn, repo, enums.EventBookingSettled, enums.OutboxDLQReasonMaxAttempts, base)
	newer := seedDLQ(t, conn, repo, enums.EventBookingSettled, enums.OutboxDLQReasonMaxAttempts, base.Add(time.Hour))
	seedDLQ(t, conn, repo, enums.EventNotificationRequested, enums.OutboxDLQReasonNonRetryable, base.Add(2*time.Hour))

	rows, err := repo.List(context.Background(), DLQFilter{Reason: enums.OutboxDLQReasonMaxAttempts})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].EventID != newer || rows[1].EventID != older {
		t.Fatalf("expected newest first, got %s then %s", rows[0].EventID, rows[1].EventID)
	}

	rows, err = repo.List(context.Background(), DLQFilter{EventType: enums.EventNotificationRequested})
	if err != nil {
		t.Fatalf("list by type: %v", err)
	}
	if len(rows) != 1 || rows[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected rows %+v", rows)
	}

	rows, err = repo.List(context.Background(), DLQFilter{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(rows) != 1 || rows[0].EventType != enums.EventNotificationRequested {
		t.Fatalf("unexpected limited rows %+v", rows)
	}
}

func TestDLQCountByReason(t *testing.T) {
	conn := dbtest.Open(t, &models.OutboxDLQ{})
	repo := NewDLQRepository(conn)
	now := time.Now().UTC()

	seedDLQ(t, conn, repo, enums.EventBookingSettled, enums.OutboxDLQReasonMaxAttempts, now)
	seedDLQ(t, conn, repo, enums.EventBookingSettled, enums.OutboxDLQReasonMaxAttempts, now)
	seedDLQ(t, conn, repo, enums.EventNotificationRequested, enums.OutboxDLQReasonNonRetryable, now)

	counts, err := repo.CountByReason(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[enums.OutboxDLQReasonMaxAttempts] != 2 || counts[enums.OutboxDLQReasonNonRetryable] != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestDLQFindByEventIDMissing(t *testing.T) {
	conn := dbtest.Open(t, &models.OutboxDLQ{})
	repo := NewDLQRepository(conn)

	row, err := repo.FindByEventID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if row != nil {
		t.Fatalf("expected nil row, got %+v", row)
	}
}

func TestInsertTxRequiresTransaction(t *testing.T) {
	repo := NewDLQRepository(nil)
	if err := repo.InsertTx(nil, models.OutboxDLQ{}); err == nil {
		t.Fatal("expected error without transaction")
	}
}

func TestTruncateDLQErrorKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", maxDLQErrorLen-1) + "é tail"
	got := truncateDLQError(msg)
	if !utf8.ValidString(got) {
		t.Fatal("truncated message is not valid utf-8")
	}
	if len(got) != maxDLQErrorLen-1 {
		t.Fatalf("expected %d bytes, got %d", maxDLQErrorLen-1, len(got))
	}
	if short := truncateDLQError("boom"); short != "boom" {
		t.Fatalf("short message changed: %q", short)
	}
}
