package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/activityhub-backend/internal/commissions"
	"github.com/angelmondragon/activityhub-backend/internal/referrals"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox"
)

type fakeSettler struct {
	called uuid.UUID
	result *commissions.Settlement
	err    error
}

func (f *fakeSettler) Resettle(_ context.Context, id uuid.UUID) (*commissions.Settlement, error) {
	f.called = id
	return f.result, f.err
}

type fakeDLQ struct {
	filter outbox.DLQFilter
	rows   []models.OutboxDLQ
	counts map[enums.OutboxDLQErrorReason]int64
}

func (f *fakeDLQ) List(_ context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error) {
	f.filter = filter
	return f.rows, nil
}

func (f *fakeDLQ) CountByReason(context.Context) (map[enums.OutboxDLQErrorReason]int64, error) {
	return f.counts, nil
}

type fakeLinks struct {
	subject referrals.Subject
	link    *referrals.Link
}

func (f *fakeLinks) GetActiveLink(_ context.Context, subject referrals.Subject) (*referrals.Link, error) {
	f.subject = subject
	return f.link, nil
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	closed := false
	a.close = func() error {
		closed = true
		return nil
	}
	root := newRootCmd(func(context.Context) (*app, error) { return a, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		assert.True(t, closed, "expected app to be closed after the command")
	}
	return out.String(), err
}

func TestResettlePrintsBreakdown(t *testing.T) {
	bookingID := uuid.New()
	estID := uuid.New()
	settler := &fakeSettler{result: &commissions.Settlement{
		Breakdown: commissions.Breakdown{
			Total:                   decimal.RequireFromString("100"),
			PlatformFeeGross:        decimal.RequireFromString("20"),
			PlatformNet:             decimal.RequireFromString("10"),
			EstablishmentCommission: decimal.RequireFromString("10"),
			ProviderAmount:          decimal.RequireFromString("80"),
			HasActiveLink:           true,
		},
		EstablishmentID: &estID,
		InvoiceNumber:   "INV-COM-1",
	}}

	out, err := execute(t, &app{settler: settler}, "resettle", "--booking-id", bookingID.String())
	require.NoError(t, err)
	assert.Equal(t, bookingID, settler.called)

	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "80", view["providerAmount"])
	assert.Equal(t, estID.String(), view["establishmentId"])
	assert.Equal(t, "INV-COM-1", view["invoiceNumber"])
}

func TestResettleRejectsBadID(t *testing.T) {
	settler := &fakeSettler{}
	_, err := execute(t, &app{settler: settler}, "resettle", "--booking-id", "nope")
	require.Error(t, err)
	assert.Equal(t, uuid.Nil, settler.called)
}

func TestResettleRequiresFlag(t *testing.T) {
	_, err := execute(t, &app{settler: &fakeSettler{}}, "resettle")
	require.Error(t, err)
}

func TestResettleSurfacesServiceError(t *testing.T) {
	settler := &fakeSettler{err: errors.New("booking not found")}
	_, err := execute(t, &app{settler: settler}, "resettle", "--booking-id", uuid.NewString())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "booking not found")
}

func TestDLQListYAML(t *testing.T) {
	msg := "recipient rejected"
	dlq := &fakeDLQ{rows: []models.OutboxDLQ{{
		EventID:      uuid.New(),
		EventType:    enums.EventNotificationRequested,
		AggregateID:  uuid.New(),
		ErrorReason:  enums.OutboxDLQReasonNonRetryable,
		ErrorMessage: &msg,
		AttemptCount: 1,
		FailedAt:     time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}}}

	out, err := execute(t, &app{dlq: dlq}, "dlq", "list", "-n", "5", "-o", "yaml")
	require.NoError(t, err)
	assert.Equal(t, 5, dlq.filter.Limit)
	assert.Contains(t, out, "reason: non_retryable")
	assert.Contains(t, out, "error: recipient rejected")
	assert.Contains(t, out, "2026-05-01T10:00:00Z")
}

func TestDLQListDefaultsLimit(t *testing.T) {
	dlq := &fakeDLQ{}
	out, err := execute(t, &app{dlq: dlq}, "dlq", "list", "--limit", "0")
	require.NoError(t, err)
	assert.Equal(t, defaultDLQLimit, dlq.filter.Limit)
	assert.Empty(t, dlq.filter.Reason)
	assert.JSONEq(t, `[]`, out)
}

func TestDLQListFiltersByReasonAndType(t *testing.T) {
	dlq := &fakeDLQ{}
	_, err := execute(t, &app{dlq: dlq}, "dlq", "list", "--reason", "max_attempts", "--event-type", string(enums.EventBookingSettled))
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlq.filter.Reason)
	assert.Equal(t, enums.EventBookingSettled, dlq.filter.EventType)
}

func TestDLQListRejectsUnknownReason(t *testing.T) {
	_, err := execute(t, &app{dlq: &fakeDLQ{}}, "dlq", "list", "--reason", "gave_up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gave_up")
}

func TestDLQSummary(t *testing.T) {
	dlq := &fakeDLQ{counts: map[enums.OutboxDLQErrorReason]int64{
		enums.OutboxDLQReasonMaxAttempts:  3,
		enums.OutboxDLQReasonNonRetryable: 1,
	}}
	out, err := execute(t, &app{dlq: dlq}, "dlq", "summary")
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_attempts":3,"non_retryable":1}`, out)
}

func TestLinksActiveBySession(t *testing.T) {
	estID := uuid.New()
	session := "visitor-1"
	links := &fakeLinks{link: &referrals.Link{ID: uuid.New(), EstablishmentID: estID, SessionID: &session}}

	out, err := execute(t, &app{links: links}, "links", "active", "--session-id", session)
	require.NoError(t, err)
	assert.Equal(t, session, links.subject.SessionID)
	assert.Nil(t, links.subject.UserID)
	assert.Contains(t, out, estID.String())
}

func TestLinksActiveNoLink(t *testing.T) {
	userID := uuid.New()
	links := &fakeLinks{}
	out, err := execute(t, &app{links: links}, "links", "active", "--user-id", userID.String())
	require.NoError(t, err)
	require.NotNil(t, links.subject.UserID)
	assert.Equal(t, userID, *links.subject.UserID)
	assert.JSONEq(t, `{"link":null}`, out)
}

func TestLinksActiveRequiresSubject(t *testing.T) {
	_, err := execute(t, &app{links: &fakeLinks{}}, "links", "active")
	require.Error(t, err)
}

func TestRejectsUnknownOutputFormat(t *testing.T) {
	_, err := execute(t, &app{dlq: &fakeDLQ{}}, "dlq", "list", "-o", "xml")
	require.Error(t, err)
}
