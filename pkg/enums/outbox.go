package enums

import "strings"

// OutboxAggregateType maps to aggregate_type_enum. Every outbox row today hangs
// off a booking.
type OutboxAggregateType string

const AggregateBooking OutboxAggregateType = "booking"

var validAggregateTypes = []OutboxAggregateType{AggregateBooking}

func (a OutboxAggregateType) IsValid() bool { return member(validAggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", strings.TrimSpace(value), validAggregateTypes)
}

// OutboxEventType maps to event_type_enum. Notification requests are handled
// in-process by the dispatcher; settlements go to Pub/Sub.
type OutboxEventType string

const (
	EventNotificationRequested OutboxEventType = "notification_requested"
	EventBookingSettled        OutboxEventType = "booking_settled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventNotificationRequested,
	EventBookingSettled,
}

func (e OutboxEventType) IsValid() bool { return member(validOutboxEventTypes, e) }

// ParseOutboxEventType trims surrounding whitespace before matching.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", strings.TrimSpace(value), validOutboxEventTypes)
}

// OutboxEventTypes lists every known event type in declaration order.
func OutboxEventTypes() []OutboxEventType {
	return append([]OutboxEventType(nil), validOutboxEventTypes...)
}
