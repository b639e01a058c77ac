package enums

// BookingStatus maps to the booking_status enum in Postgres.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// BookingStatusProcessing is never persisted; it labels placeholder views rendered
// before the webhook has materialized the booking.
const BookingStatusProcessing BookingStatus = "processing"

var validBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusCancelled,
}

// IsValid reports whether the value is a persistable booking status.
func (s BookingStatus) IsValid() bool { return member(validBookingStatuses, s) }

// ParseBookingStatus converts raw input into BookingStatus.
func ParseBookingStatus(value string) (BookingStatus, error) {
	return parse("booking status", value, validBookingStatuses)
}
