package enums

// NotificationAudience identifies who a booking notification is addressed to.
type NotificationAudience string

const (
	NotificationAudienceCustomer NotificationAudience = "customer"
	NotificationAudienceProvider NotificationAudience = "provider"
	NotificationAudiencePartner  NotificationAudience = "partner"
)

var validNotificationAudiences = []NotificationAudience{
	NotificationAudienceCustomer,
	NotificationAudienceProvider,
	NotificationAudiencePartner,
}

// IsValid checks whether the given audience matches the canonical enum.
func (a NotificationAudience) IsValid() bool { return member(validNotificationAudiences, a) }

// ParseNotificationAudience converts raw strings into NotificationAudience.
func ParseNotificationAudience(value string) (NotificationAudience, error) {
	return parse("notification audience", value, validNotificationAudiences)
}
