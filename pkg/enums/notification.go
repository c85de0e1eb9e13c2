package enums

import "fmt"

// NotificationChannel names the delivery channel of a notification.
type NotificationChannel string

const (
	NotificationChannelEmail    NotificationChannel = "email"
	NotificationChannelWhatsApp NotificationChannel = "whatsapp"
	NotificationChannelLog      NotificationChannel = "log"
)

var validNotificationChannels = []NotificationChannel{
	NotificationChannelEmail,
	NotificationChannelWhatsApp,
	NotificationChannelLog,
}

// IsValid checks whether the channel matches the canonical set.
func (n NotificationChannel) IsValid() bool {
	for _, candidate := range validNotificationChannels {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationChannel converts raw strings into NotificationChannel.
func ParseNotificationChannel(value string) (NotificationChannel, error) {
	for _, candidate := range validNotificationChannels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification channel %q", value)
}

// NotificationAudience identifies who a notification is meant for.
type NotificationAudience string

const (
	NotificationAudienceAdmin NotificationAudience = "admin"
	NotificationAudienceBuyer NotificationAudience = "buyer"
)
