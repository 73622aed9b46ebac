package enums

import "fmt"

type NotificationAudience string

const (
	NotificationAudienceUser  NotificationAudience = "user"
	NotificationAudienceAdmin NotificationAudience = "admin"
)

var validNotificationAudiences = []NotificationAudience{
	NotificationAudienceUser,
	NotificationAudienceAdmin,
}

func (v NotificationAudience) String() string {
	return string(v)
}

func (v NotificationAudience) IsValid() bool {
	for _, candidate := range validNotificationAudiences {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseNotificationAudience converts raw input into NotificationAudience.
func ParseNotificationAudience(value string) (NotificationAudience, error) {
	for _, candidate := range validNotificationAudiences {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification audience %q", value)
}
