package enums

import "fmt"

type EmailAudience string

const (
	AudienceAll            EmailAudience = "all"
	AudienceWithCredits    EmailAudience = "with_credits"
	AudienceWithoutCredits EmailAudience = "without_credits"
	AudienceMarketing      EmailAudience = "marketing"
	AudienceRecent         EmailAudience = "recent"
)

var validEmailAudiences = []EmailAudience{
	AudienceAll,
	AudienceWithCredits,
	AudienceWithoutCredits,
	AudienceMarketing,
	AudienceRecent,
}

func (v EmailAudience) String() string {
	return string(v)
}

func (v EmailAudience) IsValid() bool {
	for _, candidate := range validEmailAudiences {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseEmailAudience converts raw input into EmailAudience.
func ParseEmailAudience(value string) (EmailAudience, error) {
	for _, candidate := range validEmailAudiences {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid email audience %q", value)
}
