package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenClaims is the subset of the auth provider's JWT the API relies on.
// The application role is not trusted from the token; it is read from profiles.
type AccessTokenClaims struct {
	Email        string         `json:"email"`
	ProviderRole string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject into a UUID.
func (c *AccessTokenClaims) UserID() (uuid.UUID, error) {
	if c == nil || c.Subject == "" {
		return uuid.Nil, fmt.Errorf("token subject missing")
	}
	return uuid.Parse(c.Subject)
}

// FullName returns the display name stored in user metadata, if any.
func (c *AccessTokenClaims) FullName() string {
	if c == nil || c.UserMetadata == nil {
		return ""
	}
	for _, key := range []string{"full_name", "name"} {
		if v, ok := c.UserMetadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
