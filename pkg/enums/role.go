package enums

import "fmt"

// Role is the access level carried by a profile.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

var validRoles = []Role{
	RoleCustomer,
	RoleStaff,
	RoleAdmin,
}

func (v Role) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical role enum.
func (v Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}

// CanProcessDocuments is true for roles allowed to work the document queue.
func (v Role) CanProcessDocuments() bool {
	return v == RoleStaff || v == RoleAdmin
}
