package models

import "strings"

// Role is the account type a user picks during onboarding.
// The zero value is RoleUnset.
type Role string

const (
	RoleUnset         Role = ""
	RoleStudent       Role = "student"
	RoleTeacher       Role = "teacher"
	RoleAdministrator Role = "administrator"
)

// ParseRole maps a stored or submitted value onto a known Role.
// Anything unrecognised collapses to RoleUnset.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleStudent:
		return RoleStudent
	case RoleTeacher:
		return RoleTeacher
	case RoleAdministrator:
		return RoleAdministrator
	default:
		return RoleUnset
	}
}

// Selectable reports whether the role can be chosen by a user.
func (r Role) Selectable() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleAdministrator
}

func (r Role) String() string {
	if r == RoleUnset {
		return "unset"
	}
	return string(r)
}
