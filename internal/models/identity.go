package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is one of the closed set of clinic roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
	RoleUser    Role = "user"
)

// AllRoles lists every recognised role, most privileged first.
var AllRoles = []Role{RoleAdmin, RoleManager, RoleStaff, RoleUser}

// Valid reports whether r is a recognised role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff, RoleUser:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole converts s into a Role. Unrecognised values return ErrUnknownRole.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// RoleIn reports whether r is one of allowed. An empty allowed set means any role.
func RoleIn(r Role, allowed []Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}

// Identity is a registered account. Identities are never deleted; deactivation
// flips IsActive so audit history keeps its references.
type Identity struct {
	ID           int64      `bson:"_id" json:"id"`
	Username     string     `bson:"username" json:"username"`
	PasswordHash string     `bson:"passwordHash" json:"-"`
	Role         Role       `bson:"role" json:"role"`
	IsActive     bool       `bson:"isActive" json:"isActive"`
	LastLogin    *time.Time `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// NormalizeUsername is applied before every store write and lookup.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
