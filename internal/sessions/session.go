package sessions

import (
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
)

// Revocation reasons recorded on a session.
const (
	ReasonLogout      = "logout"
	ReasonRotated     = "rotated"
	ReasonAdmin       = "admin"
	ReasonDeactivated = "deactivated"
	ReasonSuperseded  = "superseded"
)

// Session is one issued access/refresh pair. Only token hashes are stored.
// Sessions created by refreshing the same login share a Lineage.
type Session struct {
	ID               string      `bson:"_id" json:"id"`
	Lineage          string      `bson:"lineage" json:"lineage"`
	IdentityID       int64       `bson:"identityId" json:"identityId"`
	Username         string      `bson:"username" json:"username"`
	Role             models.Role `bson:"role" json:"role"`
	AccessHash       string      `bson:"accessHash" json:"accessHash"`
	RefreshHash      string      `bson:"refreshHash" json:"refreshHash"`
	IssuedAt         time.Time   `bson:"issuedAt" json:"issuedAt"`
	ExpiresAt        time.Time   `bson:"expiresAt" json:"expiresAt"`
	RefreshExpiresAt time.Time   `bson:"refreshExpiresAt" json:"refreshExpiresAt"`
	RememberMe       bool        `bson:"rememberMe" json:"rememberMe"`
	Revoked          bool        `bson:"revoked" json:"revoked"`
	RevokedAt        *time.Time  `bson:"revokedAt,omitempty" json:"revokedAt,omitempty"`
	RevokedReason    string      `bson:"revokedReason,omitempty" json:"revokedReason,omitempty"`
	ReplacedBy       string      `bson:"replacedBy,omitempty" json:"replacedBy,omitempty"`
}

// AccessExpired reports whether the access token is past its expiry at now.
func (s *Session) AccessExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RefreshExpired reports whether the refresh token is past its expiry at now.
func (s *Session) RefreshExpired(now time.Time) bool {
	return !now.Before(s.RefreshExpiresAt)
}

func (s *Session) markRevoked(reason string, at time.Time) {
	t := at.UTC()
	s.Revoked = true
	s.RevokedAt = &t
	s.RevokedReason = reason
}

func (s *Session) clone() *Session {
	out := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		out.RevokedAt = &t
	}
	return &out
}

// Principal is the validated caller behind an access token.
type Principal struct {
	IdentityID int64       `json:"id"`
	Username   string      `json:"username"`
	Role       models.Role `json:"role"`
	SessionID  string      `json:"sessionId"`
	ExpiresAt  time.Time   `json:"expiresAt"`
}
