package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned by Parse for anything that is not a token this
// service signed.
var ErrMalformed = errors.New("malformed access token")

// Claims carried by an access token. Expiry is enforced against the session
// record, not here, so an expired but authentic token still parses.
type Claims struct {
	Username  string      `json:"username"`
	Role      models.Role `json:"role"`
	SessionID string      `json:"sid"`
	jwt.RegisteredClaims
}

// IdentityID returns the numeric subject.
func (c *Claims) IdentityID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Minter signs and parses HS256 access tokens.
type Minter struct {
	secret []byte
	issuer string
}

func NewMinter(secret, issuer string) *Minter {
	return &Minter{secret: []byte(secret), issuer: issuer}
}

// AccessToken creates a signed access token for a session and returns it with its jti.
func (m *Minter) AccessToken(id *models.Identity, sessionID string, issuedAt, expiresAt time.Time) (string, error) {
	jti, err := randomHex(16)
	if err != nil {
		return "", err
	}
	claims := Claims{
		Username:  id.Username,
		Role:      id.Role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.ID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString(m.secret)
}

// Parse verifies signature, algorithm and issuer.
func (m *Minter) Parse(token string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.Issuer != m.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrMalformed, claims.Issuer)
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing sid", ErrMalformed)
	}
	return &claims, nil
}

// RefreshToken returns a new opaque 256-bit refresh token.
func RefreshToken() (string, error) {
	return randomHex(32)
}

// Hash returns the SHA-256 hex digest under which a token is stored.
func Hash(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// HashEqual compares token against a stored hash in constant time.
func HashEqual(token, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(token)), []byte(storedHash)) == 1
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}
