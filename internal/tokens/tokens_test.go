package tokens

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
)

const testSecret = "test-secret-32-bytes-should-be-long-enough"

func testIdentity() *models.Identity {
	return &models.Identity{ID: 42, Username: "alice", Role: models.RoleStaff, IsActive: true}
}

func mint(t *testing.T, m *Minter, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	tok, err := m.AccessToken(testIdentity(), "sess-1", now, now.Add(ttl))
	if err != nil {
		t.Fatalf("AccessToken error: %v", err)
	}
	return tok
}

func TestAccessToken_ValidAndClaims(t *testing.T) {
	m := NewMinter(testSecret, "dental360-auth")
	claims, err := m.Parse(mint(t, m, 2*time.Minute))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	id, err := claims.IdentityID()
	if err != nil || id != 42 {
		t.Fatalf("unexpected subject: id=%d err=%v", id, err)
	}
	if claims.Username != "alice" || claims.Role != models.RoleStaff || claims.SessionID != "sess-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.ID) != 32 {
		t.Fatalf("expected 128-bit hex jti, got %q", claims.ID)
	}
}

func TestAccessToken_UniquePerCall(t *testing.T) {
	m := NewMinter(testSecret, "dental360-auth")
	if mint(t, m, time.Minute) == mint(t, m, time.Minute) {
		t.Fatalf("two tokens minted in the same second must differ")
	}
}

func TestParse_ExpiredStillParses(t *testing.T) {
	m := NewMinter(testSecret, "dental360-auth")
	now := time.Now()
	tok, err := m.AccessToken(testIdentity(), "sess-1", now.Add(-time.Hour), now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("AccessToken error: %v", err)
	}
	if _, err := m.Parse(tok); err != nil {
		t.Fatalf("expired token should parse so the session store decides expiry: %v", err)
	}
}

func TestParse_WrongSecretFails(t *testing.T) {
	tok := mint(t, NewMinter(testSecret, "dental360-auth"), time.Minute)
	_, err := NewMinter("different-secret-xxxxxxxxxxxxxxxx", "dental360-auth").Parse(tok)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed with wrong secret, got %v", err)
	}
}

func TestParse_WrongIssuerFails(t *testing.T) {
	tok := mint(t, NewMinter(testSecret, "someone-else"), time.Minute)
	if _, err := NewMinter(testSecret, "dental360-auth").Parse(tok); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for foreign issuer, got %v", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	m := NewMinter(testSecret, "dental360-auth")
	for _, tok := range []string{"", "not.a.jwt", "abc"} {
		if _, err := m.Parse(tok); err == nil {
			t.Fatalf("expected parse to fail for %q", tok)
		}
	}
}

func TestParse_AlgNoneRejected(t *testing.T) {
	enc := base64.RawURLEncoding
	tok := enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." +
		enc.EncodeToString([]byte(`{"sub":"42","sid":"s","iss":"dental360-auth","exp":9999999999}`)) + "."
	if _, err := NewMinter(testSecret, "dental360-auth").Parse(tok); err == nil {
		t.Fatalf("expected parse to reject alg=none token")
	}
}

func TestParse_TamperedPayload(t *testing.T) {
	m := NewMinter(testSecret, "dental360-auth")
	parts := strings.Split(mint(t, m, 5*time.Minute), ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token parts")
	}
	enc := base64.RawURLEncoding
	payload, err := enc.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	parts[1] = enc.EncodeToString([]byte(strings.Replace(string(payload), `"staff"`, `"admin"`, 1)))
	if _, err := m.Parse(strings.Join(parts, ".")); err == nil {
		t.Fatalf("expected signature verification to fail for tampered token")
	}
}

func TestRefreshTokenAndHash(t *testing.T) {
	a, err := RefreshToken()
	if err != nil {
		t.Fatalf("RefreshToken error: %v", err)
	}
	b, _ := RefreshToken()
	if len(a) != 64 || a == b {
		t.Fatalf("expected distinct 256-bit hex tokens, got %q %q", a, b)
	}
	h := Hash(a)
	if h == a || len(h) != 64 {
		t.Fatalf("unexpected hash %q", h)
	}
	if !HashEqual(a, h) || HashEqual(b, h) {
		t.Fatalf("HashEqual mismatch")
	}
}
