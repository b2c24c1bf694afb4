package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/audit"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"github.com/fernando2601/Dental360-APIC--sub004/internal/tokens"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/logger"
	"github.com/google/uuid"
)

var log = logger.Named("sessions")

// IdentityStore is the slice of the credential store sessions depend on.
type IdentityStore interface {
	Get(ctx context.Context, id int64) (*models.Identity, error)
	IsActive(id *models.Identity) bool
	RecordLogin(ctx context.Context, id int64) error
}

// Config controls token lifetimes.
type Config struct {
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RememberMeMultiplier float64
	SinglePerIdentity    bool
}

// Issued is a freshly minted session with its raw tokens. The raw tokens are
// never stored.
type Issued struct {
	Session      *Session
	Identity     *models.Identity
	AccessToken  string
	RefreshToken string
}

// Service issues, validates, refreshes and revokes sessions.
type Service struct {
	repo        Repository
	minter      *tokens.Minter
	identities  IdentityStore
	cfg         Config
	revocations *RevocationList
	audit       audit.Recorder
	now         func() time.Time
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithRevocationList enables the Redis revocation fast path.
func WithRevocationList(l *RevocationList) Option { return func(s *Service) { s.revocations = l } }

// WithAudit records session lifecycle events.
func WithAudit(r audit.Recorder) Option { return func(s *Service) { s.audit = r } }

func NewService(r Repository, m *tokens.Minter, ids IdentityStore, cfg Config, opts ...Option) *Service {
	if cfg.RememberMeMultiplier < 1 {
		cfg.RememberMeMultiplier = 1
	}
	s := &Service{repo: r, minter: m, identities: ids, cfg: cfg, audit: audit.Nop{}, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) refreshWindow(rememberMe bool) time.Duration {
	if rememberMe {
		return time.Duration(float64(s.cfg.RefreshTTL) * s.cfg.RememberMeMultiplier)
	}
	return s.cfg.RefreshTTL
}

// mint builds, signs and persists a session for id.
func (s *Service) mint(ctx context.Context, sessionID, lineage string, id *models.Identity, rememberMe bool, now time.Time) (*Issued, error) {
	if !id.Role.Valid() {
		return nil, fmt.Errorf("identity %d: %w: %q", id.ID, models.ErrUnknownRole, id.Role)
	}
	sess := &Session{
		ID:               sessionID,
		Lineage:          lineage,
		IdentityID:       id.ID,
		Username:         id.Username,
		Role:             id.Role,
		IssuedAt:         now,
		ExpiresAt:        now.Add(s.cfg.AccessTTL),
		RefreshExpiresAt: now.Add(s.refreshWindow(rememberMe)),
		RememberMe:       rememberMe,
	}
	access, err := s.minter.AccessToken(id, sess.ID, sess.IssuedAt, sess.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := tokens.RefreshToken()
	if err != nil {
		return nil, err
	}
	sess.AccessHash = tokens.Hash(access)
	sess.RefreshHash = tokens.Hash(refresh)
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return &Issued{Session: sess, Identity: id, AccessToken: access, RefreshToken: refresh}, nil
}

// Issue starts a new session lineage for an already verified identity.
func (s *Service) Issue(ctx context.Context, id *models.Identity, rememberMe bool) (*Issued, error) {
	if !s.identities.IsActive(id) {
		return nil, models.ErrInvalidCredentials
	}
	now := s.now().UTC()
	if s.cfg.SinglePerIdentity {
		if _, err := s.RevokeAll(ctx, id.ID, ReasonSuperseded); err != nil {
			return nil, fmt.Errorf("supersede sessions: %w", err)
		}
	}
	iss, err := s.mint(ctx, uuid.NewString(), uuid.NewString(), id, rememberMe, now)
	if err != nil {
		return nil, err
	}
	if err := s.identities.RecordLogin(ctx, id.ID); err != nil {
		log.Warnf("record login for identity %d: %v", id.ID, err)
	}
	s.record(ctx, audit.EventLogin, iss.Session, "")
	log.Debugf("issued session %s for identity %d (rememberMe=%v)", iss.Session.ID, id.ID, rememberMe)
	return iss, nil
}

// Validate resolves an access token to its principal. Unknown, forged and
// foreign tokens are ErrTokenNotFound; the session decides revoked and expired.
func (s *Service) Validate(ctx context.Context, accessToken string) (*Principal, error) {
	if accessToken == "" {
		return nil, models.ErrTokenNotFound
	}
	claims, err := s.minter.Parse(accessToken)
	if err != nil {
		return nil, models.ErrTokenNotFound
	}
	hash := tokens.Hash(accessToken)
	revoked, err := s.revocations.Contains(ctx, hash)
	if err != nil {
		log.Warnf("revocation list unavailable, falling back to session store: %v", err)
	}
	if revoked {
		return nil, models.ErrTokenRevoked
	}
	sess, err := s.repo.GetByAccess(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess == nil || sess.ID != claims.SessionID {
		return nil, models.ErrTokenNotFound
	}
	if sess.Revoked {
		return nil, models.ErrTokenRevoked
	}
	if sess.AccessExpired(s.now()) {
		return nil, models.ErrTokenExpired
	}
	return &Principal{
		IdentityID: sess.IdentityID,
		Username:   sess.Username,
		Role:       sess.Role,
		SessionID:  sess.ID,
		ExpiresAt:  sess.ExpiresAt,
	}, nil
}

// Refresh redeems a refresh token for a successor session in the same lineage.
// The old session is revoked in the same step; a token is redeemable once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Issued, error) {
	if refreshToken == "" {
		return nil, models.ErrInvalidRefreshToken
	}
	hash := tokens.Hash(refreshToken)
	sess, err := s.repo.GetByRefresh(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess == nil {
		return nil, models.ErrInvalidRefreshToken
	}
	if sess.Revoked {
		if sess.RevokedReason == ReasonRotated {
			log.Warnf("rotated refresh token presented again (session %s, lineage %s)", sess.ID, sess.Lineage)
			s.record(ctx, audit.EventRefreshReuse, sess, "")
		}
		return nil, models.ErrInvalidRefreshToken
	}
	now := s.now().UTC()
	if sess.RefreshExpired(now) {
		return nil, models.ErrRefreshExpired
	}

	id, err := s.identities.Get(ctx, sess.IdentityID)
	if err != nil && !errors.Is(err, models.ErrIdentityNotFound) {
		return nil, fmt.Errorf("reload identity %d: %w", sess.IdentityID, err)
	}
	if err != nil || !s.identities.IsActive(id) {
		if rerr := s.revokeSession(ctx, sess, ReasonDeactivated); rerr != nil {
			log.Warnf("end lineage %s of inactive identity %d: %v", sess.Lineage, sess.IdentityID, rerr)
		}
		return nil, models.ErrInvalidRefreshToken
	}

	// The successor is stored before the old token is redeemed, so a failed
	// write leaves the old token usable.
	iss, err := s.mint(ctx, uuid.NewString(), sess.Lineage, id, sess.RememberMe, now)
	if err != nil {
		log.Errorf("store successor of session %s: %v", sess.ID, err)
		return nil, err
	}
	if _, err := s.repo.Redeem(ctx, hash, iss.Session.ID, now); err != nil {
		if rerr := s.repo.Revoke(ctx, iss.Session.ID, ReasonSuperseded, now); rerr != nil {
			log.Warnf("discard unused successor %s: %v", iss.Session.ID, rerr)
		}
		return nil, err
	}
	s.revokeAccess(ctx, sess)
	s.record(ctx, audit.EventRefresh, iss.Session, sess.ID)
	return iss, nil
}

// Revoke ends the session behind an access token. Expired tokens may still be
// revoked; revoking twice is not an error. The returned session is the state
// before this call, so Revoked reports whether it was already ended.
func (s *Service) Revoke(ctx context.Context, accessToken, reason string) (*Session, error) {
	sess, err := s.repo.GetByAccess(ctx, tokens.Hash(accessToken))
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess == nil {
		return nil, models.ErrTokenNotFound
	}
	return sess, s.revokeSession(ctx, sess, reason)
}

// RevokeRefresh ends the session behind a refresh token.
func (s *Service) RevokeRefresh(ctx context.Context, refreshToken, reason string) (*Session, error) {
	sess, err := s.repo.GetByRefresh(ctx, tokens.Hash(refreshToken))
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess == nil {
		return nil, models.ErrInvalidRefreshToken
	}
	return sess, s.revokeSession(ctx, sess, reason)
}

// RevokeAll ends every live session of an identity and returns how many were revoked.
func (s *Service) RevokeAll(ctx context.Context, identityID int64, reason string) (int, error) {
	revoked, err := s.repo.RevokeByIdentity(ctx, identityID, reason, s.now().UTC())
	for _, sess := range revoked {
		s.revokeAccess(ctx, sess)
		s.record(ctx, audit.EventRevoked, sess, reason)
	}
	if err != nil {
		return len(revoked), fmt.Errorf("revoke sessions of identity %d: %w", identityID, err)
	}
	if len(revoked) > 0 {
		log.Infof("revoked %d session(s) of identity %d (%s)", len(revoked), identityID, reason)
	}
	return len(revoked), nil
}

func (s *Service) revokeSession(ctx context.Context, sess *Session, reason string) error {
	if sess.Revoked {
		return nil
	}
	if err := s.repo.Revoke(ctx, sess.ID, reason, s.now().UTC()); err != nil {
		return fmt.Errorf("revoke session %s: %w", sess.ID, err)
	}
	s.revokeAccess(ctx, sess)
	event := audit.EventRevoked
	if reason == ReasonLogout {
		event = audit.EventLogout
	}
	s.record(ctx, event, sess, reason)
	return nil
}

func (s *Service) revokeAccess(ctx context.Context, sess *Session) {
	if err := s.revocations.Add(ctx, sess.AccessHash, sess.ExpiresAt); err != nil {
		log.Warnf("add session %s to revocation list: %v", sess.ID, err)
	}
}

func (s *Service) record(ctx context.Context, typ string, sess *Session, detail string) {
	err := s.audit.Record(ctx, audit.Event{
		Type:       typ,
		IdentityID: sess.IdentityID,
		Username:   sess.Username,
		SessionID:  sess.ID,
		Lineage:    sess.Lineage,
		Detail:     detail,
		At:         s.now().UTC(),
	})
	if err != nil {
		log.Warnf("audit %s for session %s: %v", typ, sess.ID, err)
	}
}
