package users

import (
	"context"
	"fmt"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/logger"
)

// MinPasswordLength is the shortest password accepted on register or change.
const MinPasswordLength = 8

var log = logger.Named("users")

// Service is the credential store: it verifies passwords and manages identities.
type Service struct {
	repo   Repository
	hasher *Hasher
	now    func() time.Time
}

func NewService(r Repository, h *Hasher) *Service {
	return &Service{repo: r, hasher: h, now: time.Now}
}

// Verify returns the identity for a correct username/password pair. Unknown
// usernames, inactive identities and wrong passwords all return
// ErrInvalidCredentials after one bcrypt comparison.
func (s *Service) Verify(ctx context.Context, username, password string) (*models.Identity, error) {
	u, err := s.repo.GetByUsername(ctx, models.NormalizeUsername(username))
	if err != nil {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if u == nil {
		s.hasher.CompareDummy([]byte(password))
		return nil, models.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	if !s.IsActive(u) {
		log.Infof("login attempt for inactive identity %d", u.ID)
		return nil, models.ErrInvalidCredentials
	}
	if !u.Role.Valid() {
		return nil, fmt.Errorf("identity %d: %w: %q", u.ID, models.ErrUnknownRole, u.Role)
	}
	return u, nil
}

// IsActive reports whether id may authenticate.
func (s *Service) IsActive(id *models.Identity) bool {
	return id != nil && id.IsActive
}

// Register creates an active identity.
func (s *Service) Register(ctx context.Context, username, password string, role models.Role) (*models.Identity, error) {
	username = models.NormalizeUsername(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownRole, role)
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.Create(ctx, &models.Identity{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}
	log.Infof("registered identity %d (%s, role=%s)", id.ID, id.Username, id.Role)
	return id, nil
}

// Get returns the identity or ErrIdentityNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*models.Identity, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, models.ErrIdentityNotFound
	}
	return u, nil
}

// GetByUsername returns the identity or ErrIdentityNotFound.
func (s *Service) GetByUsername(ctx context.Context, username string) (*models.Identity, error) {
	u, err := s.repo.GetByUsername(ctx, models.NormalizeUsername(username))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, models.ErrIdentityNotFound
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, id int64, password string) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.update(ctx, id, Update{PasswordHash: &hash})
	return err
}

// ChangeRole takes effect on the identity's next login or refresh.
func (s *Service) ChangeRole(ctx context.Context, id int64, role models.Role) (*models.Identity, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownRole, role)
	}
	return s.update(ctx, id, Update{Role: &role})
}

// Deactivate blocks future logins and refreshes. Callers revoke live sessions separately.
func (s *Service) Deactivate(ctx context.Context, id int64) (*models.Identity, error) {
	inactive := false
	return s.update(ctx, id, Update{IsActive: &inactive})
}

func (s *Service) RecordLogin(ctx context.Context, id int64) error {
	at := s.now().UTC()
	_, err := s.update(ctx, id, Update{LastLogin: &at})
	return err
}

func (s *Service) update(ctx context.Context, id int64, fields Update) (*models.Identity, error) {
	u, err := s.repo.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, models.ErrIdentityNotFound
	}
	return u, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: at least %d characters", models.ErrWeakPassword, MinPasswordLength)
	}
	return s.hasher.Hash([]byte(password))
}
