package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
)

// MemoryRepository keeps sessions in process. Redeem is serialised by the
// repository mutex.
type MemoryRepository struct {
	mu         sync.Mutex
	byID       map[string]*Session
	byAccess   map[string]string
	byRefresh  map[string]string
	byIdentity map[int64]map[string]struct{}
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*Session),
		byAccess:   make(map[string]string),
		byRefresh:  make(map[string]string),
		byIdentity: make(map[int64]map[string]struct{}),
	}
}

func (r *MemoryRepository) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := s.clone()
	r.byID[s.ID] = stored
	r.byAccess[s.AccessHash] = s.ID
	r.byRefresh[s.RefreshHash] = s.ID
	set, ok := r.byIdentity[s.IdentityID]
	if !ok {
		set = make(map[string]struct{})
		r.byIdentity[s.IdentityID] = set
	}
	set[s.ID] = struct{}{}
	return nil
}

func (r *MemoryRepository) lookup(index map[string]string, hash string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := index[hash]
	if !ok {
		return nil
	}
	return r.byID[id].clone()
}

func (r *MemoryRepository) GetByAccess(_ context.Context, accessHash string) (*Session, error) {
	return r.lookup(r.byAccess, accessHash), nil
}

func (r *MemoryRepository) GetByRefresh(_ context.Context, refreshHash string) (*Session, error) {
	return r.lookup(r.byRefresh, refreshHash), nil
}

func (r *MemoryRepository) Redeem(_ context.Context, refreshHash, successorID string, at time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRefresh[refreshHash]
	if !ok {
		return nil, models.ErrInvalidRefreshToken
	}
	s := r.byID[id]
	if s.Revoked {
		return nil, models.ErrInvalidRefreshToken
	}
	s.markRevoked(ReasonRotated, at)
	s.ReplacedBy = successorID
	return s.clone(), nil
}

func (r *MemoryRepository) Revoke(_ context.Context, id, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok && !s.Revoked {
		s.markRevoked(reason, at)
	}
	return nil
}

func (r *MemoryRepository) RevokeByIdentity(_ context.Context, identityID int64, reason string, at time.Time) ([]*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for id := range r.byIdentity[identityID] {
		s := r.byID[id]
		if s.Revoked {
			continue
		}
		s.markRevoked(reason, at)
		out = append(out, s.clone())
	}
	return out, nil
}
