package users

import (
	"context"
	"sync"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
)

// MemoryRepository is an in-process Repository used when no database is
// configured and in tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*models.Identity
	byName map[string]int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[int64]*models.Identity),
		byName: make(map[string]int64),
	}
}

func (r *MemoryRepository) Create(_ context.Context, id *models.Identity) (*models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[id.Username]; ok {
		return nil, models.ErrUsernameTaken
	}
	r.nextID++
	now := time.Now().UTC()
	stored := *id
	stored.ID = r.nextID
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.byID[stored.ID] = &stored
	r.byName[stored.Username] = stored.ID
	out := stored
	return &out, nil
}

func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[username]
	if !ok {
		return nil, nil
	}
	out := *r.byID[id]
	return &out, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (r *MemoryRepository) Update(_ context.Context, id int64, fields Update) (*models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	if fields.PasswordHash != nil {
		u.PasswordHash = *fields.PasswordHash
	}
	if fields.Role != nil {
		u.Role = *fields.Role
	}
	if fields.IsActive != nil {
		u.IsActive = *fields.IsActive
	}
	if fields.LastLogin != nil {
		t := *fields.LastLogin
		u.LastLogin = &t
	}
	u.UpdatedAt = time.Now().UTC()
	out := *u
	return &out, nil
}
