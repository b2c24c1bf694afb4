package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisRepository implements Repository using Redis as the backing store.
//
//	<prefix><id>           session JSON, TTL = refreshExpiresAt - now
//	<prefix>access:<hash>  session id
//	<prefix>refresh:<hash> session id
//	<prefix>identity:<id>  set of session ids, pruned lazily
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based session repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(id string) string          { return r.prefix + id }
func (r *RedisRepository) accessKey(hash string) string  { return r.prefix + "access:" + hash }
func (r *RedisRepository) refreshKey(hash string) string { return r.prefix + "refresh:" + hash }
func (r *RedisRepository) identityKey(id int64) string {
	return r.prefix + "identity:" + strconv.FormatInt(id, 10)
}

// ttl keeps revoked sessions readable until their refresh window closes, so a
// revoked token reports as revoked rather than unknown.
func ttl(s *Session) time.Duration {
	exp := time.Until(s.RefreshExpiresAt)
	if exp <= 0 {
		// ensure a minimal TTL so Redis won't store expired sessions
		exp = time.Second
	}
	return exp
}

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	exp := ttl(s)
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.key(s.ID), b, exp)
		p.Set(ctx, r.accessKey(s.AccessHash), s.ID, exp)
		p.Set(ctx, r.refreshKey(s.RefreshHash), s.ID, exp)
		p.SAdd(ctx, r.identityKey(s.IdentityID), s.ID)
		return nil
	})
	return err
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisRepository) get(ctx context.Context, c getter, id string) (*Session, error) {
	b, err := c.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisRepository) byIndex(ctx context.Context, indexKey string) (*Session, error) {
	id, err := r.client.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return r.get(ctx, r.client, id)
}

func (r *RedisRepository) GetByAccess(ctx context.Context, accessHash string) (*Session, error) {
	return r.byIndex(ctx, r.accessKey(accessHash))
}

func (r *RedisRepository) GetByRefresh(ctx context.Context, refreshHash string) (*Session, error) {
	return r.byIndex(ctx, r.refreshKey(refreshHash))
}

// mutate applies fn to the stored session inside WATCH/MULTI. fn returns false
// to leave the session untouched.
func (r *RedisRepository) mutate(ctx context.Context, id string, fn func(*Session) (bool, error)) (*Session, error) {
	key := r.key(id)
	var result *Session
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		s, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if s == nil {
			result = nil
			return nil
		}
		changed, err := fn(s)
		if err != nil || !changed {
			result = nil
			return err
		}
		b, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, ttl(s))
			return nil
		})
		result = s
		return err
	}, key)
	return result, err
}

func (r *RedisRepository) Redeem(ctx context.Context, refreshHash, successorID string, at time.Time) (*Session, error) {
	id, err := r.client.Get(ctx, r.refreshKey(refreshHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrInvalidRefreshToken
		}
		return nil, err
	}
	s, err := r.mutate(ctx, id, func(s *Session) (bool, error) {
		if s.Revoked {
			return false, models.ErrInvalidRefreshToken
		}
		s.markRevoked(ReasonRotated, at)
		s.ReplacedBy = successorID
		return true, nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		// another redeemer committed first
		return nil, models.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, models.ErrInvalidRefreshToken
	}
	return s, nil
}

const maxRevokeAttempts = 5

func (r *RedisRepository) revoke(ctx context.Context, id, reason string, at time.Time) (*Session, error) {
	var err error
	for i := 0; i < maxRevokeAttempts; i++ {
		var s *Session
		s, err = r.mutate(ctx, id, func(s *Session) (bool, error) {
			if s.Revoked {
				return false, nil
			}
			s.markRevoked(reason, at)
			return true, nil
		})
		if !errors.Is(err, redis.TxFailedErr) {
			return s, err
		}
	}
	return nil, err
}

func (r *RedisRepository) Revoke(ctx context.Context, id, reason string, at time.Time) error {
	_, err := r.revoke(ctx, id, reason, at)
	return err
}

func (r *RedisRepository) RevokeByIdentity(ctx context.Context, identityID int64, reason string, at time.Time) ([]*Session, error) {
	setKey := r.identityKey(identityID)
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	var out []*Session
	for _, id := range ids {
		exists, err := r.client.Exists(ctx, r.key(id)).Result()
		if err != nil {
			return out, err
		}
		if exists == 0 {
			_ = r.client.SRem(ctx, setKey, id).Err()
			continue
		}
		s, err := r.revoke(ctx, id, reason, at)
		if err != nil {
			return out, err
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}
