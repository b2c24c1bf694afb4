package sessions

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList is a Redis fast path consulted before the session store. A nil
// list, or one without a client, is a no-op.
type RevocationList struct {
	client *redis.Client
	prefix string
}

func NewRevocationList(client *redis.Client) *RevocationList {
	return &RevocationList{client: client, prefix: "revoked:access:"}
}

// Add marks an access token hash revoked until the token would have expired anyway.
func (l *RevocationList) Add(ctx context.Context, accessHash string, until time.Time) error {
	if l == nil || l.client == nil {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return l.client.Set(ctx, l.prefix+accessHash, "1", ttl).Err()
}

// Contains returns true when the hash has been revoked.
func (l *RevocationList) Contains(ctx context.Context, accessHash string) (bool, error) {
	if l == nil || l.client == nil {
		return false, nil
	}
	exists, err := l.client.Exists(ctx, l.prefix+accessHash).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
