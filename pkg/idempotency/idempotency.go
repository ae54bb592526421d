package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/orderflow/pkg/redis"
)

// Manager claims request keys per scope using Redis SETNX with a TTL.
// Keys follow the `of:idempotency:req:<scope>:<key>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds an idempotency guard that holds claims for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}, nil
}

// Claim returns true when the caller is the first to present key within scope.
// A false result means an identical request was already accepted.
func (m *Manager) Claim(ctx context.Context, scope, key string) (bool, error) {
	redisKey, err := m.requestKey(scope, key)
	if err != nil {
		return false, err
	}
	return m.store.SetNX(ctx, redisKey, "1", m.ttl)
}

// Release drops a claim so the same key can be retried, e.g. after a failed request.
func (m *Manager) Release(ctx context.Context, scope, key string) error {
	redisKey, err := m.requestKey(scope, key)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, redisKey)
}

func (m *Manager) requestKey(scope, key string) (string, error) {
	if strings.TrimSpace(scope) == "" {
		return "", errors.New("scope is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("idempotency key is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("req:%s", scope), key), nil
}
