package cart

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Items maps product id to the quantity held.
type Items map[uint]int

func (it Items) clone() Items {
	out := make(Items, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// Store keeps carts keyed by session token. Carts are never written to the relational store.
type Store interface {
	Load(ctx context.Context, token string) (Items, error)
	Save(ctx context.Context, token string, items Items) error
	Delete(ctx context.Context, token string) error
}

type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]Items
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]Items)}
}

func (m *MemoryStore) Load(_ context.Context, token string) (Items, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if items, ok := m.carts[token]; ok {
		return items.clone(), nil
	}
	return Items{}, nil
}

func (m *MemoryStore) Save(_ context.Context, token string, items Items) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(items) == 0 {
		delete(m.carts, token)
		return nil
	}
	m.carts[token] = items.clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.carts, token)
	return nil
}

// RedisStore keeps each cart in a hash "cart:<token>" of product id -> quantity.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func cartKey(token string) string {
	return "cart:" + token
}

func (r *RedisStore) Load(ctx context.Context, token string) (Items, error) {
	raw, err := r.rdb.HGetAll(ctx, cartKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	items := make(Items, len(raw))
	for field, value := range raw {
		pid, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			logger.Warn().Str("field", field).Msg("dropping malformed cart field")
			continue
		}
		qty, err := strconv.Atoi(value)
		if err != nil || qty <= 0 {
			continue
		}
		items[uint(pid)] = qty
	}
	return items, nil
}

func (r *RedisStore) Save(ctx context.Context, token string, items Items) error {
	key := cartKey(token)

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(items) == 0 {
			return nil
		}

		values := make(map[string]interface{}, len(items))
		for pid, qty := range items {
			values[strconv.FormatUint(uint64(pid), 10)] = qty
		}
		pipe.HSet(ctx, key, values)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	if err := r.rdb.Del(ctx, cartKey(token)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
