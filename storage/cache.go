package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"thirdangle/domain"
)

type backend interface {
	FetchTasks(ctx context.Context) ([]domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status domain.Status) (domain.Task, domain.Status, error)
	FetchUsers(ctx context.Context) ([]domain.User, error)
	FetchAggregate(ctx context.Context, kind domain.AggregateKind) (domain.Aggregate, error)
	FetchNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	EnqueueStatusChange(ctx context.Context, ch domain.StatusChange) error
}

const (
	tasksCacheKey = "board:tasks"
	usersCacheKey = "board:users"
)

// Cache wraps a Storage instance with Redis-backed caching for the board and
// the user directory.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if c.load(ctx, tasksCacheKey, &tasks) {
		return tasks, nil
	}
	tasks, err := c.base.FetchTasks(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasksCacheKey, tasks)
	return tasks, nil
}

// UpdateTaskStatus writes through and evicts the cached board, even when
// the write fails: a conflict means the cached copy is stale.
func (c *Cache) UpdateTaskStatus(ctx context.Context, taskID string, status domain.Status) (domain.Task, domain.Status, error) {
	task, prev, err := c.base.UpdateTaskStatus(ctx, taskID, status)
	c.evict(ctx, tasksCacheKey)
	return task, prev, err
}

func (c *Cache) FetchUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if c.load(ctx, usersCacheKey, &users) {
		return users, nil
	}
	users, err := c.base.FetchUsers(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, usersCacheKey, users)
	return users, nil
}

func (c *Cache) FetchAggregate(ctx context.Context, kind domain.AggregateKind) (domain.Aggregate, error) {
	return c.base.FetchAggregate(ctx, kind)
}

func (c *Cache) FetchNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	return c.base.FetchNotifications(ctx, userID)
}

func (c *Cache) EnqueueStatusChange(ctx context.Context, ch domain.StatusChange) error {
	return c.base.EnqueueStatusChange(ctx, ch)
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}
