package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"threatAnalyzer/worker/models"
)

const statusKeyPrefix = "status:"

type StatusStore interface {
	Set(ctx context.Context, decisionID string, status models.TaskStatus) error
}

// StatusCache keeps the last known status per decision with a bounded lifetime.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func StatusKey(decisionID string) string {
	return statusKeyPrefix + decisionID
}

func (c *StatusCache) Set(ctx context.Context, decisionID string, status models.TaskStatus) error {
	return c.client.Set(ctx, StatusKey(decisionID), string(status), c.ttl).Err()
}

// Get returns redis.Nil when the key is unknown or expired.
func (c *StatusCache) Get(ctx context.Context, decisionID string) (models.TaskStatus, error) {
	v, err := c.client.Get(ctx, StatusKey(decisionID)).Result()
	if err != nil {
		return "", err
	}
	return models.TaskStatus(v), nil
}
