package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Deduper suppresses repeat overdue notifications for the same entity within a window.
type Deduper interface {
	// FirstInWindow reports whether this is the first claim for (type, entity) in the window.
	FirstInWindow(ctx context.Context, t EventType, entityID uuid.UUID) (bool, error)
}

// RedisDeduper claims notify:<type>:<entity> with SETNX and a TTL.
type RedisDeduper struct {
	Rdb *redis.Client
	TTL time.Duration
}

func (d *RedisDeduper) FirstInWindow(ctx context.Context, t EventType, entityID uuid.UUID) (bool, error) {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return d.Rdb.SetNX(ctx, fmt.Sprintf("notify:%s:%s", t, entityID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}
