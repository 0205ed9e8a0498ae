// Package stats keeps a denormalized queue snapshot in Redis for display
// boards. Writes are best-effort: a cache failure never blocks the ticket
// operation that triggered it.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rebekz/simrs/internal/models"
)

var ErrCacheMiss = errors.New("stats: cache miss")

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func key(departmentID string, date time.Time) string {
	return "queue:stats:" + departmentID + ":" + date.Format("2006-01-02")
}

func (c *Cache) Put(ctx context.Context, snapshot models.QueueStats) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(snapshot.DepartmentID, snapshot.QueueDate), payload, c.ttl).Err()
}

func (c *Cache) Get(ctx context.Context, departmentID string, date time.Time) (models.QueueStats, error) {
	payload, err := c.rdb.Get(ctx, key(departmentID, date)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.QueueStats{}, ErrCacheMiss
		}
		return models.QueueStats{}, err
	}
	var snapshot models.QueueStats
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return models.QueueStats{}, err
	}
	return snapshot, nil
}

// PutBestEffort logs and swallows cache errors.
func (c *Cache) PutBestEffort(ctx context.Context, snapshot models.QueueStats) {
	if c == nil {
		return
	}
	if err := c.Put(ctx, snapshot); err != nil {
		log.Printf("stats cache update error: department_id=%s err=%v", snapshot.DepartmentID, err)
	}
}
