package cache

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/rohan/tablebook/internal/model"
)

// tableStatusKey is the Redis hash holding the last-known status per table.
const tableStatusKey = "tablebook:table_status"

// TableStatusCache keeps the last-known status of each table, fed by
// inbound TableStatusChanged events and by local assignment/release.
//
// It is a HINT ONLY. The restaurant service serializes the decisions that
// matter; this cache just lets the REST fallback skip tables that are
// obviously taken. A stale entry costs one extra conflict probe, never a
// double booking.
type TableStatusCache struct {
	client *redis.Client
}

// NewTableStatusCache creates the cache on top of an existing Redis client.
func NewTableStatusCache(client *redis.Client) *TableStatusCache {
	return &TableStatusCache{client: client}
}

// Get returns the last-known status for a table, or nil when nothing is
// known. Redis errors degrade to "unknown" — callers already treat the
// cache as best-effort.
func (c *TableStatusCache) Get(ctx context.Context, tableID string) *model.TableStatus {
	val, err := c.client.HGet(ctx, tableStatusKey, tableID).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		log.Printf("[cache] table status read failed for %s: %v", tableID, err)
		return nil
	}
	status := model.TableStatus(val)
	return &status
}

// Put overwrites the cached status for a table.
func (c *TableStatusCache) Put(ctx context.Context, tableID string, status model.TableStatus) error {
	if err := c.client.HSet(ctx, tableStatusKey, tableID, string(status)).Err(); err != nil {
		return fmt.Errorf("cache: table status write for %s: %w", tableID, err)
	}
	return nil
}
