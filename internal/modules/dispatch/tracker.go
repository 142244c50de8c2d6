// README: Driver candidate tracking backed by Redis sorted sets and sets.
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"petmarket/internal/types"
)

// CandidateTracker remembers which drivers are online and which were already
// offered a given order, so round-robin offers move through the pool.
type CandidateTracker interface {
	Heartbeat(ctx context.Context, providerID, driverID types.ID, at time.Time) error
	Online(ctx context.Context, providerID types.ID, since time.Time) (map[types.ID]bool, error)
	MarkTried(ctx context.Context, orderID, driverID types.ID) error
	Tried(ctx context.Context, orderID types.ID) (map[types.ID]bool, error)
	Reset(ctx context.Context, orderID types.ID) error
}

const (
	onlineKeyFormat = "dispatch:provider:%s:online"
	triedKeyFormat  = "dispatch:order:%s:tried"
	// Tried sets outlive any reasonable dispatch of one order.
	keyTTL = 24 * time.Hour
)

type RedisTracker struct {
	redis *redis.Client
}

func NewRedisTracker(redis *redis.Client) *RedisTracker {
	return &RedisTracker{redis: redis}
}

func (t *RedisTracker) Heartbeat(ctx context.Context, providerID, driverID types.ID, at time.Time) error {
	key := onlineKey(providerID)
	pipe := t.redis.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.Unix()), Member: string(driverID)})
	// Drop drivers that have been silent for a day.
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(at.Add(-keyTTL).Unix(), 10))
	pipe.Expire(ctx, key, keyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *RedisTracker) Online(ctx context.Context, providerID types.ID, since time.Time) (map[types.ID]bool, error) {
	ids, err := t.redis.ZRangeByScore(ctx, onlineKey(providerID), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	return toSet(ids), nil
}

func (t *RedisTracker) MarkTried(ctx context.Context, orderID, driverID types.ID) error {
	key := triedKey(orderID)
	pipe := t.redis.Pipeline()
	pipe.SAdd(ctx, key, string(driverID))
	pipe.Expire(ctx, key, keyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *RedisTracker) Tried(ctx context.Context, orderID types.ID) (map[types.ID]bool, error) {
	ids, err := t.redis.SMembers(ctx, triedKey(orderID)).Result()
	if err == redis.Nil {
		return map[types.ID]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	return toSet(ids), nil
}

func (t *RedisTracker) Reset(ctx context.Context, orderID types.ID) error {
	return t.redis.Del(ctx, triedKey(orderID)).Err()
}

func onlineKey(providerID types.ID) string {
	return fmt.Sprintf(onlineKeyFormat, string(providerID))
}

func triedKey(orderID types.ID) string {
	return fmt.Sprintf(triedKeyFormat, string(orderID))
}

func toSet(ids []string) map[types.ID]bool {
	out := make(map[types.ID]bool, len(ids))
	for _, id := range ids {
		out[types.ID(id)] = true
	}
	return out
}

// MemoryTracker is the single-process tracker used with in-memory storage.
type MemoryTracker struct {
	mu     sync.Mutex
	online map[types.ID]map[types.ID]time.Time
	tried  map[types.ID]map[types.ID]bool
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		online: make(map[types.ID]map[types.ID]time.Time),
		tried:  make(map[types.ID]map[types.ID]bool),
	}
}

func (t *MemoryTracker) Heartbeat(_ context.Context, providerID, driverID types.ID, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen, ok := t.online[providerID]
	if !ok {
		seen = make(map[types.ID]time.Time)
		t.online[providerID] = seen
	}
	seen[driverID] = at
	return nil
}

func (t *MemoryTracker) Online(_ context.Context, providerID types.ID, since time.Time) (map[types.ID]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[types.ID]bool)
	for id, at := range t.online[providerID] {
		if !at.Before(since) {
			out[id] = true
		}
	}
	return out, nil
}

func (t *MemoryTracker) MarkTried(_ context.Context, orderID, driverID types.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.tried[orderID]
	if !ok {
		set = make(map[types.ID]bool)
		t.tried[orderID] = set
	}
	set[driverID] = true
	return nil
}

func (t *MemoryTracker) Tried(_ context.Context, orderID types.ID) (map[types.ID]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[types.ID]bool, len(t.tried[orderID]))
	for id := range t.tried[orderID] {
		out[id] = true
	}
	return out, nil
}

func (t *MemoryTracker) Reset(_ context.Context, orderID types.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tried, orderID)
	return nil
}
