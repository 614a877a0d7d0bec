package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/dspops/portal/internal/roles"
)

// RoleCache holds recently resolved role lists. Invalidation is always an
// explicit call; nothing else evicts besides the TTL.
//
// Get reports the generation it observed even on a miss. Set only stores
// held when that generation is still current, so a list read before an
// Invalidate is never served after it.
type RoleCache interface {
	Get(ctx context.Context, userID uuid.UUID) (held []roles.Role, gen int64, ok bool, err error)
	Set(ctx context.Context, userID uuid.UUID, gen int64, held []roles.Role) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// RedisRoleCache keys entries by a per-user generation so that Invalidate
// only has to bump a counter; stale generations age out via TTL.
type RedisRoleCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRoleCache constructs the cache.
func NewRedisRoleCache(client *redis.Client, ttl time.Duration) *RedisRoleCache {
	return &RedisRoleCache{client: client, ttl: ttl}
}

func (c *RedisRoleCache) generation(ctx context.Context, userID uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get returns the cached roles for userID in the current generation.
func (c *RedisRoleCache) Get(ctx context.Context, userID uuid.UUID) ([]roles.Role, int64, bool, error) {
	gen, err := c.generation(ctx, userID)
	if err != nil {
		return nil, 0, false, fmt.Errorf("profiles: role cache generation: %w", err)
	}
	payload, err := c.client.Get(ctx, entryKey(userID, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, fmt.Errorf("profiles: role cache get: %w", err)
	}
	var held []roles.Role
	if err := json.Unmarshal(payload, &held); err != nil {
		return nil, gen, false, fmt.Errorf("profiles: role cache decode: %w", err)
	}
	return held, gen, true, nil
}

// Set stores held under gen. An entry written for a generation that has
// since been bumped is never read again.
func (c *RedisRoleCache) Set(ctx context.Context, userID uuid.UUID, gen int64, held []roles.Role) error {
	payload, err := json.Marshal(held)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, entryKey(userID, gen), payload, c.ttl).Err()
}

// Invalidate bumps the generation for userID.
func (c *RedisRoleCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Incr(ctx, generationKey(userID)).Err(); err != nil {
		return fmt.Errorf("profiles: role cache invalidate: %w", err)
	}
	return nil
}

func generationKey(userID uuid.UUID) string {
	return "roles:gen:" + userID.String()
}

func entryKey(userID uuid.UUID, gen int64) string {
	return "roles:" + userID.String() + ":" + strconv.FormatInt(gen, 10)
}

type memoryEntry struct {
	gen  int64
	held []roles.Role
}

// MemoryRoleCache is a process-local expirable LRU.
type MemoryRoleCache struct {
	mu      sync.Mutex
	gens    map[uuid.UUID]int64
	entries *lru.LRU[uuid.UUID, memoryEntry]
}

// NewMemoryRoleCache constructs a cache holding at most size users.
func NewMemoryRoleCache(size int, ttl time.Duration) *MemoryRoleCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryRoleCache{
		gens:    make(map[uuid.UUID]int64),
		entries: lru.NewLRU[uuid.UUID, memoryEntry](size, nil, ttl),
	}
}

func (c *MemoryRoleCache) Get(_ context.Context, userID uuid.UUID) ([]roles.Role, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.gens[userID]
	entry, ok := c.entries.Get(userID)
	if !ok || entry.gen != gen {
		return nil, gen, false, nil
	}
	return append([]roles.Role(nil), entry.held...), gen, true, nil
}

func (c *MemoryRoleCache) Set(_ context.Context, userID uuid.UUID, gen int64, held []roles.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		return nil
	}
	c.entries.Add(userID, memoryEntry{gen: gen, held: append([]roles.Role(nil), held...)})
	return nil
}

func (c *MemoryRoleCache) Invalidate(_ context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[userID]++
	c.entries.Remove(userID)
	return nil
}

var (
	_ RoleCache = (*RedisRoleCache)(nil)
	_ RoleCache = (*MemoryRoleCache)(nil)
)
