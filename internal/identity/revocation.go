package identity

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoTokenID is returned when a token id is needed but absent.
var ErrNoTokenID = errors.New("identity: token has no id")

// Revocations records signed-out token ids until they would expire anyway.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevocations stores revoked token ids as expiring keys.
type RedisRevocations struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRevocations constructs the store.
func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client, now: time.Now}
}

// Revoke marks tokenID revoked until the given time.
func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return ErrNoTokenID
	}
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKey(tokenID), "1", ttl).Err()
}

// IsRevoked reports whether tokenID was signed out. A token without an id
// can never be signed out and is treated as revoked.
func (r *RedisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return true, nil
	}
	n, err := r.client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func revokedKey(tokenID string) string {
	return "identity:revoked:" + tokenID
}

// Sightings remembers which token ids have already been used.
type Sightings interface {
	MarkSeen(ctx context.Context, tokenID string, until time.Time) (first bool, err error)
}

// RedisSightings records first use of a token id with SETNX.
type RedisSightings struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSightings constructs the store.
func NewRedisSightings(client *redis.Client) *RedisSightings {
	return &RedisSightings{client: client, now: time.Now}
}

// MarkSeen reports true only for the first call per tokenID before until.
func (s *RedisSightings) MarkSeen(ctx context.Context, tokenID string, until time.Time) (bool, error) {
	if tokenID == "" {
		return false, ErrNoTokenID
	}
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return false, nil
	}
	return s.client.SetNX(ctx, seenKey(tokenID), "1", ttl).Result()
}

func seenKey(tokenID string) string {
	return "identity:seen:" + tokenID
}
