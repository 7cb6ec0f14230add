package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	redisx "chatparty/service/storage/redis"
)

// presence key: chat:presence:<user>
// Value: gateway_id, TTL controls the online validity period
func presenceKey(user string) string { return "chat:presence:" + user }

// PresenceOnline sets the user as online and renews the TTL
func PresenceOnline(ctx context.Context, user, gatewayID string, ttl time.Duration) error {
	return redisx.GetRedis().Set(ctx, presenceKey(user), gatewayID, ttl).Err()
}

// PresenceOffline actively sets the user offline (deletes the key)
func PresenceOffline(ctx context.Context, user string) error {
	return redisx.GetRedis().Del(ctx, presenceKey(user)).Err()
}

// RedisPresence adapts the free functions above to the transport's
// PresenceStore interface.
type RedisPresence struct{}

func NewRedisPresence() *RedisPresence { return &RedisPresence{} }

func (RedisPresence) Online(ctx context.Context, user, gatewayID string, ttl time.Duration) error {
	return PresenceOnline(ctx, user, gatewayID, ttl)
}

func (RedisPresence) Offline(ctx context.Context, user string) error {
	return PresenceOffline(ctx, user)
}

// PresenceLookup checks whether the user is online and which instance
// holds the connection
func PresenceLookup(ctx context.Context, user string) (gatewayID string, online bool, err error) {
	val, err := redisx.GetRedis().Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
