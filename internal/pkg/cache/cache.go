package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// SetupCache initializes the connection to the Redis server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	// Test the connection
	pong, err := client.Ping(context.Background()).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to cache: %v", err)
	} else {
		log.Printf("Successfully connected to cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Lease is a best-effort, expiring ownership marker shared by all instances.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// ErrLeaseHeld is returned when another holder owns the lease.
var ErrLeaseHeld = errors.New("lease held by another owner")

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLease sets key to token if absent. The lease expires after ttl even
// if the holder dies without releasing it.
func AcquireLease(c context.Context, rdb *redis.Client, key, token string, ttl time.Duration) (*Lease, error) {
	ok, err := rdb.SetNX(c, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &Lease{client: rdb, key: key, token: token}, nil
}

// Release gives the lease back if it is still ours.
func (l *Lease) Release(c context.Context) error {
	return releaseScript.Run(c, l.client, []string{l.key}, l.token).Err()
}
