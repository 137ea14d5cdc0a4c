package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"
)

// limiterDB keeps rate-limit counters apart from the cache (DB 0).
const limiterDB = 2

// newLimiterStorage shares limiter counters across instances through Redis.
// Without a client the limiter falls back to its in-memory store.
func newLimiterStorage(client *redis.Client) fiber.Storage {
	if client == nil {
		return nil
	}

	host, port := "127.0.0.1", 6379
	opts := client.Options()
	if opts != nil && opts.Addr != "" {
		if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: limiterDB,
		Reset:    false,
	})
}
