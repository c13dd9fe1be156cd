package health

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Pinger covers clients exposing a context ping, like the database client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisChecker verifies state-store connectivity. Critical: status reads
// depend on it.
type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string   { return "redis" }
func (c *RedisChecker) Critical() bool { return true }

func (c *RedisChecker) Check(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// PingChecker wraps any Pinger as a checker.
type PingChecker struct {
	name     string
	critical bool
	pinger   Pinger
}

func NewPingChecker(name string, critical bool, pinger Pinger) *PingChecker {
	return &PingChecker{name: name, critical: critical, pinger: pinger}
}

func (c *PingChecker) Name() string   { return c.name }
func (c *PingChecker) Critical() bool { return c.critical }

func (c *PingChecker) Check(ctx context.Context) error {
	return c.pinger.Ping(ctx)
}

// FuncChecker adapts a plain function, for dependencies without a client
// type (Temporal namespace reachability and similar).
type FuncChecker struct {
	name     string
	critical bool
	fn       func(ctx context.Context) error
}

func NewFuncChecker(name string, critical bool, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, critical: critical, fn: fn}
}

func (c *FuncChecker) Name() string   { return c.name }
func (c *FuncChecker) Critical() bool { return c.critical }

func (c *FuncChecker) Check(ctx context.Context) error {
	return c.fn(ctx)
}
