package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel は監査ログを配信するRedisチャンネルの既定値。
const DefaultChannel = "courseman.audit"

// RedisPublisher は監査ログをRedis Pub/SubへJSONで配信する。
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher はRedisへ接続し、疎通確認をしてからRedisPublisherを返す。
func NewRedisPublisher(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisPublisher{rdb: rdb, channel: channel}, nil
}

// Channel は配信先のチャンネル名を返す。
func (p *RedisPublisher) Channel() string { return p.channel }

// Publish は監査ログを配信する。
func (p *RedisPublisher) Publish(ctx context.Context, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

// Close はRedis接続を閉じる。
func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}

// compile-time interface check
var _ Publisher = (*RedisPublisher)(nil)
