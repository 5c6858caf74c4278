package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// VersionKey holds the last published ledger version.
const VersionKey = "billing:ledger:version"

// publishScript advances the version key only when the event is newer, then
// publishes. Rebuild notifications can arrive out of order.
var publishScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > cur then
	redis.call('SET', KEYS[1], ARGV[1])
end
return redis.call('PUBLISH', ARGV[2], ARGV[3])
`)

// RedisPublisher publishes notifications over redis pub/sub and records the
// latest version under VersionKey so late subscribers can detect what they
// missed.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher wraps a redis client. An empty channel uses
// TopicLedgerRebuilt.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = TopicLedgerRebuilt
	}
	return &RedisPublisher{client: client, channel: channel}
}

// PublishLedgerRebuilt implements Publisher.
func (p *RedisPublisher) PublishLedgerRebuilt(ctx context.Context, evt LedgerRebuilt) error {
	if p == nil || p.client == nil {
		return nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	if err := publishScript.Run(ctx, p.client, []string{VersionKey}, evt.Version, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("events: redis publish: %w", err)
	}
	return nil
}

// Close is a no-op; the redis client is owned by the caller.
func (p *RedisPublisher) Close() error { return nil }
