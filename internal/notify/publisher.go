package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/bulkwave/messaging-backend/internal/metrics"
)

// RedisPublisher publishes one message per target agent channel.
type RedisPublisher struct {
	Client *redis.Client
}

func NewRedisPublisher(addr, password string) *RedisPublisher {
	return &RedisPublisher{
		Client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}
}

func (p *RedisPublisher) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	var firstErr error
	for _, agentID := range n.AgentIDs {
		if err := p.Client.Publish(ctx, agentChannel(agentID), payload).Err(); err != nil {
			metrics.NotificationFailures.Inc()
			if firstErr == nil {
				firstErr = fmt.Errorf("notify: publish to %s: %w", agentID, err)
			}
			continue
		}
		metrics.NotificationsPublished.Inc()
	}
	return firstErr
}

var _ Notifier = (*RedisPublisher)(nil)
