package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"soundbridge/logger"

	"github.com/go-redis/redis/v8"
)

// eventQueueKey 推送网关消费的事件队列
const eventQueueKey = "moderation:events"

// eventQueueTTL keeps an abandoned queue from growing forever when no
// gateway is consuming it.
const eventQueueTTL = 7 * 24 * time.Hour

// Publisher is the outbound side of the notification contract.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Notifier publishes moderation events to the Redis queue consumed by the
// push gateway and mirrors them to the owner's connected websocket clients.
type Notifier struct {
	client *redis.Client
	hub    *Hub
}

// NewNotifier 创建通知发布器，hub 可以为 nil（例如独立 worker 进程）
func NewNotifier(client *redis.Client, hub *Hub) *Notifier {
	return &Notifier{client: client, hub: hub}
}

// Publish enqueues the event. The queue write is the durable at-least-once
// path; the websocket push is best-effort.
func (n *Notifier) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	if n.client != nil {
		if err := n.client.LPush(ctx, eventQueueKey, payload).Err(); err != nil {
			return fmt.Errorf("failed to enqueue notification event: %w", err)
		}
		if err := n.client.Expire(ctx, eventQueueKey, eventQueueTTL).Err(); err != nil {
			logger.Warn("设置通知队列过期时间失败", logger.ErrorField(err))
		}
	}

	if n.hub != nil {
		n.hub.Push(event.OwnerID, payload)
	}

	logger.Info("通知事件已发布",
		logger.String("eventId", event.EventID),
		logger.Int64("trackId", event.TrackID),
		logger.Int64("ownerId", event.OwnerID),
		logger.String("action", string(event.Action)),
	)
	return nil
}
