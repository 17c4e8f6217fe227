package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"glowsalon/backend/internal/logging"
)

// RedisBus carries events between instances over Redis pub/sub. The
// client is owned by the caller.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  logrus.FieldLogger
}

func NewRedisBus(client *redis.Client, salonID string, logger logrus.FieldLogger) *RedisBus {
	if logger == nil {
		logger = logging.Discard()
	}
	return &RedisBus{client: client, channel: "salon:" + salonID + ":changes", logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	subCtx, stop := context.WithCancel(ctx)
	pubsub := b.client.Subscribe(subCtx, b.channel)
	out := make(chan Event, subscriberBuffer)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logging.LogError(b.logger, "events", "RedisBus.Subscribe", "decode event", msg.Payload, err)
					continue
				}
				select {
				case out <- event:
				default:
				}
			}
		}
	}()
	go func() {
		<-subCtx.Done()
		cancel()
	}()
	return out, cancel
}

func (b *RedisBus) Close() error {
	return nil
}
