package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"vibeconnect/metrics"
)

const publishTimeout = 2 * time.Second

// envelope is what travels over the Redis channel: an encoded frame and the
// room it is addressed to.
type envelope struct {
	UserID string          `json:"user"`
	Event  string          `json:"event"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisRelay publishes events over Redis pub/sub so every instance delivers
// them to its own connections. It implements events.Notifier.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *zap.Logger, m *metrics.Collector) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger.Named("relay"),
		metrics: m,
	}
}

// Notify publishes the event. When Redis is unreachable the event is still
// delivered to connections on this instance.
func (r *RedisRelay) Notify(userID, event string, payload interface{}) {
	frame, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		r.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	body, err := json.Marshal(envelope{UserID: userID, Event: event, Frame: frame})
	if err != nil {
		r.logger.Error("failed to encode envelope", zap.String("event", event), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		r.metrics.RelayMessages.WithLabelValues("publish_failed").Inc()
		r.logger.Warn("relay publish failed, delivering locally", zap.String("event", event), zap.Error(err))
		r.hub.deliver(userID, event, frame)
		return
	}
	r.metrics.RelayMessages.WithLabelValues("out").Inc()
}

// Run subscribes to the relay channel and delivers incoming events to the local
// hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrapf(err, "subscribe %s", r.channel)
	}
	r.logger.Info("relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("dropping malformed relay message", zap.Error(err))
				continue
			}
			r.metrics.RelayMessages.WithLabelValues("in").Inc()
			r.hub.deliver(env.UserID, env.Event, env.Frame)
		}
	}
}
