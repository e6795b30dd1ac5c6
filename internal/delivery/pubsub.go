package delivery

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/cockroachdb/errors"
)

// DefaultTopic is the topic outbound messages are published to.
const DefaultTopic = "onboarding.messages"

// NewMemoryPubSub creates an in-process watermill pub/sub.
func NewMemoryPubSub(bufferSize int64) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: bufferSize},
		watermill.NewStdLogger(false, false),
	)
}

// PubSubChannel publishes messages to a watermill topic.
type PubSubChannel struct {
	publisher message.Publisher
	topic     string
}

// NewPubSubChannel creates a channel publishing to topic.
func NewPubSubChannel(publisher message.Publisher, topic string) *PubSubChannel {
	if topic == "" {
		topic = DefaultTopic
	}
	return &PubSubChannel{publisher: publisher, topic: topic}
}

// Send implements core.DeliveryChannel.
func (c *PubSubChannel) Send(ctx context.Context, channel core.ChannelType, msg core.RenderedMessage, recipient string) error {
	payload, err := json.Marshal(NewEnvelope(channel, msg, recipient))
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}

	m := message.NewMessage(watermill.NewUUID(), payload)
	m.SetContext(ctx)
	m.Metadata.Set("channel", string(channel))
	m.Metadata.Set("template_id", msg.TemplateID)

	if err := c.publisher.Publish(c.topic, m); err != nil {
		return errors.Wrapf(err, "publish to %s", c.topic)
	}
	return nil
}

// Relay consumes topic and forwards every message to next until ctx is
// cancelled. Messages next rejects are nacked for redelivery; undecodable
// messages are acked and dropped.
func Relay(ctx context.Context, subscriber message.Subscriber, topic string, next core.DeliveryChannel) error {
	if topic == "" {
		topic = DefaultTopic
	}
	messages, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		return errors.Wrapf(err, "subscribe to %s", topic)
	}

	slog.Info("message relay started", "topic", topic)
	for {
		select {
		case <-ctx.Done():
			slog.Info("message relay stopped", "topic", topic)
			return nil
		case m, ok := <-messages:
			if !ok {
				return nil
			}
			env, err := decodeEnvelope(m.Payload)
			if err != nil {
				slog.Error("dropping undecodable message", "uuid", m.UUID, "error", err)
				m.Ack()
				continue
			}
			if err := next.Send(ctx, env.Channel, env.Message(), env.Recipient); err != nil {
				slog.Warn("relay delivery failed", "uuid", m.UUID, "error", err)
				m.Nack()
				continue
			}
			m.Ack()
		}
	}
}
