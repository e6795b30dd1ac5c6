// Package delivery provides core.DeliveryChannel implementations.
//
// LogChannel only logs. PubSubChannel publishes to a watermill topic, where
// Relay forwards messages to another channel. HTTPChannel posts to an SMS or
// email gateway with retries.
package delivery

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/JonMunkholm/agrionboard/internal/logging"
	"github.com/cockroachdb/errors"
)

// Envelope is the wire form of one outbound message.
type Envelope struct {
	Channel    core.ChannelType `json:"channel"`
	Recipient  string           `json:"recipient"`
	TemplateID string           `json:"templateId"`
	Subject    string           `json:"subject,omitempty"`
	Body       string           `json:"body"`
}

// NewEnvelope builds the envelope for msg.
func NewEnvelope(channel core.ChannelType, msg core.RenderedMessage, recipient string) Envelope {
	return Envelope{
		Channel:    channel,
		Recipient:  recipient,
		TemplateID: msg.TemplateID,
		Subject:    msg.Subject,
		Body:       msg.Body,
	}
}

// Message converts the envelope back to a rendered message.
func (e Envelope) Message() core.RenderedMessage {
	return core.RenderedMessage{
		TemplateID: e.TemplateID,
		Channel:    e.Channel,
		Subject:    e.Subject,
		Body:       e.Body,
	}
}

func decodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "decode envelope")
	}
	return env, nil
}

// LogChannel writes every message to the structured log instead of sending it.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel creates a LogChannel. A nil logger uses the request logger.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Send implements core.DeliveryChannel.
func (c *LogChannel) Send(ctx context.Context, channel core.ChannelType, msg core.RenderedMessage, recipient string) error {
	logger := c.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	logger.Info("message delivered",
		"channel", channel,
		"recipient", recipient,
		"template", msg.TemplateID,
		"subject", msg.Subject,
		"body_len", len(msg.Body),
	)
	return nil
}
