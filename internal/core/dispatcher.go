package core

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultDeliveryTimeout bounds a single delivery call.
const DefaultDeliveryTimeout = 10 * time.Second

// RenderedMessage is a template with its variables substituted.
type RenderedMessage struct {
	TemplateID string      `json:"templateId"`
	Channel    ChannelType `json:"channel"`
	Subject    string      `json:"subject,omitempty"`
	Body       string      `json:"body"`
}

// DeliveryChannel hands a rendered message to an external transport.
type DeliveryChannel interface {
	Send(ctx context.Context, channel ChannelType, msg RenderedMessage, recipient string) error
}

// Dispatcher renders templates and hands them to a delivery channel.
//
// In strict mode a placeholder without a value fails with ErrMissingVariable.
// Otherwise the placeholder is left in the output literally.
type Dispatcher struct {
	templates *TemplateRegistry
	channel   DeliveryChannel
	strict    bool
	timeout   time.Duration
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(templates *TemplateRegistry, channel DeliveryChannel, strict bool, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &Dispatcher{
		templates: templates,
		channel:   channel,
		strict:    strict,
		timeout:   timeout,
	}
}

// Templates returns the registry the dispatcher renders from.
func (d *Dispatcher) Templates() *TemplateRegistry { return d.templates }

// Render resolves templateID and substitutes vars.
func (d *Dispatcher) Render(templateID string, vars map[string]string) (RenderedMessage, error) {
	t, err := d.templates.Get(templateID)
	if err != nil {
		return RenderedMessage{}, err
	}
	if !t.Active {
		return RenderedMessage{}, ValidationErrorf("template %q is inactive", templateID)
	}

	if d.strict {
		var missing []string
		for _, name := range Placeholders(t.Subject + "\n" + t.Body) {
			if _, ok := vars[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return RenderedMessage{}, withHint(
				MissingVariableErrorf("template %q: missing variables %s", templateID, strings.Join(missing, ", ")),
				"Provide a value for every template variable",
			)
		}
	}

	return RenderedMessage{
		TemplateID: t.ID,
		Channel:    t.Type,
		Subject:    substitute(t.Subject, vars),
		Body:       substitute(t.Body, vars),
	}, nil
}

// Send renders templateID and delivers it to recipient.
// The rendered message is returned even when delivery fails.
func (d *Dispatcher) Send(ctx context.Context, templateID string, vars map[string]string, recipient string) (RenderedMessage, error) {
	msg, err := d.Render(templateID, vars)
	if err != nil {
		return RenderedMessage{}, err
	}
	if strings.TrimSpace(recipient) == "" {
		return msg, ValidationErrorf("no recipient for %s message", msg.Channel)
	}
	if d.channel == nil {
		return msg, errors.New("no delivery channel configured")
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.channel.Send(sendCtx, msg.Channel, msg, recipient); err != nil {
		slog.Error("message delivery failed",
			"template", templateID,
			"channel", msg.Channel,
			"error", err,
		)
		return msg, errors.Wrapf(err, "deliver %s message", msg.Channel)
	}
	return msg, nil
}

func substitute(s string, vars map[string]string) string {
	return placeholderRegex.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderRegex.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// RecipientFor picks the address for channel from a subject.
func RecipientFor(channel ChannelType, s Subject) string {
	if channel == ChannelEmail {
		return s.Email
	}
	return s.Phone
}

// RecordVariables returns the standard variables derived from a record.
func RecordVariables(r Record) map[string]string {
	return map[string]string{
		"farmerName": r.Subject.Name,
		"stage":      string(r.Stage),
		"status":     string(r.Status),
		"partner":    r.AssignedPartner,
		"agent":      r.AssignedAgent,
		"state":      r.Subject.State,
	}
}
