package delivery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
)

// HTTPConfig configures an HTTPChannel.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	RetryMax int
	// RetryWaitMin is the first backoff; defaults to one second.
	RetryWaitMin time.Duration
}

// HTTPChannel posts messages as JSON envelopes to a gateway endpoint.
type HTTPChannel struct {
	client   *retryablehttp.Client
	endpoint string
	apiKey   string
}

// NewHTTPChannel creates a channel for cfg.
func NewHTTPChannel(cfg HTTPConfig) (*HTTPChannel, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("delivery endpoint is required")
	}

	client := retryablehttp.NewClient()
	client.Logger = slog.Default()
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
		client.RetryWaitMax = 10 * cfg.RetryWaitMin
	}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}

	return &HTTPChannel{client: client, endpoint: cfg.Endpoint, apiKey: cfg.APIKey}, nil
}

// Send implements core.DeliveryChannel. 5xx responses and transport errors
// are retried; any other non-2xx response fails immediately.
func (c *HTTPChannel) Send(ctx context.Context, channel core.ChannelType, msg core.RenderedMessage, recipient string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, NewEnvelope(channel, msg, recipient))
	if err != nil {
		return errors.Wrap(err, "build delivery request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post to gateway")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("gateway returned %d: %s", resp.StatusCode, string(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// String describes the channel for logs.
func (c *HTTPChannel) String() string {
	return fmt.Sprintf("http(%s, retries=%d)", c.endpoint, c.client.RetryMax)
}
