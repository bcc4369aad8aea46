package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const defaultMaxRetries = 3

// Client wraps a provider with bounded retry and an ordered fallback
// chain of alternate models. The active model comes from the
// ModelManager unless the request pins one explicitly.
type Client struct {
	provider   Provider
	models     *ModelManager
	logger     zerolog.Logger
	maxRetries int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMaxRetries overrides the per-model retry budget.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// NewClient creates a capability client.
func NewClient(provider Provider, models *ModelManager, logger zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		provider:   provider,
		models:     models,
		logger:     logger,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Models exposes the model manager for meta-command handling.
func (c *Client) Models() *ModelManager {
	return c.models
}

// Call executes a request against the active model with retry, then
// walks the fallback chain. Returns the last error only after every
// tier has been exhausted.
func (c *Client) Call(ctx context.Context, request Request) (*Response, error) {
	model := request.Model
	if model == "" {
		model = c.models.Active()
	}

	response, lastErr := c.callWithRetry(ctx, model, request)
	if lastErr == nil {
		return response, nil
	}

	// Permanent errors skip the fallback chain entirely
	if !IsRetryable(lastErr) {
		return nil, lastErr
	}

	for _, fallbackModel := range c.models.FallbacksFor(model) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		c.logger.Info().
			Str("from", model).
			Str("to", fallbackModel).
			Msg("Falling back to alternate model")

		response, err := c.callOnce(ctx, fallbackModel, request)
		if err == nil {
			return response, nil
		}
		c.logger.Warn().
			Str("model", fallbackModel).
			Err(err).
			Msg("Fallback model also failed")
		lastErr = err
	}

	return nil, fmt.Errorf("all capability tiers failed: %w", lastErr)
}

// callWithRetry calls one model with exponential backoff: 1s, 2s, 4s.
func (c *Client) callWithRetry(ctx context.Context, model string, request Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		response, err := c.callOnce(ctx, model, request)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return nil, err
		}

		// Last attempt - don't wait
		if attempt == c.maxRetries-1 {
			break
		}

		delay := time.Duration(1<<attempt) * time.Second
		c.logger.Info().
			Str("model", model).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying after transient error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

func (c *Client) callOnce(ctx context.Context, model string, request Request) (*Response, error) {
	request.Model = model

	start := time.Now()
	response, err := c.provider.Call(ctx, request)
	if err != nil {
		return nil, err
	}

	evt := c.logger.Debug().
		Str("provider", c.provider.Name()).
		Str("model", model).
		Dur("duration", time.Since(start)).
		Str("stopReason", response.StopReason)
	if response.Usage != nil {
		evt = evt.
			Int("inputTokens", response.Usage.InputTokens).
			Int("outputTokens", response.Usage.OutputTokens)
	}
	evt.Msg("Capability call completed")

	return response, nil
}
