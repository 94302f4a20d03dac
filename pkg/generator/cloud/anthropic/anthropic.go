// Package anthropic implements the Generator capability set against
// Anthropic's Messages API, grounded on the teacher's Claude client
// adapter.
package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"recoforge/pkg/generator"
	"recoforge/pkg/generrors"
)

const defaultMaxTokens = 1024

// Client drives Anthropic's Messages API to satisfy the Cloud variant
// family's single documented wire shape: system/messages/max_tokens/
// temperature, optional thinking, response content/usage.
type Client struct {
	client       anthropic.Client
	model        anthropic.Model
	thinking     bool
	budgetTokens int
	timeout      time.Duration
}

// New creates a Cloud:Anthropic generator. apiKey is an opaque credential
// supplied by the host; this package never interprets or stores it beyond
// constructing the SDK client.
func New(apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0)),
		model:   anthropic.Model(model),
		timeout: timeout,
	}
}

// Invoke sends prompt as a single user message and returns the concatenated
// text content of the response.
func (c *Client) Invoke(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withBoundedDeadline(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.thinking {
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: int64(c.budgetTokens)},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return "", generrors.New(generrors.BackendTransient, "received empty response from Anthropic API")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return text.String(), nil
}

// Probe issues a minimal request to confirm the backend and credential are
// reachable and valid.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Invoke(ctx, "ping")
	return err
}

// Name identifies this generator.
func (c *Client) Name() string { return "cloud:anthropic:" + string(c.model) }

// UpdateModel switches the active model, honoring an optional
// "#thinking[(tokens=N)]" suffix that enables extended reasoning.
func (c *Client) UpdateModel(modelID string) error {
	spec := generator.ParseModelID(modelID)
	c.model = anthropic.Model(spec.ModelID)
	c.thinking = spec.Thinking
	c.budgetTokens = spec.BudgetTokens
	return nil
}

func withBoundedDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return generrors.NewWithCause(generrors.Cancelled, err, "Anthropic request cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return generrors.NewWithCause(generrors.DeadlineExceeded, err, "Anthropic request timed out")
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return generrors.NewWithStatus(generrors.BackendAuth, apiErr.StatusCode, "Anthropic authentication failed")
		case 429:
			return generrors.NewWithStatus(generrors.RateLimitRejected, apiErr.StatusCode, "Anthropic rate limit")
		case 400, 404, 413, 422:
			return generrors.NewWithStatus(generrors.BackendBadRequest, apiErr.StatusCode, "Anthropic rejected request")
		default:
			return generrors.NewWithStatus(generrors.BackendTransient, apiErr.StatusCode, "Anthropic API error")
		}
	}
	return generrors.NewWithCause(generrors.BackendTransient, err, "Anthropic API error")
}
