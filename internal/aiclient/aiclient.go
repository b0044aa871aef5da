// Package aiclient wraps the Anthropic Messages API for the AI miner.
// It is intentionally single-provider; there is no provider-selection
// layer here.
package aiclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"contactminer/internal/config"
)

const defaultModel = "claude-sonnet-4-20250514"

// ErrEmptyResponse is returned when the model produces no text content.
var ErrEmptyResponse = errors.New("aiclient: empty response from model")

// Client is a thin synchronous wrapper around the Anthropic SDK client,
// fixed to a single model and token budget for the mining workload.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// New builds a Client from the process AnthropicConfig. It returns
// (nil, nil) when no API key is configured so callers can skip
// registering the AI miner entirely rather than failing at startup.
func New(cfg config.AnthropicConfig, timeout time.Duration) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     model,
		maxTokens: 8192,
		timeout:   timeout,
	}, nil
}

// Complete sends a single system+user turn and returns the concatenated
// text content of the reply.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := c.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return "", fmt.Errorf("aiclient: message create failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
