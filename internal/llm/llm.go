// Package llm wraps the Anthropic API as an alternative backend for
// narrative synthesis, used when the configured synthesis tool is "api"
// rather than an external CLI tool.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when no synthesis model is configured.
const DefaultModel = "claude-sonnet-4-5"

// Client wraps the Anthropic API for synthesis calls. It satisfies the
// consensus.Caller interface.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an API client. An empty apiKey falls back to the SDK's
// environment-based authentication; an empty model uses DefaultModel.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// Call sends the synthesis prompt and returns the text answer. One request,
// no retry: the synthesizer treats any error as a failed synthesis.
func (c *Client) Call(ctx context.Context, prompt string) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}

	return StripFencing(text), nil
}

// StripFencing removes a surrounding markdown code fence if present.
func StripFencing(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
