package summarize

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicBaseURL = "https://api.anthropic.com"

func (c *Client) chatAnthropics(ctx context.Context, system string, prompt string) (string, error) {
	if c == nil {
		return "", errors.New("nil client")
	}

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(c.APIKey),
		anthropicoption.WithBaseURL(resolvedAnthropicBaseURL(c.BaseURL)),
	}
	if c.HTTPClient != nil {
		opts = append(opts, anthropicoption.WithHTTPClient(c.HTTPClient))
	}
	sdk := anthropic.NewClient(opts...)

	params := anthropic.MessageNewParams{
		MaxTokens: int64(c.maxTokens()),
		Model:     anthropic.Model(c.Model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if strings.TrimSpace(system) != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := sdk.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", errors.New("empty response")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(variant.Text)
		default:
			// Ignore unknown block variants.
		}
	}
	return text.String(), nil
}

func resolvedAnthropicBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/v1")
	base = strings.TrimRight(base, "/")
	return base + "/"
}
