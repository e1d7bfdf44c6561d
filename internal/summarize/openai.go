package summarize

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"
)

func (c *Client) chatOpenAI(ctx context.Context, system string, prompt string) (string, error) {
	if c == nil {
		return "", errors.New("nil client")
	}

	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(c.APIKey),
	}
	if base := strings.TrimSpace(c.BaseURL); base != "" {
		opts = append(opts, openaioption.WithBaseURL(strings.TrimRight(base, "/")))
	}
	if c.HTTPClient != nil {
		opts = append(opts, openaioption.WithHTTPClient(c.HTTPClient))
	}
	sdk := openai.NewClient(opts...)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.Model),
		Messages: messages,
	}
	if c.maxTokens() > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens()))
	}

	resp, err := sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
