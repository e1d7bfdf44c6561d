package summarize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"notedigest/internal/content"
	"notedigest/internal/schedule"
)

type ModelType string

const (
	ModelTypeOpenAI      ModelType = "openai"
	ModelTypeAnthropics  ModelType = "anthropics"
	modelTypeAnthropicV1 ModelType = "anthropic"
)

func ParseModelType(raw string) (ModelType, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "", string(ModelTypeOpenAI):
		return ModelTypeOpenAI, nil
	case string(ModelTypeAnthropics), string(modelTypeAnthropicV1):
		return ModelTypeAnthropics, nil
	default:
		return "", fmt.Errorf("unsupported model_type %q (supported: %q, %q)", raw, ModelTypeOpenAI, ModelTypeAnthropics)
	}
}

// Client is the LLM-backed Summarizer. The backend is selected by ModelType;
// both backends share the same prompt and response contract.
type Client struct {
	ModelType  ModelType
	Model      string
	APIKey     string
	BaseURL    string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Options struct {
	ModelType string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

func NewClient(opts Options) (*Client, error) {
	modelType, err := ParseModelType(opts.ModelType)
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("summarizer api key is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		switch modelType {
		case ModelTypeAnthropics:
			model = "claude-sonnet-4-5"
		default:
			model = "gpt-4o-mini"
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		ModelType:  modelType,
		Model:      model,
		APIKey:     apiKey,
		BaseURL:    strings.TrimSpace(opts.BaseURL),
		MaxTokens:  opts.MaxTokens,
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Summarize(ctx context.Context, notes []content.Note, opts schedule.SummaryOptions) (*Summary, error) {
	if c == nil {
		return nil, errors.New("nil summarizer")
	}
	if len(notes) == 0 {
		return nil, errors.New("no notes to summarize")
	}

	system, prompt := buildPrompt(notes, opts)

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var (
		raw string
		err error
	)
	switch c.ModelType {
	case ModelTypeAnthropics:
		raw, err = c.chatAnthropics(ctx, system, prompt)
	default:
		raw, err = c.chatOpenAI(ctx, system, prompt)
	}
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	summary, err := parseSummary(raw)
	if err != nil {
		return nil, err
	}
	if !opts.IncludeActionItems {
		summary.ActionItems = nil
	}
	if !opts.IncludePriority {
		summary.Priority = ""
	}
	return summary, nil
}

func (c *Client) maxTokens() int {
	if c != nil && c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 2048
}
