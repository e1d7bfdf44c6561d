package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTelegramAPIBase = "https://api.telegram.org"

// Telegram messages above this length are rejected by the Bot API.
const maxTelegramMessageLen = 4096

// TelegramSink delivers digests through the Telegram Bot API.
type TelegramSink struct {
	BotToken   string
	APIBase    string
	HTTPClient *http.Client
}

func NewTelegramSink(botToken string) (*TelegramSink, error) {
	token := strings.TrimSpace(botToken)
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	return &TelegramSink{
		BotToken:   token,
		APIBase:    defaultTelegramAPIBase,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *TelegramSink) Channel() string { return "telegram" }

type telegramSendRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *TelegramSink) Deliver(ctx context.Context, req Request) error {
	if s == nil {
		return errors.New("telegram sink is nil")
	}
	chatID := strings.TrimSpace(req.Address)
	if chatID == "" {
		return errors.New("telegram chat id is required")
	}

	text := strings.TrimSpace(req.Markdown)
	if subject := strings.TrimSpace(req.Subject); subject != "" {
		text = "*" + subject + "*\n\n" + text
	}
	if text == "" {
		text = "(empty)"
	}
	text = truncateUTF8(text, maxTelegramMessageLen)

	payload, err := json.Marshal(telegramSendRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return err
	}

	base := strings.TrimRight(strings.TrimSpace(s.APIBase), "/")
	if base == "" {
		base = defaultTelegramAPIBase
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", base, s.BotToken)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed telegramResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("telegram send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !parsed.OK {
		desc := strings.TrimSpace(parsed.Description)
		if desc == "" {
			desc = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("telegram send failed: %s", desc)
	}
	return nil
}

func (s *TelegramSink) httpClient() *http.Client {
	if s == nil || s.HTTPClient == nil {
		return http.DefaultClient
	}
	return s.HTTPClient
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}
