package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrAuthExpired means the workspace credential was rejected. The core
	// records it and lets the next scheduled run try again.
	ErrAuthExpired = errors.New("workspace credential expired")

	// ErrRateLimited means the workspace API throttled us.
	ErrRateLimited = errors.New("workspace rate limited")
)

// Note is one content item from the user's note workspace.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type notesResponse struct {
	Notes []Note `json:"notes"`
}

// Client fetches notes from the workspace API with a bearer credential.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewClient(baseURL string, token string) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("notes base url is required")
	}
	return &Client{
		BaseURL:    base,
		Token:      strings.TrimSpace(token),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// FetchNotes returns notes touched inside the lookback window. An empty result
// is not an error.
func (c *Client) FetchNotes(ctx context.Context, sinceDays int) ([]Note, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	if sinceDays <= 0 {
		sinceDays = 1
	}

	endpoint := c.BaseURL + "/api/notes?" + url.Values{
		"since_days": []string{strconv.Itoa(sinceDays)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch notes: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrAuthExpired
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch notes: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed notesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse notes response: %w", err)
	}
	return parsed.Notes, nil
}

func (c *Client) httpClient() *http.Client {
	if c == nil || c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}
