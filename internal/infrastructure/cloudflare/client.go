package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultModel is the Workers AI model used when none is configured.
const DefaultModel = "@cf/meta/llama-3.3-70b-instruct-fp8-fast"

const requestTimeout = 30 * time.Second

// Client calls the Cloudflare Workers AI chat-completion endpoint. It
// implements codegen.Backend: a bounded upstream timeout and an error, never
// a hang, when no usable result comes back.
type Client struct {
	accountID string
	authToken string
	model     string
	baseURL   string
	http      *http.Client
	logger    zerolog.Logger
}

// New creates a Workers AI client.
func New(accountID, authToken, model string, logger zerolog.Logger) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		accountID: accountID,
		authToken: authToken,
		model:     model,
		baseURL:   "https://api.cloudflare.com/client/v4",
		http:      &http.Client{Timeout: requestTimeout},
		logger:    logger.With().Str("backend", "cloudflare").Logger(),
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Response string `json:"response"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Complete runs one chat completion and returns the raw model response.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(chatRequest{Messages: []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/accounts/%s/ai/run/%s", c.baseURL, c.accountID, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("workers ai request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("workers ai response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("workers ai response: %w", err)
	}
	if !parsed.Success {
		msg := "unknown error"
		if len(parsed.Errors) > 0 {
			msg = parsed.Errors[0].Message
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("error", msg).Msg("workers ai call failed")
		return "", fmt.Errorf("workers ai: %s", msg)
	}
	return parsed.Result.Response, nil
}
