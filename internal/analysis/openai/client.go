// Package openai implements analysis.Completer against an OpenAI-compatible
// chat completions endpoint in JSON response mode.
package openai

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

	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/analysis"
	"github.com/JakeFAU/sitereport/internal/retry"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// Limiter throttles outbound requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls the Client.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    float64
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Client calls the chat completions API.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter Limiter
	policy  retry.Policy
	logger  *zap.Logger
}

// StatusError is a non-2xx response from the service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model service returned %d: %s", e.StatusCode, e.Message)
}

// New builds a Client. limiter may be nil.
func New(cfg Config, limiter Limiter, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("analysis api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: limiter,
		policy:  retry.NewExponential(cfg.MaxRetries, cfg.RetryBaseDelay).WithClassifier(isTransient),
		logger:  logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one JSON-mode chat request, retrying transient failures.
func (c *Client) Complete(ctx context.Context, req analysis.CompletionRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature:    c.cfg.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var content string
	err = c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			c.logger.Warn("retrying model request", zap.Int("attempt", attempt+1))
		}
		out, callErr := c.call(ctx, body)
		if callErr != nil {
			return callErr
		}
		content = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) call(ctx context.Context, body []byte) (string, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return "", err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	var decoded chatResponse
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(payload))
		if jsonErr := json.Unmarshal(payload, &decoded); jsonErr == nil && decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return "", &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", errors.New("model returned no content")
	}
	return decoded.Choices[0].Message.Content, nil
}

// isTransient retries network failures and request timeouts, 429 and 5xx responses.
func isTransient(err error) bool {
	if !retry.RetryUnlessCanceled(err) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}
