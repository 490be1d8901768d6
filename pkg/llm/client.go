package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNotConfigured is returned when no API key is set; callers decide whether
// to fall back to canned output.
var ErrNotConfigured = errors.New("llm: api key not configured")

// Chatter 定义模型客户端接口
type Chatter interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Model() string
}

// Client OpenAI 兼容的 chat-completions 客户端
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient 创建模型客户端
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Model reports the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Complete sends the messages to the chat-completions endpoint and returns
// the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	tracer := otel.Tracer("dealflow/llm")
	ctx, span := tracer.Start(ctx, "llm.Complete")
	span.SetAttributes(attribute.String("model", c.config.Model))
	defer span.End()

	if c.config.APIKey == "" {
		return "", ErrNotConfigured
	}

	request := chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			c.logger.Warnf("llm retry attempt %d/%d", attempt, c.config.MaxRetries)
		}

		content, err := c.doCompletion(ctx, &request)
		if err == nil {
			return content, nil
		}
		lastErr = err
	}

	span.SetStatus(codes.Error, lastErr.Error())
	return "", lastErr
}

func (c *Client) doCompletion(ctx context.Context, request *chatRequest) (string, error) {
	reqBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("llm response: %d (%d bytes)", resp.StatusCode, len(body))

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("model API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
