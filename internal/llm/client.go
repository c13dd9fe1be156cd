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

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meridianlabs-ai/deepresearch/internal/config"
	"github.com/meridianlabs-ai/deepresearch/internal/metrics"
)

// Request is a single completion request. SchemaHint, when set, is appended
// to the system prompt and the response is constrained to a JSON object.
type Request struct {
	System      string
	Prompt      string
	SchemaHint  string
	Temperature *float64
	MaxTokens   int
}

// Client maps a prompt to model text or an error. Implementations are
// stateless and safe for concurrent use across runs.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// APIError is a non-2xx response from the model endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api status %d: %s", e.Status, e.Body)
}

// Retryable reports whether the call may be retried. Rate limits and server
// errors are transient; other 4xx mean the request itself is malformed.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// HTTPClient talks to an OpenAI-compatible chat-completions endpoint.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxAttempts int
	backoffBase time.Duration
	httpc       *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewHTTPClient builds a client from configuration. The limiter enforces the
// configured inter-call delay across all stages sharing this client.
func NewHTTPClient(cfg config.LLMConfig, logger *zap.Logger) *HTTPClient {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	limit := rate.Inf
	if cfg.InterCallDelay > 0 {
		limit = rate.Every(cfg.InterCallDelay)
	}
	return &HTTPClient{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxAttempts: maxAttempts,
		backoffBase: time.Second,
		httpc:       &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete issues the request with bounded retries: transport errors, rate
// limits, and 5xx back off exponentially up to the attempt ceiling; malformed
// requests surface immediately.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(c.buildPayload(req))
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
		start := time.Now()
		text, err := c.doOnce(ctx, body)
		metrics.LLMCallDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.LLMCalls.WithLabelValues("ok").Inc()
			return text, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			metrics.LLMCalls.WithLabelValues("malformed").Inc()
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		metrics.LLMCalls.WithLabelValues("retry").Inc()
		if attempt < c.maxAttempts {
			delay := c.backoffBase * time.Duration(1<<uint(attempt-1))
			c.logger.Warn("LLM call failed, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	metrics.LLMCalls.WithLabelValues("exhausted").Inc()
	return "", fmt.Errorf("llm call failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// Ping checks endpoint reachability for health reporting. It hits the models
// listing route so no tokens are consumed.
func (c *HTTPClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &APIError{Status: resp.StatusCode, Body: "models endpoint unavailable"}
	}
	return nil
}

func (c *HTTPClient) buildPayload(req Request) chatRequest {
	temp := c.temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	system := req.System
	if req.SchemaHint != "" {
		system += "\n\nYou MUST respond with a single valid JSON object matching this schema:\n" + req.SchemaHint
	}
	msgs := make([]chatMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	payload := chatRequest{
		Model:       c.model,
		Temperature: temp,
		MaxTokens:   req.MaxTokens,
		Messages:    msgs,
	}
	if req.SchemaHint != "" {
		payload.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}
	return payload
}

func (c *HTTPClient) doOnce(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{Status: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llm error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", errors.New("llm returned empty completion")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
