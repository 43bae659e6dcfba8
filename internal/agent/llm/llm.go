package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrDisabled is returned by a nil client
var ErrDisabled = errors.New("llm completion disabled")

// Completer produces a text completion for a system instruction and user prompt
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config holds Anthropic Messages API settings
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

// AnthropicClient calls the Anthropic Messages API
type AnthropicClient struct {
	config *Config
	http   *http.Client
}

// NewAnthropicClient returns nil when no API key is configured
func NewAnthropicClient(config *Config) *AnthropicClient {
	if config == nil || config.APIKey == "" {
		return nil
	}

	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &AnthropicClient{
		config: &cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends one user message and returns the first text block of the reply
func (c *AnthropicClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if c == nil {
		return "", ErrDisabled
	}

	body, err := json.Marshal(messageRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read llm response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("llm request returned %d: %s", resp.StatusCode, msg)
	}

	text := gjson.GetBytes(raw, "content.0.text")
	if !text.Exists() {
		return "", fmt.Errorf("llm response has no text content")
	}
	return text.String(), nil
}

// ExtractJSON locates the first JSON object embedded in free text
func ExtractJSON(text string) (gjson.Result, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		end := matchingBrace(text, start)
		if end > start {
			candidate := text[start : end+1]
			if gjson.Valid(candidate) {
				return gjson.Parse(candidate), true
			}
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return gjson.Result{}, false
}

// matchingBrace returns the index closing the object opened at start, or -1
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// DecodeOr decodes the first JSON object in text into a T. Malformed or
// missing output yields def, and a warning naming what was defaulted is logged.
func DecodeOr[T any](logger *slog.Logger, text string, def T, what string) T {
	obj, ok := ExtractJSON(text)
	if !ok {
		logger.Warn("LLM output has no JSON object, using default",
			slog.String("default_for", what),
		)
		return def
	}

	var v T
	if err := json.Unmarshal([]byte(obj.Raw), &v); err != nil {
		logger.Warn("LLM output does not match expected shape, using default",
			slog.String("default_for", what),
			slog.Any("error", err),
		)
		return def
	}
	return v
}
