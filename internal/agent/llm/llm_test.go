package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		wantOK bool
		want   string
	}{
		{"bare object", `{"score":80}`, true, `{"score":80}`},
		{"wrapped in prose", "Here you go:\n```json\n{\"score\": 72, \"issues\": [\"a}\"]}\n```\nThanks", true, `{"score": 72, "issues": ["a}"]}`},
		{"skips invalid prefix", `{not json} then {"ok":true}`, true, `{"ok":true}`},
		{"nested", `x {"a":{"b":1}} y`, true, `{"a":{"b":1}}`},
		{"no object", "no json here", false, ""},
		{"unterminated", `{"a":1`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.Raw)
			}
		})
	}
}

type verdict struct {
	Score  int      `json:"score"`
	Issues []string `json:"issues"`
}

func TestDecodeOr(t *testing.T) {
	def := verdict{Score: 50, Issues: []string{}}

	t.Run("decodes", func(t *testing.T) {
		got := DecodeOr(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)), `Result: {"score": 91, "issues": ["x"]}`, def, "verdict")
		assert.Equal(t, verdict{Score: 91, Issues: []string{"x"}}, got)
	})

	t.Run("falls back and warns", func(t *testing.T) {
		out := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(out, nil))

		got := DecodeOr(logger, `{"score": "high"}`, def, "verdict")
		assert.Equal(t, def, got)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "verdict", entry["default_for"])
	})

	t.Run("no json", func(t *testing.T) {
		out := &bytes.Buffer{}
		got := DecodeOr(slog.New(slog.NewJSONHandler(out, nil)), "I cannot help with that", def, "verdict")
		assert.Equal(t, def, got)
		assert.Contains(t, out.String(), "using default")
	})
}

func TestNewAnthropicClient_Disabled(t *testing.T) {
	assert.Nil(t, NewAnthropicClient(nil))
	assert.Nil(t, NewAnthropicClient(&Config{Model: "claude"}))

	var c *AnthropicClient
	_, err := c.Complete(context.Background(), "", "hi")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestAnthropicClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var req messageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "You review contracts.", req.System)
		assert.Equal(t, 256, req.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"score\":88}"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(&Config{APIKey: "test-key", Model: "claude", BaseURL: srv.URL, MaxTokens: 256})
	text, err := c.Complete(context.Background(), "You review contracts.", "Review this")
	require.NoError(t, err)
	assert.Equal(t, `{"score":88}`, text)
}

func TestAnthropicClient_CompleteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(&Config{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "slow down")
}
