package handler

import (
	"encoding/base64"
	"testing"

	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCursor(t *testing.T) {
	want := &queue.Cursor{CreatedAt: 1767225600000, ID: "6f1c1f2e-8f3a-4a59-9d33-0c6f3f2b7a11"}

	got, err := DecodeJobCursor(EncodeJobCursor(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	empty, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, empty)

	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "%%%"},
		{"missing separator", base64.RawURLEncoding.EncodeToString([]byte("not-a-cursor"))},
		{"bad timestamp", base64.RawURLEncoding.EncodeToString([]byte("abc|6f1c1f2e-8f3a-4a59-9d33-0c6f3f2b7a11"))},
		{"bad id", base64.RawURLEncoding.EncodeToString([]byte("1767225600000|42"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJobCursor(tt.cursor)
			assert.Error(t, err)
		})
	}
}
