package handler

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/google/uuid"
)

// DecodeJobCursor parses an opaque "createdAt|id" listing cursor
func DecodeJobCursor(cursorStr string) (*queue.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(decodedParts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	if _, err := uuid.Parse(decodedParts[1]); err != nil {
		return nil, fmt.Errorf("invalid job id in cursor: %w", err)
	}

	return &queue.Cursor{
		CreatedAt: createdAt,
		ID:        decodedParts[1],
	}, nil
}

// EncodeJobCursor builds the opaque cursor DecodeJobCursor reads back
func EncodeJobCursor(cursor *queue.Cursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt, cursor.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
