package legal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// AutoFillInput is the payload of auto-fill
type AutoFillInput struct {
	TemplateID int64          `json:"templateId,omitempty"`
	Content    string         `json:"content,omitempty"`
	Data       map[string]any `json:"data"`
}

// AutoFillResult is the filled document and the placeholders it still has
type AutoFillResult struct {
	Content       string   `json:"content"`
	FilledFields  []string `json:"filledFields"`
	MissingFields []string `json:"missingFields"`
}

// AutoFill substitutes {{field}} placeholders with values from Data.
// Unknown placeholders are left in place and reported as missing.
func (s *Service) AutoFill(ctx context.Context, in AutoFillInput) (*AutoFillResult, error) {
	doc, err := s.resolve(ctx, in.TemplateID, 0, in.Content)
	if err != nil {
		return nil, err
	}

	out := &AutoFillResult{FilledFields: []string{}, MissingFields: []string{}}
	seen := make(map[string]bool)

	out.Content = placeholder.ReplaceAllStringFunc(doc.content, func(match string) string {
		field := placeholder.FindStringSubmatch(match)[1]
		value, ok := in.Data[field]
		if !ok || value == nil {
			if !seen[field] {
				seen[field] = true
				out.MissingFields = append(out.MissingFields, field)
			}
			return match
		}
		if !seen[field] {
			seen[field] = true
			out.FilledFields = append(out.FilledFields, field)
		}
		return strings.TrimSpace(fmt.Sprint(value))
	})

	return out, nil
}
