package legal

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Difference kinds
const (
	DiffAdded   = "added"
	DiffRemoved = "removed"
)

// CompareInput is the payload of compare-documents
type CompareInput struct {
	TemplateIDA int64 `json:"templateIdA"`
	TemplateIDB int64 `json:"templateIdB"`
}

// Difference is a line present in only one of the two documents
type Difference struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Comparison is the result of compare-documents
type Comparison struct {
	Similarity     float64      `json:"similarity"`
	Differences    []Difference `json:"differences"`
	Recommendation string       `json:"recommendation"`
}

const nearIdenticalThreshold = 0.95

// CompareDocuments diffs two templates line by line
func (s *Service) CompareDocuments(ctx context.Context, in CompareInput) (*Comparison, error) {
	if in.TemplateIDA == 0 || in.TemplateIDB == 0 {
		return nil, ErrTemplateIDsRequired
	}

	a, err := s.repo.GetTemplate(ctx, in.TemplateIDA)
	if err != nil {
		return nil, fmt.Errorf("failed to load template A: %w", err)
	}
	b, err := s.repo.GetTemplate(ctx, in.TemplateIDB)
	if err != nil {
		return nil, fmt.Errorf("failed to load template B: %w", err)
	}

	return compareText(a.Content, b.Content), nil
}

func compareText(a, b string) *Comparison {
	linesA, linesB := significantLines(a), significantLines(b)
	inA, inB := toSet(linesA), toSet(linesB)

	out := &Comparison{Differences: []Difference{}}
	common := 0
	for _, l := range linesA {
		if _, ok := inB[l]; ok {
			common++
			continue
		}
		out.Differences = append(out.Differences, Difference{Type: DiffRemoved, Text: l})
	}
	for _, l := range linesB {
		if _, ok := inA[l]; !ok {
			out.Differences = append(out.Differences, Difference{Type: DiffAdded, Text: l})
		}
	}

	union := len(inA) + len(inB) - common
	if union == 0 {
		out.Similarity = 1
	} else {
		out.Similarity = math.Round(float64(common)/float64(union)*100) / 100
	}

	switch {
	case out.Similarity >= nearIdenticalThreshold:
		out.Recommendation = "Documents are near-identical; no substantive changes to review."
	case out.Similarity >= 0.6:
		out.Recommendation = "Documents share most of their content; review the listed differences."
	default:
		out.Recommendation = "Documents differ substantially; review both versions in full."
	}
	return out
}

// significantLines returns unique normalized non-empty lines in order
func significantLines(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, line := range strings.Split(text, "\n") {
		l := strings.Join(strings.Fields(strings.ToLower(line)), " ")
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func toSet(lines []string) map[string]struct{} {
	set := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		set[l] = struct{}{}
	}
	return set
}
