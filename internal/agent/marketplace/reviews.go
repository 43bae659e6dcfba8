package marketplace

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/cuongbtq/agent-jobs/internal/agent/llm"
)

// Sentiment labels
const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
)

const reviewSampleSize = 200

var positiveLexicon = map[string]bool{
	"great": true, "excellent": true, "love": true, "amazing": true, "good": true, "perfect": true,
	"recommend": true, "fast": true, "happy": true, "quality": true, "best": true, "works": true,
	"sturdy": true, "beautiful": true, "easy": true,
}

var negativeLexicon = map[string]bool{
	"bad": true, "terrible": true, "broken": true, "poor": true, "awful": true, "slow": true,
	"refund": true, "disappointed": true, "worst": true, "cheap": true, "defective": true,
	"late": true, "damaged": true, "useless": true, "return": true,
}

// ReviewsInput is the payload of analyze-reviews
type ReviewsInput struct {
	ProductID  int64  `json:"productId,omitempty"`
	ReviewText string `json:"reviewText,omitempty"`
}

// ProductInput identifies a product
type ProductInput struct {
	ProductID int64 `json:"productId"`
}

// Sentiment is the lexicon sentiment of one text
type Sentiment struct {
	Score         float64  `json:"score"`
	Label         string   `json:"label"`
	PositiveTerms []string `json:"positiveTerms"`
	NegativeTerms []string `json:"negativeTerms"`
}

// ProductSentiment aggregates sentiment across a product's reviews
type ProductSentiment struct {
	ProductID     int64          `json:"productId"`
	ReviewCount   int            `json:"reviewCount"`
	AverageRating float64        `json:"averageRating"`
	AverageScore  float64        `json:"averageScore"`
	Distribution  map[string]int `json:"distribution"`
}

// Authenticity lists reviews that look fabricated
type Authenticity struct {
	ProductID           int64    `json:"productId"`
	AuthenticityScore   int      `json:"authenticityScore"`
	SuspiciousReviewIDs []int64  `json:"suspiciousReviewIds"`
	Flags               []string `json:"flags"`
}

// ReviewSummary condenses a product's reviews
type ReviewSummary struct {
	ProductID int64    `json:"productId"`
	Summary   string   `json:"summary"`
	Pros      []string `json:"pros"`
	Cons      []string `json:"cons"`
}

// ReviewAnalysis is the merged result of the product review fan-out
type ReviewAnalysis struct {
	ProductID    int64             `json:"productId"`
	Sentiment    *ProductSentiment `json:"sentiment"`
	Authenticity *Authenticity     `json:"authenticity"`
	Summary      *ReviewSummary    `json:"summary"`
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

// AnalyzeSentiment scores one text against the sentiment lexicons
func (s *Service) AnalyzeSentiment(ctx context.Context, in ReviewsInput) (*Sentiment, error) {
	if strings.TrimSpace(in.ReviewText) == "" {
		return nil, ErrReviewInputRequired
	}
	return sentimentOf(in.ReviewText), nil
}

func sentimentOf(text string) *Sentiment {
	out := &Sentiment{PositiveTerms: []string{}, NegativeTerms: []string{}}
	seen := make(map[string]bool)

	var pos, neg int
	for _, w := range tokenize(text) {
		switch {
		case positiveLexicon[w]:
			pos++
			if !seen[w] {
				out.PositiveTerms = append(out.PositiveTerms, w)
			}
		case negativeLexicon[w]:
			neg++
			if !seen[w] {
				out.NegativeTerms = append(out.NegativeTerms, w)
			}
		}
		seen[w] = true
	}

	if pos+neg > 0 {
		out.Score = round2(float64(pos-neg) / float64(pos+neg))
	}
	out.Label = labelFor(out.Score)
	return out
}

func labelFor(score float64) string {
	switch {
	case score > 0.2:
		return LabelPositive
	case score < -0.2:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// ProductSentiment aggregates review sentiment for a product
func (s *Service) ProductSentiment(ctx context.Context, in ProductInput) (*ProductSentiment, error) {
	if in.ProductID == 0 {
		return nil, ErrProductIDRequired
	}

	reviews, err := s.repo.ListProductReviews(ctx, in.ProductID, reviewSampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}

	out := &ProductSentiment{
		ProductID:    in.ProductID,
		ReviewCount:  len(reviews),
		Distribution: map[string]int{LabelPositive: 0, LabelNeutral: 0, LabelNegative: 0},
	}
	if len(reviews) == 0 {
		return out, nil
	}

	var ratings, scores float64
	for _, r := range reviews {
		sent := sentimentOf(r.Body)
		ratings += float64(r.Rating)
		scores += sent.Score
		out.Distribution[sent.Label]++
	}
	out.AverageRating = round2(ratings / float64(len(reviews)))
	out.AverageScore = round2(scores / float64(len(reviews)))

	return out, nil
}

// DetectFakeReviews flags unverified extreme short reviews, duplicated bodies
// and users reviewing the same product more than once.
func (s *Service) DetectFakeReviews(ctx context.Context, in ProductInput) (*Authenticity, error) {
	if in.ProductID == 0 {
		return nil, ErrProductIDRequired
	}

	reviews, err := s.repo.ListProductReviews(ctx, in.ProductID, reviewSampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}

	out := &Authenticity{
		ProductID:           in.ProductID,
		AuthenticityScore:   100,
		SuspiciousReviewIDs: []int64{},
		Flags:               []string{},
	}
	if len(reviews) == 0 {
		return out, nil
	}

	bodies := make(map[string]int)
	users := make(map[string]int)
	for _, r := range reviews {
		bodies[strings.ToLower(strings.TrimSpace(r.Body))]++
		users[r.UserID]++
	}

	var extreme, duplicate, repeat bool
	for _, r := range reviews {
		suspicious := false
		if !r.VerifiedPurchase && (r.Rating == 1 || r.Rating == 5) && len(strings.TrimSpace(r.Body)) < 20 {
			suspicious, extreme = true, true
		}
		if bodies[strings.ToLower(strings.TrimSpace(r.Body))] > 1 {
			suspicious, duplicate = true, true
		}
		if users[r.UserID] > 1 {
			suspicious, repeat = true, true
		}
		if suspicious {
			out.SuspiciousReviewIDs = append(out.SuspiciousReviewIDs, r.ID)
		}
	}

	if extreme {
		out.Flags = append(out.Flags, "short unverified extreme ratings")
	}
	if duplicate {
		out.Flags = append(out.Flags, "duplicate review text")
	}
	if repeat {
		out.Flags = append(out.Flags, "multiple reviews from one user")
	}

	out.AuthenticityScore = 100 - len(out.SuspiciousReviewIDs)*100/len(reviews)
	return out, nil
}

// SummarizeReviews lists the most mentioned praise and complaints
func (s *Service) SummarizeReviews(ctx context.Context, in ProductInput) (*ReviewSummary, error) {
	if in.ProductID == 0 {
		return nil, ErrProductIDRequired
	}

	reviews, err := s.repo.ListProductReviews(ctx, in.ProductID, reviewSampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}

	out := &ReviewSummary{ProductID: in.ProductID, Pros: []string{}, Cons: []string{}}
	if len(reviews) == 0 {
		out.Summary = "No reviews yet."
		return out, nil
	}

	posCount := make(map[string]int)
	negCount := make(map[string]int)
	var bodies []string
	for _, r := range reviews {
		sent := sentimentOf(r.Body)
		for _, w := range sent.PositiveTerms {
			posCount[w]++
		}
		for _, w := range sent.NegativeTerms {
			negCount[w]++
		}
		bodies = append(bodies, r.Body)
	}

	out.Pros = topTerms(posCount, 3)
	out.Cons = topTerms(negCount, 3)
	out.Summary = fmt.Sprintf("%d review(s). Praised for: %s. Criticized for: %s.",
		len(reviews), listOrNone(out.Pros), listOrNone(out.Cons))

	if text, ok := s.ask(ctx, "You summarize product reviews. Reply with one JSON object only.",
		`Summarize these reviews as {"summary":""}:`+"\n"+strings.Join(bodies, "\n---\n")); ok {
		parsed := llm.DecodeOr(s.logger, text, struct {
			Summary string `json:"summary"`
		}{Summary: out.Summary}, "review summary")
		if parsed.Summary != "" {
			out.Summary = parsed.Summary
		}
	}

	return out, nil
}

func topTerms(counts map[string]int, n int) []string {
	terms := make([]string, 0, len(counts))
	for w := range counts {
		terms = append(terms, w)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func listOrNone(terms []string) string {
	if len(terms) == 0 {
		return "nothing in particular"
	}
	return strings.Join(terms, ", ")
}
