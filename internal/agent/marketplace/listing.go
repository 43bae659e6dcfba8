package marketplace

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cuongbtq/agent-jobs/internal/model"
)

const qaPassScore = 70

// QAReport is the result of qa-review
type QAReport struct {
	ProductID int64    `json:"productId"`
	Score     int      `json:"score"`
	Passed    bool     `json:"passed"`
	Issues    []string `json:"issues"`
}

// QAReview checks listing quality: title, description, images, price and category
func (s *Service) QAReview(ctx context.Context, in ProductInput) (*QAReport, error) {
	if in.ProductID == 0 {
		return nil, ErrProductIDRequired
	}

	p, err := s.repo.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	out := &QAReport{ProductID: p.ID, Issues: []string{}}
	score := 100
	penalize := func(points int, issue string) {
		score -= points
		out.Issues = append(out.Issues, issue)
	}

	if len(strings.TrimSpace(p.Title)) < 10 {
		penalize(20, "title is shorter than 10 characters")
	}
	if len(strings.TrimSpace(p.Description)) < 50 {
		penalize(25, "description is shorter than 50 characters")
	}
	switch {
	case p.ImageCount == 0:
		penalize(25, "listing has no images")
	case p.ImageCount < 3:
		penalize(10, "listing has fewer than 3 images")
	}
	if p.PriceCents <= 0 {
		penalize(30, "price is not set")
	}
	if strings.TrimSpace(p.Category) == "" {
		penalize(10, "category is missing")
	}

	if score < 0 {
		score = 0
	}
	out.Score = score
	out.Passed = score >= qaPassScore
	return out, nil
}

const (
	defaultRecommendations = 10
	maxRecommendations     = 50
	purchaseHistory        = 50
)

// RecommendInput is the payload of recommend
type RecommendInput struct {
	UserID string `json:"userId"`
	Limit  int    `json:"limit,omitempty"`
}

// RecommendedProduct is one ranked recommendation
type RecommendedProduct struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	Reason   string  `json:"reason"`
}

// Recommendations is the result of recommend
type Recommendations struct {
	UserID   string               `json:"userId"`
	Products []RecommendedProduct `json:"products"`
}

// Recommend ranks popular products in the user's purchased categories first,
// then fills with overall best sellers. Purchased products are excluded.
func (s *Service) Recommend(ctx context.Context, in RecommendInput) (*Recommendations, error) {
	if in.UserID == "" {
		return nil, ErrUserIDRequired
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultRecommendations
	}
	if limit > maxRecommendations {
		limit = maxRecommendations
	}

	purchases, err := s.repo.ListBuyerPurchases(ctx, in.UserID, purchaseHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchases: %w", err)
	}

	owned := make(map[int64]bool, len(purchases))
	ids := make([]int64, 0, len(purchases))
	for _, p := range purchases {
		if !owned[p.ProductID] {
			owned[p.ProductID] = true
			ids = append(ids, p.ProductID)
		}
	}

	bought, err := s.repo.ListProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchased products: %w", err)
	}

	categoryCount := make(map[string]int)
	for _, p := range bought {
		categoryCount[p.Category]++
	}
	categories := make([]string, 0, len(categoryCount))
	for c := range categoryCount {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if categoryCount[categories[i]] != categoryCount[categories[j]] {
			return categoryCount[categories[i]] > categoryCount[categories[j]]
		}
		return categories[i] < categories[j]
	})

	out := &Recommendations{UserID: in.UserID, Products: []RecommendedProduct{}}
	picked := make(map[int64]bool)
	take := func(candidates []RecommendedProduct) {
		for _, c := range candidates {
			if len(out.Products) >= limit {
				return
			}
			if owned[c.ID] || picked[c.ID] {
				continue
			}
			picked[c.ID] = true
			out.Products = append(out.Products, c)
		}
	}

	fetch := limit + len(owned)
	if len(categories) > 0 {
		inCategory, err := s.repo.ListPopularProducts(ctx, categories, fetch)
		if err != nil {
			return nil, fmt.Errorf("failed to load category products: %w", err)
		}
		take(recommended(inCategory, "popular in a category you bought from"))
	}

	if len(out.Products) < limit {
		popular, err := s.repo.ListPopularProducts(ctx, nil, fetch)
		if err != nil {
			return nil, fmt.Errorf("failed to load popular products: %w", err)
		}
		take(recommended(popular, "best seller"))
	}

	return out, nil
}

func recommended(products []model.Product, reason string) []RecommendedProduct {
	out := make([]RecommendedProduct, 0, len(products))
	for _, p := range products {
		out = append(out, RecommendedProduct{
			ID:       p.ID,
			Title:    p.Title,
			Category: p.Category,
			Price:    dollars(p.PriceCents),
			Reason:   reason,
		})
	}
	return out
}
