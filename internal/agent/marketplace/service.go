// Package marketplace implements the marketplace agents: fraud screening,
// pricing, review analysis, listing QA, recommendations and inventory alerts.
package marketplace

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/agent/llm"
	"github.com/cuongbtq/agent-jobs/internal/model"
)

// Business rule violations returned by the agents
var (
	ErrProductIDRequired   = errors.New("productId is required")
	ErrUserIDRequired      = errors.New("userId is required")
	ErrReviewInputRequired = errors.New("productId or reviewText is required")
	ErrInventoryTarget     = errors.New("sellerId or productId is required")
	ErrPurchaseRefunded    = errors.New("purchase already refunded")
)

// Repository is the data the marketplace agents read
type Repository interface {
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListSellerProducts(ctx context.Context, sellerID string) ([]model.Product, error)
	ListPopularProducts(ctx context.Context, categories []string, limit int) ([]model.Product, error)
	ListProductsByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
	ListProductReviews(ctx context.Context, productID int64, limit int) ([]model.ProductReview, error)
	GetPurchase(ctx context.Context, id int64) (*model.Purchase, error)
	ListBuyerPurchases(ctx context.Context, buyerID string, limit int) ([]model.Purchase, error)
	CountRecentPurchases(ctx context.Context, buyerID string, since int64) (int, error)
}

// Service holds the marketplace agents. It has no state beyond its dependencies.
type Service struct {
	repo   Repository
	llm    llm.Completer
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates the marketplace agents; completer may be nil.
func NewService(repo Repository, completer llm.Completer, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		llm:    completer,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) ask(ctx context.Context, system, prompt string) (string, bool) {
	if s.llm == nil {
		return "", false
	}

	text, err := s.llm.Complete(ctx, system, prompt)
	if err != nil {
		s.logger.Warn("LLM completion failed, using heuristic result",
			slog.Any("error", err),
		)
		return "", false
	}
	return text, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func dollars(cents int64) float64 {
	return round2(float64(cents) / 100)
}
