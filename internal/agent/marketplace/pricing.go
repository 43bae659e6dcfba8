package marketplace

import (
	"context"
	"fmt"
	"math"
)

// PriceInput is the payload of price-optimize
type PriceInput struct {
	ProductID int64 `json:"productId"`
}

// PriceSuggestion is the result of price-optimize
type PriceSuggestion struct {
	ProductID      int64    `json:"productId"`
	CurrentPrice   float64  `json:"currentPrice"`
	SuggestedPrice float64  `json:"suggestedPrice"`
	ChangePercent  float64  `json:"changePercent"`
	Confidence     float64  `json:"confidence"`
	Reasoning      []string `json:"reasoning"`
}

// OptimizePrice suggests a price from conversion rate and stock level
func (s *Service) OptimizePrice(ctx context.Context, in PriceInput) (*PriceSuggestion, error) {
	if in.ProductID == 0 {
		return nil, ErrProductIDRequired
	}

	p, err := s.repo.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	out := &PriceSuggestion{
		ProductID:    p.ID,
		CurrentPrice: dollars(p.PriceCents),
		Reasoning:    []string{},
	}

	conversion := 0.0
	if p.Views > 0 {
		conversion = float64(p.Sales) / float64(p.Views)
	}

	change := 0.0
	switch {
	case p.Views >= 100 && conversion < 0.01:
		change = -10
		out.Reasoning = append(out.Reasoning, fmt.Sprintf("Conversion rate %.1f%% is below 1%%.", conversion*100))
	case conversion > 0.05 && p.Stock < 10:
		change = 10
		out.Reasoning = append(out.Reasoning, fmt.Sprintf("Conversion rate %.1f%% is strong and stock is low.", conversion*100))
	case p.Stock > 100 && p.Sales < 10:
		change = -5
		out.Reasoning = append(out.Reasoning, "Large stock with few sales.")
	default:
		out.Reasoning = append(out.Reasoning, "Demand and stock are balanced; keep the current price.")
	}

	out.ChangePercent = change
	out.SuggestedPrice = round2(out.CurrentPrice * (1 + change/100))
	out.Confidence = round2(math.Min(0.95, 0.5+float64(p.Views)/2000))

	return out, nil
}
