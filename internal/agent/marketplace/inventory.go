package marketplace

import (
	"context"
	"fmt"

	"github.com/cuongbtq/agent-jobs/internal/model"
)

// Alert severities
const (
	SeverityOutOfStock = "out_of_stock"
	SeverityLowStock   = "low_stock"
)

const defaultStockThreshold = 5

// InventoryInput is the payload of inventory-check
type InventoryInput struct {
	SellerID  string `json:"sellerId,omitempty"`
	ProductID int64  `json:"productId,omitempty"`
	Threshold int    `json:"threshold,omitempty"`
}

// StockAlert is one product at or below the threshold
type StockAlert struct {
	ProductID int64  `json:"productId"`
	Title     string `json:"title"`
	Stock     int    `json:"stock"`
	Severity  string `json:"severity"`
}

// InventoryReport is the result of inventory-check
type InventoryReport struct {
	SellerID  string       `json:"sellerId,omitempty"`
	Threshold int          `json:"threshold"`
	Checked   int          `json:"checked"`
	Alerts    []StockAlert `json:"alerts"`
}

// InventoryCheck reports a seller's (or one product's) low-stock listings
func (s *Service) InventoryCheck(ctx context.Context, in InventoryInput) (*InventoryReport, error) {
	threshold := in.Threshold
	if threshold <= 0 {
		threshold = defaultStockThreshold
	}

	var products []model.Product
	switch {
	case in.ProductID != 0:
		p, err := s.repo.GetProduct(ctx, in.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to load product: %w", err)
		}
		products = []model.Product{*p}
	case in.SellerID != "":
		var err error
		products, err = s.repo.ListSellerProducts(ctx, in.SellerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load seller products: %w", err)
		}
	default:
		return nil, ErrInventoryTarget
	}

	out := &InventoryReport{
		SellerID:  in.SellerID,
		Threshold: threshold,
		Checked:   len(products),
		Alerts:    []StockAlert{},
	}
	for _, p := range products {
		switch {
		case p.Stock <= 0:
			out.Alerts = append(out.Alerts, StockAlert{ProductID: p.ID, Title: p.Title, Stock: p.Stock, Severity: SeverityOutOfStock})
		case p.Stock <= threshold:
			out.Alerts = append(out.Alerts, StockAlert{ProductID: p.ID, Title: p.Title, Stock: p.Stock, Severity: SeverityLowStock})
		}
	}
	return out, nil
}
