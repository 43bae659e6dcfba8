package marketplace

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Fraud actions
const (
	ActionAllow  = "allow"
	ActionReview = "review"
	ActionBlock  = "block"
)

// Thresholds on the 0..100 risk score
const (
	BlockThreshold  = 80
	ReviewThreshold = 50
)

const velocityWindow = time.Hour

// FraudInput is the payload of fraud-check
type FraudInput struct {
	PurchaseID      int64   `json:"purchaseId,omitempty"`
	UserID          string  `json:"userId"`
	Amount          float64 `json:"amount"`
	AccountAgeDays  int     `json:"accountAgeDays"`
	IPCountry       string  `json:"ipCountry,omitempty"`
	BillingCountry  string  `json:"billingCountry,omitempty"`
	PaymentAttempts int     `json:"paymentAttempts,omitempty"`
}

// FraudAssessment is the result of fraud-check
type FraudAssessment struct {
	RiskScore int      `json:"riskScore"`
	RiskLevel string   `json:"riskLevel"`
	Action    string   `json:"action"`
	Factors   []string `json:"factors"`
}

// FraudCheck scores a purchase with weighted risk factors
func (s *Service) FraudCheck(ctx context.Context, in FraudInput) (*FraudAssessment, error) {
	if in.PurchaseID != 0 {
		p, err := s.repo.GetPurchase(ctx, in.PurchaseID)
		if err != nil {
			return nil, fmt.Errorf("failed to load purchase: %w", err)
		}
		if p.Status == "refunded" {
			return nil, ErrPurchaseRefunded
		}
		if in.UserID == "" {
			in.UserID = p.BuyerID
		}
		if in.Amount == 0 {
			in.Amount = dollars(p.AmountCents)
		}
	}
	if in.UserID == "" {
		return nil, ErrUserIDRequired
	}

	out := &FraudAssessment{Factors: []string{}}
	score := 0
	add := func(points int, factor string) {
		score += points
		out.Factors = append(out.Factors, factor)
	}

	switch {
	case in.Amount > 1000:
		add(25, "high order amount")
	case in.Amount > 500:
		add(15, "elevated order amount")
	}

	switch {
	case in.AccountAgeDays < 7:
		add(20, "new account")
	case in.AccountAgeDays < 30:
		add(10, "recent account")
	}

	if in.IPCountry != "" && in.BillingCountry != "" && !strings.EqualFold(in.IPCountry, in.BillingCountry) {
		add(20, "ip and billing country mismatch")
	}

	switch {
	case in.PaymentAttempts > 3:
		add(20, "repeated payment attempts")
	case in.PaymentAttempts > 1:
		add(10, "multiple payment attempts")
	}

	since := s.now().Add(-velocityWindow).UnixMilli()
	recent, err := s.repo.CountRecentPurchases(ctx, in.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to check purchase velocity: %w", err)
	}
	switch {
	case recent >= 5:
		add(25, "high purchase velocity")
	case recent >= 3:
		add(10, "elevated purchase velocity")
	}

	if score > 100 {
		score = 100
	}
	out.RiskScore = score

	switch {
	case score >= 70:
		out.RiskLevel = "high"
	case score >= 40:
		out.RiskLevel = "medium"
	default:
		out.RiskLevel = "low"
	}

	switch {
	case score >= BlockThreshold:
		out.Action = ActionBlock
	case score >= ReviewThreshold:
		out.Action = ActionReview
	default:
		out.Action = ActionAllow
	}

	return out, nil
}
