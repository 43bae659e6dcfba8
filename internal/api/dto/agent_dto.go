package dto

import (
	"github.com/cuongbtq/agent-jobs/internal/agent/legal"
	"github.com/cuongbtq/agent-jobs/internal/agent/marketplace"
)

// Execution selects between running in the request and queueing a job
type Execution struct {
	Async    bool   `json:"async"`
	Priority string `json:"priority" binding:"omitempty,oneof=low medium high critical"`
}

type ReviewDocumentRequest struct {
	DocumentID   int64  `json:"documentId" binding:"omitempty,gt=0"`
	InstanceID   int64  `json:"instanceId" binding:"omitempty,gt=0"`
	Content      string `json:"content" binding:"required_without_all=DocumentID InstanceID,max=200000"`
	Category     string `json:"category" binding:"max=64"`
	Jurisdiction string `json:"jurisdiction" binding:"max=64"`
	Industry     string `json:"industry" binding:"max=64"`
	Execution
}

func (r ReviewDocumentRequest) Input() legal.ReviewInput {
	return legal.ReviewInput{
		DocumentID:   r.DocumentID,
		InstanceID:   r.InstanceID,
		Content:      r.Content,
		Category:     r.Category,
		Jurisdiction: r.Jurisdiction,
		Industry:     r.Industry,
	}
}

type AssistContractRequest struct {
	ContractType string            `json:"contractType" binding:"required,max=64"`
	Parties      []string          `json:"parties" binding:"required,min=2,dive,required"`
	Terms        map[string]string `json:"terms"`
	Jurisdiction string            `json:"jurisdiction" binding:"max=64"`
	Execution
}

func (r AssistContractRequest) Input() legal.ContractInput {
	return legal.ContractInput{
		ContractType: r.ContractType,
		Parties:      r.Parties,
		Terms:        r.Terms,
		Jurisdiction: r.Jurisdiction,
	}
}

type CheckComplianceRequest struct {
	DocumentID   int64    `json:"documentId" binding:"omitempty,gt=0"`
	Content      string   `json:"content" binding:"required_without=DocumentID,max=200000"`
	Jurisdiction string   `json:"jurisdiction" binding:"max=64"`
	Regulations  []string `json:"regulations" binding:"omitempty,dive,required"`
	Execution
}

func (r CheckComplianceRequest) Input() legal.ComplianceInput {
	return legal.ComplianceInput{
		DocumentID:   r.DocumentID,
		Content:      r.Content,
		Jurisdiction: r.Jurisdiction,
		Regulations:  r.Regulations,
	}
}

type CompareDocumentsRequest struct {
	TemplateIDA int64 `json:"templateIdA" binding:"required,gt=0"`
	TemplateIDB int64 `json:"templateIdB" binding:"required,gt=0"`
	Execution
}

func (r CompareDocumentsRequest) Input() legal.CompareInput {
	return legal.CompareInput{TemplateIDA: r.TemplateIDA, TemplateIDB: r.TemplateIDB}
}

type SuggestClausesRequest struct {
	Category     string `json:"category" binding:"required,max=64"`
	Content      string `json:"content" binding:"max=200000"`
	Jurisdiction string `json:"jurisdiction" binding:"max=64"`
	Execution
}

func (r SuggestClausesRequest) Input() legal.SuggestClausesInput {
	return legal.SuggestClausesInput{Category: r.Category, Content: r.Content, Jurisdiction: r.Jurisdiction}
}

type AutoFillRequest struct {
	TemplateID int64          `json:"templateId" binding:"omitempty,gt=0"`
	Content    string         `json:"content" binding:"required_without=TemplateID,max=200000"`
	Data       map[string]any `json:"data" binding:"required"`
	Execution
}

func (r AutoFillRequest) Input() legal.AutoFillInput {
	return legal.AutoFillInput{TemplateID: r.TemplateID, Content: r.Content, Data: r.Data}
}

type NegotiateRequest struct {
	Content    string   `json:"content" binding:"required,max=200000"`
	Position   string   `json:"position" binding:"max=64"`
	Priorities []string `json:"priorities"`
	Execution
}

func (r NegotiateRequest) Input() legal.NegotiateInput {
	return legal.NegotiateInput{Content: r.Content, Position: r.Position, Priorities: r.Priorities}
}

type WorkflowStep struct {
	Name            string   `json:"name" binding:"required"`
	DurationMinutes int      `json:"durationMinutes" binding:"gte=0"`
	DependsOn       []string `json:"dependsOn"`
	Automated       bool     `json:"automated"`
}

type OptimizeWorkflowRequest struct {
	Steps []WorkflowStep `json:"steps" binding:"required,min=1,dive"`
	Execution
}

func (r OptimizeWorkflowRequest) Input() legal.WorkflowInput {
	steps := make([]legal.WorkflowStep, len(r.Steps))
	for i, s := range r.Steps {
		steps[i] = legal.WorkflowStep{
			Name:            s.Name,
			DurationMinutes: s.DurationMinutes,
			DependsOn:       s.DependsOn,
			Automated:       s.Automated,
		}
	}
	return legal.WorkflowInput{Steps: steps}
}

type FraudCheckRequest struct {
	PurchaseID      int64   `json:"purchaseId" binding:"omitempty,gt=0"`
	UserID          string  `json:"userId" binding:"required_without=PurchaseID,max=64"`
	Amount          float64 `json:"amount" binding:"gte=0"`
	AccountAgeDays  int     `json:"accountAgeDays" binding:"gte=0"`
	IPCountry       string  `json:"ipCountry" binding:"omitempty,len=2"`
	BillingCountry  string  `json:"billingCountry" binding:"omitempty,len=2"`
	PaymentAttempts int     `json:"paymentAttempts" binding:"gte=0"`
	Execution
}

func (r FraudCheckRequest) Input() marketplace.FraudInput {
	return marketplace.FraudInput{
		PurchaseID:      r.PurchaseID,
		UserID:          r.UserID,
		Amount:          r.Amount,
		AccountAgeDays:  r.AccountAgeDays,
		IPCountry:       r.IPCountry,
		BillingCountry:  r.BillingCountry,
		PaymentAttempts: r.PaymentAttempts,
	}
}

type OptimizePriceRequest struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Execution
}

// AnalyzeReviewsRequest is the optional body of analyze-reviews/:productId
type AnalyzeReviewsRequest struct {
	ReviewText string `json:"reviewText" binding:"max=20000"`
	Execution
}

type RecommendationsRequest struct {
	UserID string `json:"userId" binding:"max=64"`
	Limit  int    `json:"limit" binding:"omitempty,min=1,max=50"`
	Execution
}

// InventoryCheckRequest is the optional body of inventory-check/:sellerId
type InventoryCheckRequest struct {
	ProductID int64 `json:"productId" binding:"omitempty,gt=0"`
	Threshold int   `json:"threshold" binding:"omitempty,min=1"`
	Execution
}

// PurchaseWebhookRequest is sent by the checkout flow after a purchase settles
type PurchaseWebhookRequest struct {
	PurchaseID int64  `json:"purchaseId" binding:"required,gt=0"`
	BuyerID    string `json:"buyerId" binding:"required,max=64"`
	SellerID   string `json:"sellerId" binding:"required,max=64"`
	ProductID  int64  `json:"productId" binding:"required,gt=0"`
}

// DocumentWebhookRequest is sent when a document instance is saved
type DocumentWebhookRequest struct {
	InstanceID int64  `json:"instanceId" binding:"required,gt=0"`
	OwnerID    string `json:"ownerId" binding:"required,max=64"`
}
