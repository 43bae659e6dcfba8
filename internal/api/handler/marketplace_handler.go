package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/agent-jobs/internal/agent/marketplace"
	"github.com/cuongbtq/agent-jobs/internal/api/auth"
	"github.com/cuongbtq/agent-jobs/internal/api/dto"
	"github.com/cuongbtq/agent-jobs/internal/store"
	"github.com/cuongbtq/agent-jobs/internal/task"
	"github.com/gin-gonic/gin"
)

// authorizeProduct lets admins and the product's seller through
func (h *AgentHandler) authorizeProduct(c *gin.Context, productID int64) bool {
	p, _ := auth.FromContext(c)
	if p.IsAdmin() {
		return true
	}

	product, err := h.products.GetProduct(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(c, "product not found")
			return false
		}
		h.logger.Error("Failed to load product for authorization",
			slog.Int64("product_id", productID),
			slog.Any("error", err),
		)
		internalError(c, "failed to load product")
		return false
	}

	if !p.Owns(product.SellerID) {
		auth.Forbid(c)
		return false
	}
	return true
}

// FraudCheck handles POST /api/marketplace-agents/fraud-check (admin)
func (h *AgentHandler) FraudCheck(c *gin.Context) {
	var req dto.FraudCheckRequest
	if !bindJSON(c, &req) {
		return
	}
	h.execute(c, task.TypeFraudCheck, "assessment", req.Execution, task.PriorityHigh, req.Input())
}

// OptimizePrice handles POST /api/marketplace-agents/optimize-price (product owner or admin)
func (h *AgentHandler) OptimizePrice(c *gin.Context) {
	var req dto.OptimizePriceRequest
	if !bindJSON(c, &req) {
		return
	}
	if !h.authorizeProduct(c, req.ProductID) {
		return
	}
	h.execute(c, task.TypePriceOptimize, "pricing", req.Execution, task.PriorityLow,
		marketplace.PriceInput{ProductID: req.ProductID})
}

// AnalyzeReviews handles POST /api/marketplace-agents/analyze-reviews/:productId
func (h *AgentHandler) AnalyzeReviews(c *gin.Context) {
	productID, ok := pathID(c, "productId")
	if !ok {
		return
	}
	var req dto.AnalyzeReviewsRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	h.execute(c, task.TypeAnalyzeReviews, "analysis", req.Execution, task.PriorityLow,
		marketplace.ReviewsInput{ProductID: productID, ReviewText: req.ReviewText})
}

// QAReview handles POST /api/marketplace-agents/qa-review/:productId (product owner or admin)
func (h *AgentHandler) QAReview(c *gin.Context) {
	productID, ok := pathID(c, "productId")
	if !ok {
		return
	}
	var req dto.Execution
	if !bindOptionalJSON(c, &req) {
		return
	}
	if !h.authorizeProduct(c, productID) {
		return
	}
	h.execute(c, task.TypeQAReview, "qaReport", req, task.PriorityLow,
		marketplace.ProductInput{ProductID: productID})
}

// Recommendations handles POST /api/marketplace-agents/recommendations (self or admin)
func (h *AgentHandler) Recommendations(c *gin.Context) {
	var req dto.RecommendationsRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	p, _ := auth.FromContext(c)
	userID := req.UserID
	if userID == "" {
		userID = p.UserID
	}
	if !p.Owns(userID) {
		auth.Forbid(c)
		return
	}

	h.execute(c, task.TypeRecommend, "recommendations", req.Execution, task.PriorityLow,
		marketplace.RecommendInput{UserID: userID, Limit: req.Limit})
}

// InventoryCheck handles POST /api/marketplace-agents/inventory-check/:sellerId (self or admin)
func (h *AgentHandler) InventoryCheck(c *gin.Context) {
	sellerID := c.Param("sellerId")
	p, _ := auth.FromContext(c)
	if !p.Owns(sellerID) {
		auth.Forbid(c)
		return
	}

	var req dto.InventoryCheckRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.ProductID != 0 && !h.authorizeProduct(c, req.ProductID) {
		return
	}

	h.execute(c, task.TypeInventoryCheck, "inventory", req.Execution, task.PriorityMedium,
		marketplace.InventoryInput{SellerID: sellerID, ProductID: req.ProductID, Threshold: req.Threshold})
}

// PurchaseWebhook handles POST /api/marketplace-agents/webhooks/purchase (admin).
// It queues the background checks that follow a purchase.
func (h *AgentHandler) PurchaseWebhook(c *gin.Context) {
	var req dto.PurchaseWebhookRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()

	fraudID, err := h.queue.QueueFraudCheck(ctx, req.PurchaseID, req.BuyerID)
	if err != nil {
		h.webhookFailed(c, "fraud-check", err)
		return
	}

	inventoryID, err := h.queue.QueueInventoryCheck(ctx, req.SellerID)
	if err != nil {
		h.webhookFailed(c, "inventory-check", err)
		return
	}

	priceID, err := h.queue.QueuePriceOptimization(ctx, req.ProductID, req.SellerID)
	if err != nil {
		h.webhookFailed(c, "price-optimize", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"queued":  h.queue.Enabled(),
		"jobs": gin.H{
			"fraudCheck":        fraudID,
			"inventoryCheck":    inventoryID,
			"priceOptimization": priceID,
		},
	})
}

func (h *AgentHandler) webhookFailed(c *gin.Context, taskType string, err error) {
	h.logger.Error("Failed to queue background job",
		slog.String("task_type", taskType),
		slog.Any("error", err),
	)
	internalError(c, "failed to queue job")
}
