package handler

import (
	"net/http"

	"github.com/cuongbtq/agent-jobs/internal/api/dto"
	"github.com/cuongbtq/agent-jobs/internal/task"
	"github.com/gin-gonic/gin"
)

// ReviewDocument handles POST /api/legal/agents/review-document
func (h *AgentHandler) ReviewDocument(c *gin.Context) {
	var req dto.ReviewDocumentRequest
	if !bindJSON(c, &req) {
		return
	}
	h.execute(c, task.TypeReviewDocument, "review", req.Execution, task.PriorityMedium, req.Input())
}

// AssistContract handles POST /api/legal/agents/assist-contract
func (h *AgentHandler) AssistContract(c *gin.Context) {
	var req dto.AssistContractRequest
	if !bindJSON(c, &req) {
		return
	}
	h.execute(c, task.TypeAssistContract, "contract", req.Execution, task.PriorityMedium, req.Input())
}

// CheckCompliance handles POST /api/legal/agents/check-compliance
func (h *AgentHandler) CheckCompliance(c *gin.Context) {
	var req dto.CheckComplianceRequest
	if !bindJSON(c, &req) {
		return
	}
	h.execute(c, task.TypeCheckCompliance, "compliance", req.Execution, task.PriorityMedium, req.Input())
}

// CompareDocuments handles POST /api/legal/agents/compare-documents
func (h *AgentHandler) CompareDocuments(c *gin.Context) {
	var req dto.CompareDocumentsRequest
	if !bindJSON(c, &req) {
		return
	}
	h.execute(c, task.TypeCompareDocuments, "comparison", req.Execution, task.PriorityLow, req.Input())
}

// SuggestClauses handles POST /api/legal/agents/suggest-clauses
func (h *AgentHandler) SuggestClauses(c *gin.Context) {
	var req dto.SuggestClausesRequest
	if !bindJSON(c, &req) {
		return
	}
	h.execute(c, task.TypeSuggestClauses, "suggestions", req.Execution, task.PriorityLow, req.Input())
}

// AutoFill handles POST /api/legal/agents/auto-fill
func (h *AgentHandler) AutoFill(c *gin.Context) {
	var req dto.AutoFillRequest
	if !bindJSON(c, &req) {
		return
	}
	h.execute(c, task.TypeAutoFill, "result", req.Execution, task.PriorityMedium, req.Input())
}

// Negotiate handles POST /api/legal/agents/negotiate
func (h *AgentHandler) Negotiate(c *gin.Context) {
	var req dto.NegotiateRequest
	if !bindJSON(c, &req) {
		return
	}
	h.execute(c, task.TypeNegotiate, "negotiation", req.Execution, task.PriorityMedium, req.Input())
}

// OptimizeWorkflow handles POST /api/legal/agents/optimize-workflow
func (h *AgentHandler) OptimizeWorkflow(c *gin.Context) {
	var req dto.OptimizeWorkflowRequest
	if !bindJSON(c, &req) {
		return
	}
	h.execute(c, task.TypeOptimizeWorkflow, "workflow", req.Execution, task.PriorityLow, req.Input())
}

// DocumentWebhook handles POST /api/legal/agents/webhooks/document (admin)
func (h *AgentHandler) DocumentWebhook(c *gin.Context) {
	var req dto.DocumentWebhookRequest
	if !bindJSON(c, &req) {
		return
	}

	jobID, err := h.queue.QueueDocumentReview(c.Request.Context(), req.InstanceID, req.OwnerID)
	if err != nil {
		h.webhookFailed(c, "review-document", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"queued":  h.queue.Enabled(),
		"jobId":   jobID,
	})
}
