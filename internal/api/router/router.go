package router

import (
	"net/http"

	"github.com/cuongbtq/agent-jobs/internal/api/auth"
	"github.com/cuongbtq/agent-jobs/internal/api/handler"
	"github.com/cuongbtq/agent-jobs/internal/task"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	handler.RegisterValidation()

	r := gin.New()

	r.Use(RecoveryMiddleware(deps.Logger))
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	r.Use(deps.Metrics.GinMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "agent-api-service",
			"queue":   deps.Queue.Enabled(),
		})
	})

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	agents := handler.NewAgentHandler(deps)
	jobs := handler.NewQueueHandler(deps)
	admin := auth.RequireRole(auth.RoleAdmin)

	api := r.Group("/api")
	api.Use(auth.Middleware(deps.Verifier, deps.Logger))
	{
		legal := api.Group("/legal/agents")
		{
			legal.POST("/review-document", agents.ReviewDocument)
			legal.POST("/assist-contract", agents.AssistContract)
			legal.POST("/check-compliance", agents.CheckCompliance)
			legal.POST("/compare-documents", agents.CompareDocuments)
			legal.POST("/suggest-clauses", agents.SuggestClauses)
			legal.POST("/auto-fill", agents.AutoFill)
			legal.POST("/negotiate", agents.Negotiate)
			legal.POST("/optimize-workflow", agents.OptimizeWorkflow)
			legal.POST("/webhooks/document", admin, agents.DocumentWebhook)
			legal.GET("/job-status/:jobId", jobs.JobStatus(task.DomainLegal))
		}

		market := api.Group("/marketplace-agents")
		{
			market.POST("/fraud-check", admin, agents.FraudCheck)
			market.POST("/optimize-price", agents.OptimizePrice)
			market.POST("/analyze-reviews/:productId", agents.AnalyzeReviews)
			market.POST("/qa-review/:productId", agents.QAReview)
			market.POST("/recommendations", agents.Recommendations)
			market.POST("/inventory-check/:sellerId", agents.InventoryCheck)
			market.POST("/webhooks/purchase", admin, agents.PurchaseWebhook)
			market.GET("/job-status/:jobId", jobs.JobStatus(task.DomainMarketplace))
		}

		queue := api.Group("/queue")
		{
			queue.GET("/jobs", jobs.ListJobs)
			queue.GET("/stats", admin, jobs.Stats)
		}
	}

	return r
}
