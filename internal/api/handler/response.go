package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cuongbtq/agent-jobs/internal/api/auth"
	"github.com/cuongbtq/agent-jobs/internal/api/dto"
	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/cuongbtq/agent-jobs/internal/task"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// FieldError is one failed validation rule
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

var registerOnce sync.Once

// RegisterValidation makes validation errors name fields by their json or form tag
func RegisterValidation() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" {
				name = strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
			}
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func validationFailed(c *gin.Context, details []FieldError) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "validation failed",
		"details": details,
	})
}

func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		validationFailed(c, []FieldError{{Field: "body", Rule: "json"}})
		return
	}

	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	validationFailed(c, details)
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondBindError(c, err)
		return false
	}
	return true
}

// bindOptionalJSON treats an empty body as the zero request
func bindOptionalJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if errors.Is(err, io.EOF) {
		err = binding.Validator.ValidateStruct(req)
	}
	if err != nil {
		respondBindError(c, err)
		return false
	}
	return true
}

func bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		respondBindError(c, err)
		return false
	}
	return true
}

// pathID reads a positive integer path parameter
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		validationFailed(c, []FieldError{{Field: name, Rule: "gt", Param: "0"}})
		return 0, false
	}
	return id, true
}

func internalError(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   message,
	})
}

func notFound(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
		"success": false,
		"error":   message,
	})
}

func queueUnavailable(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
		"success": false,
		"error":   "job queue is not configured",
	})
}

// execute runs t in the request, or queues it when the caller asked for async.
// field names the response key carrying the synchronous result.
func (h *AgentHandler) execute(c *gin.Context, t task.Type, field string, exec dto.Execution, priority task.Priority, input any) {
	if exec.Priority != "" {
		priority = task.Priority(exec.Priority)
	}

	if exec.Async {
		h.enqueue(c, t, priority, input)
		return
	}

	tk, err := task.New(t, priority, input)
	if err != nil {
		h.logger.Error("Failed to build task", slog.String("task_type", string(t)), slog.Any("error", err))
		internalError(c, "failed to build task")
		return
	}

	result := h.dispatcher.Dispatch(c.Request.Context(), tk)
	if !result.Success {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   result.Error,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		field:     result.Data,
	})
}

func (h *AgentHandler) enqueue(c *gin.Context, t task.Type, priority task.Priority, input any) {
	if !h.queue.Enabled() {
		queueUnavailable(c)
		return
	}

	p, _ := auth.FromContext(c)
	jobID, err := h.queue.Enqueue(c.Request.Context(), queue.EnqueueRequest{
		Type:     t,
		Priority: priority,
		Payload:  input,
		UserID:   p.UserID,
	})
	if err != nil {
		h.logger.Error("Failed to queue job",
			slog.String("task_type", string(t)),
			slog.String("user_id", p.UserID),
			slog.Any("error", err),
		)
		internalError(c, "failed to queue job")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"jobId":   jobID,
		"message": fmt.Sprintf("%s job queued", t),
	})
}
