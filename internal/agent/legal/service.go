// Package legal implements the legal document agents: review, drafting
// assistance, compliance, comparison, clause suggestions, template filling,
// negotiation and workflow planning.
package legal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/agent/llm"
	"github.com/cuongbtq/agent-jobs/internal/model"
)

// Business rule violations returned by the agents
var (
	ErrContentRequired      = errors.New("document content, documentId or instanceId is required")
	ErrTemplateIDsRequired  = errors.New("both template IDs are required")
	ErrContractTypeRequired = errors.New("contract type is required")
	ErrPartiesRequired      = errors.New("at least two parties are required")
	ErrCategoryRequired     = errors.New("category is required")
	ErrStepsRequired        = errors.New("workflow steps are required")
	ErrWorkflowCycle        = errors.New("workflow steps contain a dependency cycle")
)

// Repository is the data the legal agents read and append to
type Repository interface {
	GetTemplate(ctx context.Context, id int64) (*model.Template, error)
	GetInstance(ctx context.Context, id int64) (*model.DocumentInstance, error)
	CreateDocumentReview(ctx context.Context, r *model.DocumentReview) error
	CreateAuditLog(ctx context.Context, l *model.AuditLog) error
}

// Service holds the legal agents. It has no state beyond its dependencies.
type Service struct {
	repo   Repository
	llm    llm.Completer
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates the legal agents; completer may be nil.
func NewService(repo Repository, completer llm.Completer, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		llm:    completer,
		logger: logger,
		now:    time.Now,
	}
}

// document is resolved text plus where it came from
type document struct {
	content      string
	category     string
	jurisdiction string
	documentID   int64
	instanceID   int64
}

// resolve loads the document text from an instance, a template or inline content, in that order
func (s *Service) resolve(ctx context.Context, documentID, instanceID int64, content string) (*document, error) {
	switch {
	case instanceID != 0:
		inst, err := s.repo.GetInstance(ctx, instanceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load document instance: %w", err)
		}
		doc := &document{content: inst.Content, instanceID: inst.ID, documentID: inst.TemplateID}
		if inst.TemplateID != 0 {
			if tpl, err := s.repo.GetTemplate(ctx, inst.TemplateID); err == nil {
				doc.category = tpl.Category
				doc.jurisdiction = tpl.Jurisdiction
			}
		}
		return doc, nil
	case documentID != 0:
		tpl, err := s.repo.GetTemplate(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load document: %w", err)
		}
		return &document{
			content:      tpl.Content,
			category:     tpl.Category,
			jurisdiction: tpl.Jurisdiction,
			documentID:   tpl.ID,
		}, nil
	case strings.TrimSpace(content) != "":
		return &document{content: content}, nil
	default:
		return nil, ErrContentRequired
	}
}

// ask runs an optional LLM enhancement. ok is false when no model is configured or the call failed.
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

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
