package legal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/agent-jobs/internal/agent/llm"
	"github.com/cuongbtq/agent-jobs/internal/model"
	"github.com/google/uuid"
)

// Issue severities
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// ReviewInput is the payload of review-document
type ReviewInput struct {
	DocumentID   int64  `json:"documentId,omitempty"`
	InstanceID   int64  `json:"instanceId,omitempty"`
	Content      string `json:"content,omitempty"`
	Category     string `json:"category,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	Industry     string `json:"industry,omitempty"`
}

// Issue is one finding of a document review
type Issue struct {
	Severity    string `json:"severity"`
	Clause      string `json:"clause"`
	Description string `json:"description"`
}

// Review is the result of review-document
type Review struct {
	OverallScore   int      `json:"overallScore"`
	RiskScore      int      `json:"riskScore"`
	Category       string   `json:"category"`
	Issues         []Issue  `json:"issues"`
	MissingClauses []string `json:"missingClauses"`
	Suggestions    []string `json:"suggestions"`
	Summary        string   `json:"summary"`
}

type riskyPhrase struct {
	phrase   string
	severity string
	clause   string
	note     string
}

var riskyPhrases = []riskyPhrase{
	{"unlimited liability", SeverityHigh, "Liability", "Liability is uncapped."},
	{"waive all", SeverityHigh, "Release", "Blanket waiver may be unenforceable."},
	{"gross negligence", SeverityHigh, "Release", "Releasing gross negligence is void in many jurisdictions."},
	{"irrevocable", SeverityMedium, "General", "Irrevocable terms cannot be withdrawn later."},
	{"perpetual", SeverityMedium, "Term", "Obligation has no end date."},
	{"sole discretion", SeverityMedium, "General", "One party decides unilaterally."},
	{"automatically renew", SeverityMedium, "Term", "Renews without action; check the notice window."},
	{"without notice", SeverityMedium, "Termination", "Action can be taken without notice."},
	{"non-refundable", SeverityLow, "Payment", "Payments cannot be recovered."},
	{"as is", SeverityLow, "Warranty", "No warranty is given."},
}

const minDocumentLength = 200

// ReviewDocument scores a document against the clause library for its category
// and flags risky language. Reviews of stored documents are recorded.
func (s *Service) ReviewDocument(ctx context.Context, in ReviewInput) (*Review, error) {
	doc, err := s.resolve(ctx, in.DocumentID, in.InstanceID, in.Content)
	if err != nil {
		return nil, err
	}

	category := normalize(in.Category)
	if category == "" {
		category = normalize(doc.category)
	}
	if category == "" {
		category = "general"
	}

	review := heuristicReview(doc.content, category)

	if text, ok := s.ask(ctx, reviewSystemPrompt, reviewPrompt(doc.content, category, in.Jurisdiction, in.Industry)); ok {
		review = s.mergeLLMReview(review, text)
	}

	s.record(ctx, doc, review)

	return review, nil
}

func heuristicReview(content, category string) *Review {
	lower := strings.ToLower(content)

	review := &Review{
		Category:       category,
		Issues:         []Issue{},
		MissingClauses: []string{},
		Suggestions:    []string{},
	}

	for _, c := range clausesFor(category) {
		if !c.presentIn(lower) {
			review.MissingClauses = append(review.MissingClauses, c.Title)
			review.Suggestions = append(review.Suggestions, fmt.Sprintf("Add a %s clause: %s", c.Title, c.Reason))
		}
	}

	for _, p := range riskyPhrases {
		if strings.Contains(lower, p.phrase) {
			review.Issues = append(review.Issues, Issue{Severity: p.severity, Clause: p.clause, Description: p.note})
		}
	}

	if len(strings.TrimSpace(content)) < minDocumentLength {
		review.Issues = append(review.Issues, Issue{
			Severity:    SeverityLow,
			Clause:      "General",
			Description: "Document is unusually short for its category.",
		})
	}

	var high, medium, low int
	for _, issue := range review.Issues {
		switch issue.Severity {
		case SeverityHigh:
			high++
		case SeverityMedium:
			medium++
		default:
			low++
		}
	}
	missing := len(review.MissingClauses)

	review.OverallScore = clamp(100-10*missing-12*high-6*medium-3*low, 0, 100)
	review.RiskScore = clamp(8*missing+20*high+10*medium+5*low, 0, 100)
	review.Summary = fmt.Sprintf("%s document: %d issue(s), %d missing clause(s), risk %s.",
		category, len(review.Issues), missing, riskLabel(review.RiskScore))

	return review
}

func riskLabel(score int) string {
	switch {
	case score >= 60:
		return "high"
	case score >= 30:
		return "medium"
	default:
		return "low"
	}
}

const reviewSystemPrompt = "You are a contract reviewer. Reply with one JSON object only."

func reviewPrompt(content, category, jurisdiction, industry string) string {
	return fmt.Sprintf(`Review this %s document (jurisdiction: %q, industry: %q).
Return {"overallScore":0-100,"riskScore":0-100,"issues":[{"severity":"high|medium|low","clause":"","description":""}],"suggestions":[""],"summary":""}.

%s`, category, jurisdiction, industry, content)
}

// mergeLLMReview overlays model output on the heuristic review. Missing clauses stay heuristic.
func (s *Service) mergeLLMReview(base *Review, text string) *Review {
	type llmReview struct {
		OverallScore *int     `json:"overallScore"`
		RiskScore    *int     `json:"riskScore"`
		Issues       []Issue  `json:"issues"`
		Suggestions  []string `json:"suggestions"`
		Summary      string   `json:"summary"`
	}

	parsed := llm.DecodeOr(s.logger, text, llmReview{}, "document review")

	merged := *base
	if parsed.OverallScore != nil {
		merged.OverallScore = clamp(*parsed.OverallScore, 0, 100)
	}
	if parsed.RiskScore != nil {
		merged.RiskScore = clamp(*parsed.RiskScore, 0, 100)
	}
	if len(parsed.Issues) > 0 {
		merged.Issues = parsed.Issues
	}
	if len(parsed.Suggestions) > 0 {
		merged.Suggestions = parsed.Suggestions
	}
	if parsed.Summary != "" {
		merged.Summary = parsed.Summary
	}
	return &merged
}

// record appends the review and an audit entry for stored documents. Failures are logged only.
func (s *Service) record(ctx context.Context, doc *document, review *Review) {
	if doc.documentID == 0 && doc.instanceID == 0 {
		return
	}

	now := s.now().UnixMilli()
	err := s.repo.CreateDocumentReview(ctx, &model.DocumentReview{
		ID:           uuid.New().String(),
		DocumentID:   doc.documentID,
		InstanceID:   doc.instanceID,
		Category:     review.Category,
		OverallScore: review.OverallScore,
		RiskScore:    review.RiskScore,
		IssueCount:   len(review.Issues),
		Summary:      review.Summary,
		CreatedAt:    now,
	})
	if err != nil {
		s.logger.Error("Failed to record document review",
			slog.Int64("document_id", doc.documentID),
			slog.Int64("instance_id", doc.instanceID),
			slog.Any("error", err),
		)
	}

	details, _ := json.Marshal(map[string]any{
		"overallScore": review.OverallScore,
		"riskScore":    review.RiskScore,
		"issues":       len(review.Issues),
	})
	err = s.repo.CreateAuditLog(ctx, &model.AuditLog{
		ID:         uuid.New().String(),
		DocumentID: doc.documentID,
		InstanceID: doc.instanceID,
		Action:     "ai_review",
		Details:    string(details),
		CreatedAt:  now,
	})
	if err != nil {
		s.logger.Error("Failed to write document audit log",
			slog.Int64("document_id", doc.documentID),
			slog.Any("error", err),
		)
	}
}
