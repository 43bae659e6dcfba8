// Package task defines the closed set of task kinds the orchestrator dispatches,
// their advisory priorities, and the result envelope shared by the synchronous
// and queued execution paths.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type identifies a unit of agent work.
type Type string

// Legal agent tasks
const (
	TypeReviewDocument   Type = "review-document"
	TypeAssistContract   Type = "assist-contract"
	TypeCheckCompliance  Type = "check-compliance"
	TypeCompareDocuments Type = "compare-documents"
	TypeSuggestClauses   Type = "suggest-clauses"
	TypeAutoFill         Type = "auto-fill"
	TypeNegotiate        Type = "negotiate"
	TypeOptimizeWorkflow Type = "optimize-workflow"
)

// Marketplace agent tasks
const (
	TypeFraudCheck     Type = "fraud-check"
	TypePriceOptimize  Type = "price-optimize"
	TypeAnalyzeReviews Type = "analyze-reviews"
	TypeQAReview       Type = "qa-review"
	TypeRecommend      Type = "recommend"
	TypeInventoryCheck Type = "inventory-check"
)

// TypeMaintenanceSweep is the recurring queue housekeeping job.
const TypeMaintenanceSweep Type = "maintenance-sweep"

// Domains
const (
	DomainLegal       = "legal"
	DomainMarketplace = "marketplace"
	DomainSystem      = "system"
)

var domains = map[Type]string{
	TypeReviewDocument:   DomainLegal,
	TypeAssistContract:   DomainLegal,
	TypeCheckCompliance:  DomainLegal,
	TypeCompareDocuments: DomainLegal,
	TypeSuggestClauses:   DomainLegal,
	TypeAutoFill:         DomainLegal,
	TypeNegotiate:        DomainLegal,
	TypeOptimizeWorkflow: DomainLegal,
	TypeFraudCheck:       DomainMarketplace,
	TypePriceOptimize:    DomainMarketplace,
	TypeAnalyzeReviews:   DomainMarketplace,
	TypeQAReview:         DomainMarketplace,
	TypeRecommend:        DomainMarketplace,
	TypeInventoryCheck:   DomainMarketplace,
	TypeMaintenanceSweep: DomainSystem,
}

// ErrUnknownType is returned when a task type is outside the closed set.
var ErrUnknownType = errors.New("unknown task type")

// ParseType validates s against the closed set of task types.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if _, ok := domains[t]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownType, s)
	}
	return t, nil
}

// Valid reports whether t belongs to the closed set.
func (t Type) Valid() bool {
	_, ok := domains[t]
	return ok
}

// Domain returns the agent domain owning t, or "" for unknown types.
func (t Type) Domain() string {
	return domains[t]
}

// Types lists every known task type.
func Types() []Type {
	out := make([]Type, 0, len(domains))
	for t := range domains {
		out = append(out, t)
	}
	return out
}

// Priority is advisory: it is carried to the broker and to metrics but never
// preempts a running job.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ErrUnknownPriority is returned for priorities outside low|medium|high|critical.
var ErrUnknownPriority = errors.New("unknown priority")

// ParsePriority parses s; the empty string yields PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownPriority, s)
	}
}

// Level maps the priority onto 1..4, used as the broker message priority.
func (p Priority) Level() uint8 {
	switch p {
	case PriorityLow:
		return 1
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 2
	}
}

// Task describes one unit of work: what to run and with which input.
type Task struct {
	Type     Type            `json:"type"`
	Priority Priority        `json:"priority,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// New builds a Task, encoding data as its JSON input.
func New(t Type, p Priority, data any) (Task, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Task{}, fmt.Errorf("failed to encode task data: %w", err)
	}
	return Task{Type: t, Priority: p, Data: raw}, nil
}

// Result is the normalized envelope produced for every dispatch.
type Result struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OK wraps a successful agent result.
func OK(data any) Result {
	return Result{Success: true, Data: data, Timestamp: time.Now().UTC()}
}

// Fail wraps an agent failure.
func Fail(err error) Result {
	return Result{Success: false, Error: err.Error(), Timestamp: time.Now().UTC()}
}
