package legal

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// WorkflowStep is one step of a document workflow
type WorkflowStep struct {
	Name            string   `json:"name"`
	DurationMinutes int      `json:"durationMinutes"`
	DependsOn       []string `json:"dependsOn,omitempty"`
	Automated       bool     `json:"automated,omitempty"`
}

// WorkflowInput is the payload of optimize-workflow
type WorkflowInput struct {
	Steps []WorkflowStep `json:"steps"`
}

// Workflow is the optimized execution plan
type Workflow struct {
	Steps                   []string   `json:"steps"`
	ParallelGroups          [][]string `json:"parallelGroups"`
	EstimatedSavingsPercent int        `json:"estimatedSavingsPercent"`
	Recommendations         []string   `json:"recommendations"`
}

// OptimizeWorkflow orders steps by dependency and groups the ones that can run in parallel
func (s *Service) OptimizeWorkflow(ctx context.Context, in WorkflowInput) (*Workflow, error) {
	if len(in.Steps) == 0 {
		return nil, ErrStepsRequired
	}

	byName := make(map[string]WorkflowStep, len(in.Steps))
	for _, step := range in.Steps {
		if _, dup := byName[step.Name]; dup {
			return nil, fmt.Errorf("duplicate workflow step %q", step.Name)
		}
		byName[step.Name] = step
	}

	indegree := make(map[string]int, len(in.Steps))
	dependents := make(map[string][]string)
	for _, step := range in.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", step.Name, dep)
			}
			indegree[step.Name]++
			dependents[dep] = append(dependents[dep], step.Name)
		}
	}

	out := &Workflow{Steps: []string{}, ParallelGroups: [][]string{}, Recommendations: []string{}}

	var level []string
	for _, step := range in.Steps {
		if indegree[step.Name] == 0 {
			level = append(level, step.Name)
		}
	}

	total, critical := 0, 0
	for len(level) > 0 {
		sort.Strings(level)
		out.ParallelGroups = append(out.ParallelGroups, level)
		out.Steps = append(out.Steps, level...)

		longest := 0
		var next []string
		for _, name := range level {
			d := byName[name].DurationMinutes
			total += d
			if d > longest {
				longest = d
			}
			for _, dep := range dependents[name] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		critical += longest
		level = next
	}

	if len(out.Steps) != len(in.Steps) {
		return nil, ErrWorkflowCycle
	}

	if total > 0 {
		out.EstimatedSavingsPercent = (total - critical) * 100 / total
	}

	average := total / len(in.Steps)
	for _, step := range in.Steps {
		name := strings.ToLower(step.Name)
		if !step.Automated && containsAny(name, "review", "approv", "sign") {
			out.Recommendations = append(out.Recommendations, fmt.Sprintf("Automate reminders for %q.", step.Name))
		}
		if average > 0 && step.DurationMinutes > 2*average {
			out.Recommendations = append(out.Recommendations, fmt.Sprintf("Split %q into smaller steps.", step.Name))
		}
	}
	for _, group := range out.ParallelGroups {
		if len(group) > 1 {
			out.Recommendations = append(out.Recommendations, "Run "+strings.Join(group, ", ")+" in parallel.")
		}
	}

	return out, nil
}
