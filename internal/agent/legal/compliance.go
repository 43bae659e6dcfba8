package legal

import (
	"context"
	"strings"
)

// Finding statuses
const (
	StatusMet         = "met"
	StatusMissing     = "missing"
	StatusUnsupported = "unsupported"
)

type requirement struct {
	name     string
	keywords []string
}

var regulations = map[string][]requirement{
	"gdpr": {
		{"Personal data processing disclosure", []string{"personal data"}},
		{"Lawful basis for processing", []string{"lawful basis", "legitimate interest", "consent"}},
		{"Right to erasure", []string{"erasure", "right to be forgotten", "delete your data"}},
		{"Breach notification", []string{"breach notification", "data breach"}},
	},
	"ccpa": {
		{"Categories of personal information", []string{"personal information"}},
		{"Right to opt out of sale", []string{"opt-out", "opt out", "do not sell"}},
		{"Non-discrimination", []string{"discriminat"}},
	},
	"hipaa": {
		{"Protected health information", []string{"protected health information", "phi"}},
		{"Administrative and technical safeguards", []string{"safeguard"}},
		{"Business associate obligations", []string{"business associate"}},
	},
	"general": {
		{"Governing law", []string{"governing law", "governed by"}},
		{"Signature block", []string{"signature", "signed"}},
		{"Dispute resolution", []string{"arbitration", "dispute", "court"}},
	},
}

// defaultRegulations picks regulations from the jurisdiction when none are requested
func defaultRegulations(jurisdiction string) []string {
	j := normalize(jurisdiction)
	switch {
	case containsAny(j, "eu", "europe", "germany", "france", "uk"):
		return []string{"gdpr", "general"}
	case containsAny(j, "california", "us-ca"):
		return []string{"ccpa", "general"}
	default:
		return []string{"general"}
	}
}

// ComplianceInput is the payload of check-compliance
type ComplianceInput struct {
	DocumentID   int64    `json:"documentId,omitempty"`
	Content      string   `json:"content,omitempty"`
	Jurisdiction string   `json:"jurisdiction,omitempty"`
	Regulations  []string `json:"regulations,omitempty"`
}

// Finding is the status of one regulatory requirement
type Finding struct {
	Regulation  string `json:"regulation"`
	Requirement string `json:"requirement"`
	Status      string `json:"status"`
}

// Compliance is the result of check-compliance
type Compliance struct {
	Compliant bool      `json:"compliant"`
	Score     int       `json:"score"`
	Findings  []Finding `json:"findings"`
}

// CheckCompliance checks the document for the requirements of each regulation
func (s *Service) CheckCompliance(ctx context.Context, in ComplianceInput) (*Compliance, error) {
	doc, err := s.resolve(ctx, in.DocumentID, 0, in.Content)
	if err != nil {
		return nil, err
	}

	jurisdiction := in.Jurisdiction
	if jurisdiction == "" {
		jurisdiction = doc.jurisdiction
	}
	regs := in.Regulations
	if len(regs) == 0 {
		regs = defaultRegulations(jurisdiction)
	}

	lower := strings.ToLower(doc.content)
	out := &Compliance{Findings: []Finding{}}

	var met, total int
	for _, reg := range regs {
		name := normalize(reg)
		reqs, ok := regulations[name]
		if !ok {
			out.Findings = append(out.Findings, Finding{Regulation: name, Status: StatusUnsupported})
			continue
		}

		for _, r := range reqs {
			total++
			status := StatusMissing
			if containsAny(lower, r.keywords...) {
				status = StatusMet
				met++
			}
			out.Findings = append(out.Findings, Finding{Regulation: name, Requirement: r.name, Status: status})
		}
	}

	out.Score = 100
	if total > 0 {
		out.Score = met * 100 / total
	}
	out.Compliant = out.Score == 100
	return out, nil
}
