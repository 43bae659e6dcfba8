package legal

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cuongbtq/agent-jobs/internal/agent/llm"
)

// ContractInput is the payload of assist-contract
type ContractInput struct {
	ContractType string            `json:"contractType"`
	Parties      []string          `json:"parties"`
	Terms        map[string]string `json:"terms,omitempty"`
	Jurisdiction string            `json:"jurisdiction,omitempty"`
}

// Section is one heading of a drafted contract
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Contract is a drafted contract outline
type Contract struct {
	Title           string    `json:"title"`
	Sections        []Section `json:"sections"`
	Recommendations []string  `json:"recommendations"`
}

// commonTerms every commercial contract should state
var commonTerms = []string{"payment", "term", "termination"}

// AssistContract drafts a contract outline from the clause library for its type
func (s *Service) AssistContract(ctx context.Context, in ContractInput) (*Contract, error) {
	contractType := normalize(in.ContractType)
	if contractType == "" {
		return nil, ErrContractTypeRequired
	}
	if len(in.Parties) < 2 {
		return nil, ErrPartiesRequired
	}

	out := &Contract{
		Title:           strings.ToUpper(contractType[:1]) + contractType[1:] + " Agreement",
		Recommendations: []string{},
	}

	out.Sections = append(out.Sections, Section{
		Heading: "Parties",
		Body:    "This Agreement is entered into by " + joinParties(in.Parties) + ".",
	})

	keys := make([]string, 0, len(in.Terms))
	for k := range in.Terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s: %s", k, in.Terms[k]))
		}
		out.Sections = append(out.Sections, Section{Heading: "Key Terms", Body: strings.Join(lines, "\n")})
	}

	for _, c := range clausesFor(contractType) {
		body := c.Text
		if c.Title == clauseGoverningLaw.Title && in.Jurisdiction != "" {
			body = "This Agreement shall be governed by the laws of " + in.Jurisdiction + "."
		}
		out.Sections = append(out.Sections, Section{Heading: c.Title, Body: body})
	}

	for _, term := range commonTerms {
		if _, ok := in.Terms[term]; !ok {
			out.Recommendations = append(out.Recommendations, fmt.Sprintf("Specify the %s terms explicitly.", term))
		}
	}
	if in.Jurisdiction == "" {
		out.Recommendations = append(out.Recommendations, "Name the governing jurisdiction.")
	}

	if text, ok := s.ask(ctx, "You draft contracts. Reply with one JSON object only.",
		fmt.Sprintf(`List extra recommendations for a %s agreement between %s as {"recommendations":[""]}.`,
			contractType, joinParties(in.Parties))); ok {
		extra := llm.DecodeOr(s.logger, text, struct {
			Recommendations []string `json:"recommendations"`
		}{}, "contract recommendations")
		out.Recommendations = append(out.Recommendations, extra.Recommendations...)
	}

	return out, nil
}

func joinParties(parties []string) string {
	switch len(parties) {
	case 0:
		return ""
	case 1:
		return parties[0]
	default:
		return strings.Join(parties[:len(parties)-1], ", ") + " and " + parties[len(parties)-1]
	}
}

// NegotiateInput is the payload of negotiate
type NegotiateInput struct {
	Content    string   `json:"content"`
	Position   string   `json:"position,omitempty"`
	Priorities []string `json:"priorities,omitempty"`
}

// Point is one negotiable topic with an opening ask and a fallback
type Point struct {
	Topic    string `json:"topic"`
	Ask      string `json:"ask"`
	Fallback string `json:"fallback"`
	Priority int    `json:"priority"`
}

// Negotiation is the result of negotiate
type Negotiation struct {
	Position string  `json:"position"`
	Strategy string  `json:"strategy"`
	Points   []Point `json:"points"`
}

type negotiableTopic struct {
	topic    string
	keywords []string
	ask      string
	fallback string
}

var negotiableTopics = []negotiableTopic{
	{"liability", []string{"liabil", "indemn"}, "Cap liability at fees paid in the last 12 months.", "Cap at 2x annual fees with carve-outs for fraud."},
	{"payment", []string{"payment", "invoice", "fee"}, "Net 60 payment terms.", "Net 45 with a 2% early payment discount."},
	{"termination", []string{"terminat"}, "Termination for convenience on 30 days notice.", "Termination for convenience on 90 days notice."},
	{"intellectual property", []string{"intellectual property", "work product", "license"}, "Retain ownership of pre-existing IP.", "Grant a perpetual license instead of assignment."},
	{"confidentiality", []string{"confidential"}, "Mutual confidentiality for 3 years.", "Mutual confidentiality for 5 years."},
	{"exclusivity", []string{"exclusiv", "non-compete"}, "Remove exclusivity.", "Limit exclusivity to 12 months and one territory."},
	{"renewal", []string{"renew"}, "Renewal only by written agreement.", "Auto-renewal with 60 days opt-out notice."},
}

// Negotiate proposes asks and fallbacks for the negotiable topics found in content,
// ordered by the caller's priorities.
func (s *Service) Negotiate(ctx context.Context, in NegotiateInput) (*Negotiation, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, ErrContentRequired
	}

	position := normalize(in.Position)
	if position == "" {
		position = "neutral"
	}

	rank := make(map[string]int, len(in.Priorities))
	for i, p := range in.Priorities {
		rank[normalize(p)] = len(in.Priorities) - i
	}

	lower := strings.ToLower(in.Content)
	out := &Negotiation{Position: position, Points: []Point{}}
	for _, t := range negotiableTopics {
		if !containsAny(lower, t.keywords...) {
			continue
		}
		out.Points = append(out.Points, Point{
			Topic:    t.topic,
			Ask:      t.ask,
			Fallback: t.fallback,
			Priority: rank[t.topic],
		})
	}

	sort.SliceStable(out.Points, func(i, j int) bool {
		return out.Points[i].Priority > out.Points[j].Priority
	})

	prioritized := 0
	for _, p := range out.Points {
		if p.Priority > 0 {
			prioritized++
		}
	}

	switch {
	case len(out.Points) == 0:
		out.Strategy = "No negotiable terms detected; accept as drafted."
	case prioritized == 0:
		out.Strategy = "Collaborative: trade low-value concessions for clarity on each topic."
	case prioritized*2 >= len(out.Points):
		out.Strategy = "Firm: hold on the prioritized topics and concede elsewhere only for reciprocal gains."
	default:
		out.Strategy = "Focused: lead with the prioritized topics and use the rest as concessions."
	}

	return out, nil
}
