package legal

import (
	"context"
	"sort"
	"strings"
)

// Clause is a standard provision from the clause library
type Clause struct {
	Title  string `json:"title"`
	Text   string `json:"text"`
	Reason string `json:"reason"`

	keywords []string
}

var (
	clauseGoverningLaw = Clause{
		Title:    "Governing Law",
		Text:     "This Agreement shall be governed by the laws of the agreed jurisdiction.",
		Reason:   "Fixes which law applies when the parties disagree.",
		keywords: []string{"governing law", "governed by"},
	}
	clauseSeverability = Clause{
		Title:    "Severability",
		Text:     "If any provision is held unenforceable, the remaining provisions remain in full force.",
		Reason:   "Keeps the rest of the document valid if one clause fails.",
		keywords: []string{"severab"},
	}
	clauseEntireAgreement = Clause{
		Title:    "Entire Agreement",
		Text:     "This Agreement constitutes the entire agreement between the parties on its subject matter.",
		Reason:   "Excludes side agreements not written into the document.",
		keywords: []string{"entire agreement"},
	}
	clauseTermination = Clause{
		Title:    "Termination",
		Text:     "Either party may terminate this Agreement on thirty days written notice.",
		Reason:   "Defines how the relationship ends.",
		keywords: []string{"terminat"},
	}
	clauseLiability = Clause{
		Title:    "Limitation of Liability",
		Text:     "Neither party's aggregate liability shall exceed the fees paid in the preceding twelve months.",
		Reason:   "Caps exposure to damages.",
		keywords: []string{"limitation of liability", "liability shall not exceed", "aggregate liability"},
	}
	clauseIndemnity = Clause{
		Title:    "Indemnification",
		Text:     "Each party shall indemnify the other against third-party claims arising from its breach.",
		Reason:   "Allocates responsibility for third-party claims.",
		keywords: []string{"indemnif"},
	}
	clauseConfidentiality = Clause{
		Title:    "Confidentiality",
		Text:     "Each party shall keep the other party's confidential information secret and use it only for this Agreement.",
		Reason:   "Protects non-public information exchanged under the document.",
		keywords: []string{"confidential"},
	}
	clausePayment = Clause{
		Title:    "Payment Terms",
		Text:     "Invoices are payable within thirty days of receipt.",
		Reason:   "Sets when and how money changes hands.",
		keywords: []string{"payment", "invoice", "fee"},
	}
	clauseTerm = Clause{
		Title:    "Term",
		Text:     "This Agreement begins on the Effective Date and continues for one year.",
		Reason:   "States how long the obligations last.",
		keywords: []string{"term of", "effective date", "duration"},
	}
	clauseRelease = Clause{
		Title:    "Release of Claims",
		Text:     "Participant releases the Organizer from all claims arising from participation.",
		Reason:   "The core purpose of a waiver.",
		keywords: []string{"release", "waive"},
	}
	clauseAssumptionOfRisk = Clause{
		Title:    "Assumption of Risk",
		Text:     "Participant understands and voluntarily assumes the risks of the activity.",
		Reason:   "Shows the signer knew the risks, which courts look for.",
		keywords: []string{"assum", "risk"},
	}
	clauseReturnOfMaterials = Clause{
		Title:    "Return of Materials",
		Text:     "On request the receiving party shall return or destroy all confidential materials.",
		Reason:   "Ends access to disclosed information.",
		keywords: []string{"return or destroy", "return of"},
	}
	clauseRemedies = Clause{
		Title:    "Remedies",
		Text:     "The disclosing party may seek injunctive relief for any breach.",
		Reason:   "Money damages are often inadequate for disclosure.",
		keywords: []string{"injunctive", "remed"},
	}
	clauseIPOwnership = Clause{
		Title:    "Intellectual Property",
		Text:     "All work product created under this Agreement is owned by the Client upon payment.",
		Reason:   "Settles who owns deliverables.",
		keywords: []string{"intellectual property", "work product", "ownership"},
	}
	clauseDeposit = Clause{
		Title:    "Security Deposit",
		Text:     "Tenant shall pay a security deposit refundable at the end of the lease less lawful deductions.",
		Reason:   "Most lease disputes are about the deposit.",
		keywords: []string{"deposit"},
	}
	clauseRent = Clause{
		Title:    "Rent",
		Text:     "Tenant shall pay rent monthly in advance on the first day of each month.",
		Reason:   "Amount and timing of rent.",
		keywords: []string{"rent"},
	}
	clauseCompensation = Clause{
		Title:    "Compensation",
		Text:     "Employer shall pay Employee the agreed salary in regular installments.",
		Reason:   "Defines pay.",
		keywords: []string{"salary", "compensation", "wage"},
	}
	clauseAtWill = Clause{
		Title:    "At-Will Employment",
		Text:     "Employment is at will and may be ended by either party at any time.",
		Reason:   "States the employment relationship type.",
		keywords: []string{"at will", "at-will"},
	}
)

// clauseLibrary lists the standard clauses per document category
var clauseLibrary = map[string][]Clause{
	"waiver":     {clauseRelease, clauseAssumptionOfRisk, clauseIndemnity, clauseGoverningLaw, clauseSeverability},
	"nda":        {clauseConfidentiality, clauseTerm, clauseReturnOfMaterials, clauseRemedies, clauseGoverningLaw},
	"employment": {clauseCompensation, clauseAtWill, clauseConfidentiality, clauseTermination, clauseIPOwnership, clauseGoverningLaw},
	"lease":      {clauseRent, clauseDeposit, clauseTerm, clauseTermination, clauseGoverningLaw},
	"service":    {clausePayment, clauseTerm, clauseTermination, clauseLiability, clauseIPOwnership, clauseGoverningLaw},
	"general":    {clauseTerm, clauseTermination, clauseLiability, clauseGoverningLaw, clauseSeverability, clauseEntireAgreement},
}

// clausesFor returns the library for a category, falling back to general
func clausesFor(category string) []Clause {
	if clauses, ok := clauseLibrary[normalize(category)]; ok {
		return clauses
	}
	return clauseLibrary["general"]
}

// Categories lists the categories with a dedicated clause library
func Categories() []string {
	out := make([]string, 0, len(clauseLibrary))
	for c := range clauseLibrary {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (c Clause) presentIn(lower string) bool {
	return containsAny(lower, c.keywords...)
}

// SuggestClausesInput is the payload of suggest-clauses
type SuggestClausesInput struct {
	Category     string `json:"category"`
	Content      string `json:"content,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

// Suggestions lists library clauses the document does not have yet
type Suggestions struct {
	Category    string   `json:"category"`
	Suggestions []Clause `json:"suggestions"`
}

// SuggestClauses returns the library clauses for the category missing from content
func (s *Service) SuggestClauses(ctx context.Context, in SuggestClausesInput) (*Suggestions, error) {
	category := normalize(in.Category)
	if category == "" {
		return nil, ErrCategoryRequired
	}

	lower := strings.ToLower(in.Content)
	out := &Suggestions{Category: category, Suggestions: []Clause{}}
	for _, c := range clausesFor(category) {
		if c.presentIn(lower) {
			continue
		}
		if c.Title == clauseGoverningLaw.Title && in.Jurisdiction != "" {
			c.Text = "This Agreement shall be governed by the laws of " + in.Jurisdiction + "."
		}
		out.Suggestions = append(out.Suggestions, c)
	}
	return out, nil
}
