// Package analysis turns scraped website text into structured analyses by
// prompting a language-model service for schema-shaped JSON.
package analysis

import (
	"errors"
	"strings"
)

// ErrAnalysisFailed wraps every parse or validation failure of a model response.
var ErrAnalysisFailed = errors.New("could not generate analysis")

// Type selects the prompt and response schema.
type Type string

// Analysis types.
const (
	TypeWebsite   Type = "website"
	TypeMarketing Type = "marketing"
	TypeContent   Type = "content"
	TypeTechnical Type = "technical"
)

// Valid reports whether t is a known analysis type.
func (t Type) Valid() bool {
	switch t {
	case TypeWebsite, TypeMarketing, TypeContent, TypeTechnical:
		return true
	default:
		return false
	}
}

// Persona is one target-audience segment.
type Persona struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Goals       []string `json:"goals"`
	PainPoints  []string `json:"painPoints"`
}

// WebsiteAnalysis is the website-overview schema. It feeds the blueprint,
// personas and SEO reports.
type WebsiteAnalysis struct {
	Title                 string    `json:"title" validate:"required"`
	Summary               string    `json:"summary" validate:"required"`
	PrimaryProducts       []string  `json:"primaryProducts"`
	TargetAudience        []Persona `json:"targetAudience" validate:"dive"`
	KeyStrengths          []string  `json:"keyStrengths"`
	ImprovementAreas      []string  `json:"improvementAreas"`
	CompetitiveAdvantages []string  `json:"competitiveAdvantages"`
	SEOConsiderations     []string  `json:"seoConsiderations"`
}

// Section is a headed block of a free-form report.
type Section struct {
	Heading string   `json:"heading" validate:"required"`
	Body    string   `json:"body"`
	Bullets []string `json:"bullets"`
}

// Recommendation is one prioritized action item.
type Recommendation struct {
	Priority string `json:"priority" validate:"omitempty,oneof=high medium low"`
	Action   string `json:"action" validate:"required"`
	Impact   string `json:"impact"`
}

// Report is the shared schema of the marketing, content and technical analyses.
type Report struct {
	Title           string           `json:"title" validate:"required"`
	Summary         string           `json:"summary" validate:"required"`
	Sections        []Section        `json:"sections" validate:"dive"`
	Recommendations []Recommendation `json:"recommendations" validate:"dive"`
}

// normalize lower-cases recommendation priorities so "High" validates.
func (r *Report) normalize() {
	for i := range r.Recommendations {
		r.Recommendations[i].Priority = strings.ToLower(strings.TrimSpace(r.Recommendations[i].Priority))
	}
}

// Result holds one parsed analysis. Exactly one of Website or Report is set.
type Result struct {
	Type    Type
	Website *WebsiteAnalysis
	Report  *Report
	// Raw is the model text the result was parsed from.
	Raw string
}
