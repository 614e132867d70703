package fulfillment

import (
	"strings"

	"github.com/JakeFAU/sitereport/internal/analysis"
)

// Tier is the purchased product level.
type Tier string

// Known tiers. Starter and complete are aliases used by older checkout links.
const (
	TierBasic    Tier = "basic"
	TierStarter  Tier = "starter"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
	TierComplete Tier = "complete"
)

// ReportType is a distinct PDF document kind.
type ReportType string

// Report types.
const (
	ReportBlueprint ReportType = "blueprint"
	ReportPersonas  ReportType = "personas"
	ReportSEO       ReportType = "seo"
	ReportMarketing ReportType = "marketing"
	ReportContent   ReportType = "content"
	ReportTechnical ReportType = "technical"
)

// ParseTier normalizes a tier string; unknown values are kept as-is so that
// ReportsForTier can apply its default.
func ParseTier(raw string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if t == "" {
		return TierBasic
	}
	return t
}

// ReportsForTier returns the ordered report set for a tier. Unrecognized tiers
// get the blueprint only.
func ReportsForTier(t Tier) []ReportType {
	switch Tier(strings.ToLower(string(t))) {
	case TierStandard:
		return []ReportType{ReportBlueprint, ReportPersonas, ReportSEO}
	case TierPremium, TierComplete:
		return []ReportType{
			ReportBlueprint, ReportPersonas, ReportSEO,
			ReportMarketing, ReportContent, ReportTechnical,
		}
	default:
		return []ReportType{ReportBlueprint}
	}
}

// AnalysisFor returns the analysis type whose output feeds a report type.
func AnalysisFor(r ReportType) analysis.Type {
	switch r {
	case ReportMarketing:
		return analysis.TypeMarketing
	case ReportContent:
		return analysis.TypeContent
	case ReportTechnical:
		return analysis.TypeTechnical
	default:
		return analysis.TypeWebsite
	}
}

// FileName is the storage file name for a report.
func (r ReportType) FileName() string {
	return string(r) + "-report.pdf"
}
