package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitereport/internal/analysis"
	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testClock = fixedClock{t: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}

func sampleWebsite() analysis.Result {
	return analysis.Result{
		Type: analysis.TypeWebsite,
		Website: &analysis.WebsiteAnalysis{
			Title:           "Acme Mugs",
			Summary:         "Handmade stoneware sold direct to consumers.",
			PrimaryProducts: []string{"Mugs", "Bowls"},
			TargetAudience: []analysis.Persona{
				{Name: "Gift Buyer", Description: "Shops for birthdays.", Goals: []string{"Unique gifts"}},
				{Name: "Café Owner", Description: "Buys in bulk.", PainPoints: []string{"Lead times"}},
			},
			KeyStrengths:      []string{"Craftsmanship"},
			ImprovementAreas:  []string{"Checkout speed", "Product photography"},
			SEOConsiderations: []string{"Missing meta descriptions"},
		},
	}
}

func sampleReport() analysis.Result {
	return analysis.Result{
		Type: analysis.TypeMarketing,
		Report: &analysis.Report{
			Title:   "Acme Mugs",
			Summary: "Strong brand, thin funnel.",
			Sections: []analysis.Section{
				{Heading: "Positioning", Body: "Premium handmade.", Bullets: []string{"Lean into origin story"}},
			},
			Recommendations: []analysis.Recommendation{
				{Priority: "high", Action: "Launch email capture", Impact: "More repeat buyers"},
			},
		},
	}
}

func TestRender_AllReportTypesProducePDF(t *testing.T) {
	t.Parallel()
	b := NewBuilder("SiteReport", testClock)

	for _, rt := range fulfillment.ReportsForTier(fulfillment.TierPremium) {
		t.Run(string(rt), func(t *testing.T) {
			t.Parallel()
			data := sampleWebsite()
			if fulfillment.AnalysisFor(rt) != analysis.TypeWebsite {
				data = sampleReport()
			}
			out, err := b.Render(rt, data, "purchase-1")
			require.NoError(t, err)
			require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
		})
	}
}

func TestRender_SparseDataDoesNotFail(t *testing.T) {
	t.Parallel()
	b := NewBuilder("", testClock)

	for _, rt := range fulfillment.ReportsForTier(fulfillment.TierComplete) {
		out, err := b.Render(rt, analysis.Result{}, "purchase-2")
		require.NoError(t, err, rt)
		require.True(t, bytes.HasPrefix(out, []byte("%PDF-")), rt)
	}
}

func TestRender_UnknownReportType(t *testing.T) {
	t.Parallel()
	b := NewBuilder("SiteReport", testClock)

	_, err := b.Render("horoscope", sampleWebsite(), "purchase-3")
	require.ErrorIs(t, err, ErrUnknownReportType)
}

func TestCompose_Blueprint(t *testing.T) {
	t.Parallel()
	b := NewBuilder("SiteReport", testClock)

	doc, err := b.Compose(fulfillment.ReportBlueprint, sampleWebsite(), "purchase-4")
	require.NoError(t, err)
	require.Equal(t, "Website Blueprint: Acme Mugs", doc.Title)
	require.Equal(t, "SiteReport", doc.Author)
	require.Equal(t, Title{Text: "Website Blueprint"}, doc.Blocks[0])
	require.Contains(t, doc.Blocks, Text{Text: "Order purchase-4, prepared March 14, 2025"})
	require.Contains(t, doc.Blocks, List{Items: []string{"Mugs", "Bowls"}})
	require.Contains(t, doc.Blocks, Block(PageBreak{}))
	require.Contains(t, doc.Blocks, Table{
		Headers: []string{"Step", "Focus"},
		Rows:    [][]string{{"1", "Checkout speed"}, {"2", "Product photography"}},
		Widths:  []float64{1, 6},
	})
}

func TestCompose_PersonasOnePagePerPersona(t *testing.T) {
	t.Parallel()
	b := NewBuilder("SiteReport", testClock)

	doc, err := b.Compose(fulfillment.ReportPersonas, sampleWebsite(), "p")
	require.NoError(t, err)

	breaks := 0
	for _, block := range doc.Blocks {
		if _, ok := block.(PageBreak); ok {
			breaks++
		}
	}
	require.Equal(t, 1, breaks)
	require.Contains(t, doc.Blocks, Subtitle{Text: "Café Owner"})
}

func TestCompose_FreeformRecommendations(t *testing.T) {
	t.Parallel()
	b := NewBuilder("SiteReport", testClock)

	doc, err := b.Compose(fulfillment.ReportMarketing, sampleReport(), "p")
	require.NoError(t, err)
	require.Equal(t, "Marketing Strategy: Acme Mugs", doc.Title)
	require.Contains(t, doc.Blocks, Table{
		Headers: []string{"Priority", "Action", "Expected Impact"},
		Rows:    [][]string{{"high", "Launch email capture", "More repeat buyers"}},
		Widths:  []float64{1, 3, 3},
	})
}

func TestColumnWidths(t *testing.T) {
	t.Parallel()

	require.Equal(t, []float64{50, 50}, columnWidths(nil, 2, 100))
	require.Equal(t, []float64{25, 75}, columnWidths([]float64{1, 3}, 2, 100))
	require.Equal(t, []float64{20, 60, 20}, columnWidths([]float64{1, 3}, 3, 100))
}
