package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/sitereport/internal/analysis"
)

// meta is the per-render context shared by all composers.
type meta struct {
	PurchaseID string
	Author     string
	Generated  time.Time
}

type composer func(data analysis.Result, m meta) *Document

func website(data analysis.Result) *analysis.WebsiteAnalysis {
	if data.Website == nil {
		return &analysis.WebsiteAnalysis{}
	}
	return data.Website
}

func freeform(data analysis.Result) *analysis.Report {
	if data.Report == nil {
		return &analysis.Report{}
	}
	return data.Report
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func coverLine(m meta) string {
	return fmt.Sprintf("Order %s, prepared %s", m.PurchaseID, m.Generated.Format("January 2, 2006"))
}

func composeBlueprint(data analysis.Result, m meta) *Document {
	w := website(data)
	site := orDefault(w.Title, "Your Website")
	doc := NewDocument("Website Blueprint: "+site, m.Author, "Website blueprint report")

	doc.Heading("Website Blueprint").
		Paragraph(site).
		Paragraph(coverLine(m)).
		Gap(4).
		Section("Executive Summary").
		Paragraph(w.Summary).
		Section("Primary Products and Services").
		Bullets(w.PrimaryProducts).
		Section("Key Strengths").
		Bullets(w.KeyStrengths).
		Section("Competitive Advantages").
		Bullets(w.CompetitiveAdvantages).
		Break().
		Section("Areas for Improvement").
		Bullets(w.ImprovementAreas)

	rows := make([][]string, 0, len(w.TargetAudience))
	for _, p := range w.TargetAudience {
		rows = append(rows, []string{p.Name, p.Description})
	}
	doc.Section("Audience at a Glance").
		Grid([]string{"Segment", "Description"}, rows, 1, 3)

	plan := make([][]string, 0, len(w.ImprovementAreas))
	for i, area := range w.ImprovementAreas {
		plan = append(plan, []string{strconv.Itoa(i + 1), area})
	}
	doc.Section("Action Plan").
		Grid([]string{"Step", "Focus"}, plan, 1, 6)
	return doc
}

func composePersonas(data analysis.Result, m meta) *Document {
	w := website(data)
	doc := NewDocument("Customer Personas: "+orDefault(w.Title, "Your Website"), m.Author, "Customer persona report")

	doc.Heading("Customer Personas").
		Paragraph(coverLine(m)).
		Paragraph(fmt.Sprintf("%d persona(s) identified from the website content.", len(w.TargetAudience)))

	if len(w.TargetAudience) == 0 {
		doc.Section("Personas").Bullets(nil)
		return doc
	}
	for i, p := range w.TargetAudience {
		if i > 0 {
			doc.Break()
		}
		doc.Section(p.Name).
			Paragraph(p.Description).
			Section("Goals").
			Bullets(p.Goals).
			Section("Pain Points").
			Bullets(p.PainPoints)
	}
	return doc
}

func composeSEO(data analysis.Result, m meta) *Document {
	w := website(data)
	doc := NewDocument("SEO Report: "+orDefault(w.Title, "Your Website"), m.Author, "Search engine optimization report")

	rows := make([][]string, 0, len(w.SEOConsiderations))
	for i, c := range w.SEOConsiderations {
		rows = append(rows, []string{strconv.Itoa(i + 1), c})
	}
	doc.Heading("SEO Report").
		Paragraph(coverLine(m)).
		Section("Overview").
		Paragraph(w.Summary).
		Section("SEO Considerations").
		Grid([]string{"#", "Consideration"}, rows, 1, 8).
		Section("Content Themes to Target").
		Bullets(w.PrimaryProducts).
		Section("Quick Wins").
		Bullets(w.ImprovementAreas)
	return doc
}

func freeformComposer(label string) composer {
	return func(data analysis.Result, m meta) *Document {
		r := freeform(data)
		doc := NewDocument(label+": "+orDefault(r.Title, "Your Website"), m.Author, strings.ToLower(label))

		doc.Heading(label).
			Paragraph(orDefault(r.Title, "")).
			Paragraph(coverLine(m)).
			Section("Summary").
			Paragraph(r.Summary)

		for _, s := range r.Sections {
			doc.Section(s.Heading).Paragraph(s.Body)
			if len(s.Bullets) > 0 {
				doc.Bullets(s.Bullets)
			}
		}

		rows := make([][]string, 0, len(r.Recommendations))
		for _, rec := range r.Recommendations {
			rows = append(rows, []string{orDefault(rec.Priority, "-"), rec.Action, rec.Impact})
		}
		doc.Break().
			Section("Recommendations").
			Grid([]string{"Priority", "Action", "Expected Impact"}, rows, 1, 3, 3)
		return doc
	}
}
