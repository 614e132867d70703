package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/sitereport/internal/analysis"
	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

// ErrUnknownReportType is returned for report types without a composer.
var ErrUnknownReportType = errors.New("unknown report type")

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Builder implements fulfillment.Renderer.
type Builder struct {
	author    string
	clock     Clock
	composers map[fulfillment.ReportType]composer
}

var _ fulfillment.Renderer = (*Builder)(nil)

// NewBuilder returns a Builder stamping documents with author.
func NewBuilder(author string, clock Clock) *Builder {
	if author == "" {
		author = "SiteReport"
	}
	return &Builder{
		author: author,
		clock:  clock,
		composers: map[fulfillment.ReportType]composer{
			fulfillment.ReportBlueprint: composeBlueprint,
			fulfillment.ReportPersonas:  composePersonas,
			fulfillment.ReportSEO:       composeSEO,
			fulfillment.ReportMarketing: freeformComposer("Marketing Strategy"),
			fulfillment.ReportContent:   freeformComposer("Content Strategy"),
			fulfillment.ReportTechnical: freeformComposer("Technical Audit"),
		},
	}
}

// Compose returns the document for reportType without laying it out.
func (b *Builder) Compose(reportType fulfillment.ReportType, data analysis.Result, purchaseID string) (*Document, error) {
	compose, ok := b.composers[reportType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReportType, reportType)
	}
	return compose(data, meta{PurchaseID: purchaseID, Author: b.author, Generated: b.now()}), nil
}

// Render composes and writes one report.
func (b *Builder) Render(reportType fulfillment.ReportType, data analysis.Result, purchaseID string) ([]byte, error) {
	doc, err := b.Compose(reportType, data, purchaseID)
	if err != nil {
		return nil, err
	}
	out, err := Write(doc, b.now())
	if err != nil {
		return nil, fmt.Errorf("render %s report: %w", reportType, err)
	}
	return out, nil
}

func (b *Builder) now() time.Time {
	if b.clock == nil {
		return time.Now().UTC()
	}
	return b.clock.Now()
}
