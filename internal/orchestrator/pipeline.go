package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/analysis"
	"github.com/JakeFAU/sitereport/internal/fulfillment"
	"github.com/JakeFAU/sitereport/internal/metrics"
)

// run carries the state of one pipeline execution. status mirrors the last
// status successfully written for the purchase.
type run struct {
	o      *Orchestrator
	p      fulfillment.Purchase
	status fulfillment.Status
	log    *zap.Logger
}

// Run executes scrape, analysis, rendering and storage for p and returns the
// terminal status it reached. It never panics and never returns an error: any
// unexpected failure is recorded as status failed on a best-effort basis.
func (o *Orchestrator) Run(ctx context.Context, p fulfillment.Purchase) (final fulfillment.Status) {
	r := &run{
		o:      o,
		p:      p,
		status: p.Status,
		log:    o.logger.With(zap.String("purchase_id", p.ID)),
	}
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("pipeline panicked", zap.Any("panic", rec))
			final = r.fail(ctx, fmt.Errorf("panic: %v", rec))
		}
		metrics.ObservePipeline(string(final), time.Since(start))
		metrics.ObservePurchase(string(final))
	}()

	if err := r.execute(ctx); err != nil {
		return r.fail(ctx, err)
	}
	return r.status
}

func (r *run) execute(ctx context.Context) error {
	url := r.p.TargetURL()
	if url == "" {
		return fmt.Errorf("purchase %s has no target url", r.p.ID)
	}
	repo := r.o.deps.Repository

	if err := r.advance(ctx, fulfillment.EventScrapeStarted); err != nil {
		return err
	}
	if err := repo.CreateScrapedData(ctx, fulfillment.ScrapedData{
		PurchaseID:  r.p.ID,
		URL:         url,
		ContentType: fulfillment.ContentTypeMarkdown,
		Status:      fulfillment.ScrapePending,
	}); err != nil {
		return fmt.Errorf("record scrape start: %w", err)
	}

	r.log.Info("scrape started", zap.String("url", url))
	content, scrapeErr := r.o.deps.Scraper.Scrape(ctx, url)
	if scrapeErr != nil {
		r.log.Error("scrape failed", zap.String("url", url), zap.Error(scrapeErr))
		if err := repo.FailScrapedData(ctx, r.p.ID, scrapeErr.Error()); err != nil {
			return fmt.Errorf("record scrape failure: %w", err)
		}
		return r.advance(ctx, fulfillment.EventScrapeFailed)
	}
	if err := repo.CompleteScrapedData(ctx, r.p.ID, content); err != nil {
		return fmt.Errorf("record scrape result: %w", err)
	}
	if err := r.advance(ctx, fulfillment.EventScrapeSucceeded); err != nil {
		return err
	}
	r.log.Info("scrape complete",
		zap.String("strategy", string(content.Metadata.Strategy)),
		zap.Int("markdown_bytes", len(content.Markdown)),
	)

	reports := fulfillment.ReportsForTier(r.p.Tier)
	results := r.analyze(ctx, content.Markdown, reports)

	stored := 0
	for _, rt := range reports {
		if err := r.produce(ctx, rt, results); err != nil {
			r.log.Warn("report skipped", zap.String("report_type", string(rt)), zap.Error(err))
			continue
		}
		stored++
	}

	if stored == 0 {
		r.log.Error("no reports produced", zap.Int("required", len(reports)))
		return r.advance(ctx, fulfillment.EventNoReports)
	}
	if err := r.advance(ctx, fulfillment.EventReportsStored); err != nil {
		return err
	}
	r.log.Info("purchase completed", zap.Int("reports", stored), zap.Int("required", len(reports)))
	r.notify(ctx)
	return nil
}

// analyze runs each distinct analysis the report set needs, in report order.
// Failed analyses are absent from the result; the reports depending on them
// are skipped later.
func (r *run) analyze(ctx context.Context, markdown string, reports []fulfillment.ReportType) map[analysis.Type]analysis.Result {
	results := make(map[analysis.Type]analysis.Result)
	attempted := make(map[analysis.Type]bool)
	for _, rt := range reports {
		kind := fulfillment.AnalysisFor(rt)
		if attempted[kind] {
			continue
		}
		attempted[kind] = true

		res, err := r.o.deps.Analyzer.Analyze(ctx, markdown, kind)
		if err != nil {
			r.log.Warn("analysis failed", zap.String("analysis_type", string(kind)), zap.Error(err))
			continue
		}
		results[kind] = res
		r.saveRaw(ctx, kind, res.Raw)
	}
	return results
}

func (r *run) saveRaw(ctx context.Context, kind analysis.Type, raw string) {
	id, err := r.o.deps.IDs.NewID()
	if err != nil {
		r.log.Warn("raw output id", zap.Error(err))
		return
	}
	if err := r.o.deps.Repository.SaveRawOutput(ctx, fulfillment.RawOutput{
		ID:           id,
		PurchaseID:   r.p.ID,
		AnalysisType: string(kind),
		Content:      raw,
		CreatedAt:    r.o.now(),
	}); err != nil {
		r.log.Warn("save raw output", zap.String("analysis_type", string(kind)), zap.Error(err))
	}
}

// produce renders, uploads and records one report.
func (r *run) produce(ctx context.Context, rt fulfillment.ReportType, results map[analysis.Type]analysis.Result) (err error) {
	outcome := "stored"
	defer func() {
		metrics.ObserveReport(string(rt), outcome)
	}()

	data, ok := results[fulfillment.AnalysisFor(rt)]
	if !ok {
		outcome = "analysis_failed"
		return fmt.Errorf("no %s analysis available", fulfillment.AnalysisFor(rt))
	}
	doc, err := r.o.deps.Renderer.Render(rt, data, r.p.ID)
	if err != nil {
		outcome = "render_failed"
		return fmt.Errorf("render %s: %w", rt, err)
	}
	path, err := r.o.deps.Artifacts.Upload(ctx, doc, rt.FileName(), r.p.ID)
	if err != nil {
		outcome = "upload_failed"
		return fmt.Errorf("upload %s: %w", rt, err)
	}
	id, err := r.o.deps.IDs.NewID()
	if err != nil {
		outcome = "record_failed"
		r.discard(ctx, path)
		return fmt.Errorf("output id: %w", err)
	}
	if err := r.o.deps.Repository.CreateOutput(ctx, fulfillment.Output{
		ID:          id,
		PurchaseID:  r.p.ID,
		ReportType:  rt,
		StoragePath: path,
		CreatedAt:   r.o.now(),
	}); err != nil {
		outcome = "record_failed"
		r.discard(ctx, path)
		return fmt.Errorf("record %s output: %w", rt, err)
	}
	r.log.Info("report stored", zap.String("report_type", string(rt)), zap.String("path", path))
	return nil
}

// discard removes an uploaded artifact that has no Output row. Best-effort.
func (r *run) discard(ctx context.Context, path string) {
	if err := r.o.deps.Artifacts.Delete(ctx, path); err != nil {
		r.log.Warn("delete unrecorded artifact", zap.String("path", path), zap.Error(err))
	}
}

func (r *run) notify(ctx context.Context) {
	if r.o.deps.Notifier == nil {
		return
	}
	downloads, err := r.o.signDownloads(ctx, r.p.ID)
	if err != nil {
		r.log.Warn("sign downloads for notification", zap.Error(err))
		return
	}
	p := r.p
	p.Status = r.status
	if err := r.o.deps.Notifier.NotifyCompleted(ctx, p, downloads); err != nil {
		r.log.Warn("completion notification failed", zap.Error(err))
	}
}

// advance applies event to the current status and persists the result.
func (r *run) advance(ctx context.Context, event fulfillment.Event) error {
	next, err := fulfillment.Transition(r.status, event)
	if err != nil {
		return err
	}
	if err := r.o.deps.Repository.UpdatePurchaseStatus(ctx, r.p.ID, next); err != nil {
		return fmt.Errorf("set status %s: %w", next, err)
	}
	r.status = next
	return nil
}

// fail records cause as an unexpected failure. A secondary failure to write the
// status is logged only.
func (r *run) fail(ctx context.Context, cause error) fulfillment.Status {
	r.log.Error("pipeline failed", zap.String("status", string(r.status)), zap.Error(cause))
	next, err := fulfillment.Transition(r.status, fulfillment.EventUnexpectedError)
	if err != nil {
		return r.status
	}
	if err := r.o.deps.Repository.UpdatePurchaseStatus(ctx, r.p.ID, next); err != nil {
		r.log.Error("record failed status", zap.Error(err))
		return r.status
	}
	r.status = next
	return next
}
