package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/analysis"
	"github.com/JakeFAU/sitereport/internal/dispatcher"
	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

func TestHandleOrderSucceeded_ResolvesTempCart(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.carts.CreateTempCart(ctx, fulfillment.TempCart{
		CartID:    "tc_abc",
		URL:       "https://shop.example",
		Metadata:  json.RawMessage(`{"tier":"standard","coupon":"X"}`),
		ExpiresAt: testNow.Add(time.Hour),
	}))

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_1", map[string]any{"tempCartId": "tc_abc"}))
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.True(t, res.Launched)

	p, err := h.repo.GetPurchase(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, "https://shop.example", p.TargetURL())
	require.Equal(t, fulfillment.TierStandard, p.Tier)
	require.Equal(t, fulfillment.StatusCompleted, p.Status)

	_, err = h.carts.GetTempCart(ctx, "tc_abc", testNow)
	require.ErrorIs(t, err, fulfillment.ErrNotFound)
	require.Equal(t, []string{"https://shop.example"}, h.scraper.Calls())
}

func TestHandleOrderSucceeded_DirectURLWinsOverCart(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.carts.CreateTempCart(ctx, fulfillment.TempCart{
		CartID: "tc_keep", URL: "https://other.example", ExpiresAt: testNow.Add(time.Hour),
	}))

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_1", map[string]any{
		"url":          "https://direct.example",
		"temp_cart_id": "tc_keep",
		"user_id":      "user-9",
	}))
	require.NoError(t, err)

	p, err := h.repo.GetPurchase(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, "https://direct.example", p.TargetURL())
	require.NotNil(t, p.UserID)
	require.Equal(t, "user-9", *p.UserID)
	require.Equal(t, fulfillment.TierBasic, p.Tier)

	_, err = h.carts.GetTempCart(ctx, "tc_keep", testNow)
	require.NoError(t, err)
}

func TestHandleOrderSucceeded_IsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	ev := orderEvent("ord_dup", map[string]any{"url": "https://shop.example"})

	first, err := h.orch.HandleOrderSucceeded(ctx, ev)
	require.NoError(t, err)
	second, err := h.orch.HandleOrderSucceeded(ctx, ev)
	require.NoError(t, err)

	require.True(t, second.Duplicate)
	require.False(t, second.Launched)
	require.Equal(t, first.PurchaseID, second.PurchaseID)
	require.Equal(t, 1, h.repo.CountPurchases())
	require.Equal(t, 1, h.launcher.launched)
	require.Len(t, h.scraper.Calls(), 1)
}

func TestHandleOrderSucceeded_UniqueConstraintIsTheGuard(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.deps.Repository = &blindRepo{Repository: h.repo, blind: 2}
	h.rebuild()
	ctx := context.Background()
	ev := orderEvent("ord_race", map[string]any{"url": "https://shop.example"})

	first, err := h.orch.HandleOrderSucceeded(ctx, ev)
	require.NoError(t, err)
	res, err := h.orch.HandleOrderSucceeded(ctx, ev)
	require.NoError(t, err)
	require.True(t, res.Duplicate)
	require.Equal(t, first.PurchaseID, res.PurchaseID)
	require.Equal(t, 1, h.repo.CountPurchases())
	require.Equal(t, 1, h.launcher.launched)
}

func TestHandleOrderSucceeded_ConcurrentDuplicateConsumesCart(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.repo.CreatePurchase(ctx, fulfillment.Purchase{
		ID:       "p-winner",
		OrderRef: "ord_race",
		Tier:     fulfillment.TierBasic,
		Status:   fulfillment.StatusProcessing,
	}))
	require.NoError(t, h.carts.CreateTempCart(ctx, fulfillment.TempCart{
		CartID:    "tc_race",
		URL:       "https://shop.example",
		ExpiresAt: testNow.Add(time.Hour),
	}))
	h.deps.Repository = &blindRepo{Repository: h.repo, blind: 1}
	h.rebuild()

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_race", map[string]any{"temp_cart_id": "tc_race"}))
	require.NoError(t, err)
	require.True(t, res.Duplicate)
	require.Equal(t, "p-winner", res.PurchaseID)
	require.False(t, res.Launched)

	_, err = h.carts.GetTempCart(ctx, "tc_race", testNow)
	require.ErrorIs(t, err, fulfillment.ErrNotFound)
	require.Equal(t, 0, h.launcher.launched)
}

func TestHandleOrderSucceeded_Errors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.orch.HandleOrderSucceeded(context.Background(), orderEvent(" ", nil))
	require.ErrorIs(t, err, ErrInvalidEvent)

	h.deps.Repository = lookupErrRepo{Repository: h.repo}
	h.rebuild()
	_, err = h.orch.HandleOrderSucceeded(context.Background(), orderEvent("ord_1", nil))
	require.Error(t, err)
	require.Equal(t, 0, h.repo.CountPurchases())
}

func TestHandleOrderSucceeded_NoURLStaysProcessing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_upsell", map[string]any{"temp_cart_id": "tc_gone"}))
	require.NoError(t, err)
	require.False(t, res.Launched)

	p, err := h.repo.GetPurchase(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Nil(t, p.URL)
	require.Equal(t, fulfillment.StatusProcessing, p.Status)
	require.Zero(t, h.launcher.launched)
}

func TestRun_PremiumProducesEveryReport(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_p", map[string]any{
		"url": "https://shop.example", "tier": "Premium",
	}))
	require.NoError(t, err)

	p, err := h.repo.GetPurchase(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusCompleted, p.Status)

	outs, err := h.repo.ListOutputs(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Len(t, outs, 6)
	for _, out := range outs {
		data, ok := h.artifacts.Object(out.StoragePath)
		require.True(t, ok, out.StoragePath)
		require.True(t, len(data) > 4 && string(data[:4]) == "%PDF")
	}

	scraped, err := h.repo.GetScrapedData(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.ScrapeCompleted, scraped.Status)
	require.Equal(t, "# Shop\n\nWe sell things.", scraped.Content.Markdown)

	require.Len(t, h.repo.RawOutputs(res.PurchaseID), 4)

	sent := h.notifier.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, fulfillment.StatusCompleted, sent[0].Purchase.Status)
	require.Len(t, sent[0].Downloads, 6)
}

func TestRun_PartialFailureStillCompletes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.deps.Renderer = flakyRenderer{next: h.deps.Renderer, fail: map[fulfillment.ReportType]bool{fulfillment.ReportSEO: true}}
	h.rebuild()
	ctx := context.Background()

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_s", map[string]any{
		"url": "https://shop.example", "tier": "standard",
	}))
	require.NoError(t, err)

	p, err := h.repo.GetPurchase(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusCompleted, p.Status)

	outs, err := h.repo.ListOutputs(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	for _, out := range outs {
		require.NotEqual(t, fulfillment.ReportSEO, out.ReportType)
	}
}

func TestRun_UploadFailureIsPartial(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.deps.Artifacts = flakyArtifacts{ArtifactStore: h.artifacts, fail: map[string]bool{"personas-report.pdf": true}}
	h.rebuild()
	ctx := context.Background()

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_u", map[string]any{
		"url": "https://shop.example", "tier": "standard",
	}))
	require.NoError(t, err)

	outs, err := h.repo.ListOutputs(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Len(t, outs, 2)
}

func TestRun_AllReportsFailIsGenerationFailed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.deps.Renderer = flakyRenderer{next: h.deps.Renderer, fail: map[fulfillment.ReportType]bool{
		fulfillment.ReportBlueprint: true, fulfillment.ReportPersonas: true, fulfillment.ReportSEO: true,
	}}
	h.rebuild()
	ctx := context.Background()

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_g", map[string]any{
		"url": "https://shop.example", "tier": "standard",
	}))
	require.NoError(t, err)

	p, err := h.repo.GetPurchase(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusGenerationFailed, p.Status)

	outs, err := h.repo.ListOutputs(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Empty(t, outs)
	require.Empty(t, h.notifier.Sent())
}

func TestRun_UnrecordedUploadsAreDeleted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.deps.Repository = outputFailRepo{Repository: h.repo}
	h.rebuild()
	ctx := context.Background()

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_r", map[string]any{
		"url": "https://shop.example", "tier": "standard",
	}))
	require.NoError(t, err)

	p, err := h.repo.GetPurchase(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusGenerationFailed, p.Status)

	paths, err := h.artifacts.List(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestRun_AnalysisFailureSkipsDependentReports(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.analyzer.fail = map[analysis.Type]bool{analysis.TypeWebsite: true}
	ctx := context.Background()

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_a", map[string]any{
		"url": "https://shop.example", "tier": "premium",
	}))
	require.NoError(t, err)

	p, err := h.repo.GetPurchase(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusCompleted, p.Status)

	outs, err := h.repo.ListOutputs(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Len(t, outs, 3)
	require.Equal(t, fulfillment.ReportMarketing, outs[0].ReportType)
}

func TestRun_ScrapeFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.scraper.err = errors.New("scrape failed: direct scrape: status 502")
	ctx := context.Background()

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_f", map[string]any{"url": "https://down.example"}))
	require.NoError(t, err)

	p, err := h.repo.GetPurchase(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusScrapeFailed, p.Status)

	scraped, err := h.repo.GetScrapedData(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.ScrapeFailed, scraped.Status)
	require.NotNil(t, scraped.ErrorMessage)
	require.Contains(t, *scraped.ErrorMessage, "status 502")

	outs, err := h.repo.ListOutputs(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Empty(t, outs)
}

func TestRun_PanicBecomesFailed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.scraper.panics = true
	ctx := context.Background()

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_x", map[string]any{"url": "https://shop.example"}))
	require.NoError(t, err)

	p, err := h.repo.GetPurchase(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusFailed, p.Status)
}

func TestRun_StatusWriteFailureIsBestEffort(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	url := "https://shop.example"
	p := fulfillment.Purchase{ID: "p-1", OrderRef: "ord_1", Tier: fulfillment.TierBasic, URL: &url, Status: fulfillment.StatusProcessing}
	require.NoError(t, h.repo.CreatePurchase(ctx, p))

	h.deps.Repository = &statusFailRepo{Repository: h.repo, allowed: 1}
	h.rebuild()

	final := h.orch.Run(ctx, p)
	require.Equal(t, fulfillment.StatusPendingScrape, final)

	got, err := h.repo.GetPurchase(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusPendingScrape, got.Status)
}

func TestRun_NotifierFailureKeepsCompleted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.notifier.FailWith(errors.New("topic missing"))
	ctx := context.Background()

	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_n", map[string]any{"url": "https://shop.example"}))
	require.NoError(t, err)

	p, err := h.repo.GetPurchase(ctx, res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusCompleted, p.Status)
}

func TestPipelineRunsDetachedFromRequest(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	d := dispatcher.New(4, zap.NewNop())
	h.deps.Launcher = d
	h.rebuild()

	ctx, cancel := context.WithCancel(context.Background())
	res, err := h.orch.HandleOrderSucceeded(ctx, orderEvent("ord_d", map[string]any{"url": "https://shop.example"}))
	require.NoError(t, err)
	require.True(t, res.Launched)
	cancel()

	require.NoError(t, d.Drain(5*time.Second))
	p, err := h.repo.GetPurchase(context.Background(), res.PurchaseID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusCompleted, p.Status)
}
