package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

func TestNewCompletionMessage(t *testing.T) {
	t.Parallel()

	url := "https://shop.example"
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := fulfillment.Purchase{ID: "p-1", OrderRef: "ord_1", Email: "a@b.c", Tier: fulfillment.TierStandard, URL: &url}

	msg := NewCompletionMessage(p, nil, at)
	require.Equal(t, EventPurchaseCompleted, msg.Event)
	require.Equal(t, "https://shop.example", msg.URL)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.Contains(t, string(data), `"downloads":[]`)

	msg = NewCompletionMessage(fulfillment.Purchase{ID: "p-2"}, []fulfillment.Download{{ReportType: fulfillment.ReportSEO, URL: "u"}}, at)
	require.Empty(t, msg.URL)
	require.Len(t, msg.Downloads, 1)
}
