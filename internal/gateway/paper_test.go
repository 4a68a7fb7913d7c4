package gateway

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmoney-labs/smbot/internal/domain"
)

type fakeFillsLog struct {
	appends  []map[string]any
	failures int
}

func (f *fakeFillsLog) Append(_ context.Context, fields map[string]any) error {
	if f.failures > 0 {
		f.failures--
		return assert.AnError
	}
	f.appends = append(f.appends, fields)
	return nil
}

func (f *fakeFillsLog) ReadGroup(context.Context, int64, time.Duration) ([]domain.StreamEntry, error) {
	return nil, nil
}

func (f *fakeFillsLog) Ack(context.Context, ...string) error { return nil }

func newTestPaper(fills *fakeFillsLog) *Paper {
	p := NewPaper(fills, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func testPlan() domain.OrderPlan {
	return domain.OrderPlan{
		Symbol:     "BTCUSDT",
		Side:       domain.OrderSideLong,
		Qty:        10,
		EntryPrice: 100,
		SLPrice:    90,
		TPPrice:    130,
	}
}

func TestPaperSubmitRecordsFill(t *testing.T) {
	fills := &fakeFillsLog{}
	p := newTestPaper(fills)

	require.NoError(t, p.Submit(context.Background(), testPlan(), "plan:5-0"))

	require.Len(t, fills.appends, 1)
	fill := fills.appends[0]
	assert.Equal(t, "plan:5-0", fill["idem_key"])
	assert.Equal(t, "BTCUSDT", fill["symbol"])
	assert.Equal(t, "long", fill["side"])
	assert.Equal(t, "10", fill["qty"])
	assert.Equal(t, "100", fill["entry_price"])
	assert.Equal(t, "90", fill["sl_price"])
	assert.Equal(t, "130", fill["tp_price"])
	assert.NotEmpty(t, fill["client_order_id"])
}

func TestPaperSubmitRetriesTransientFailures(t *testing.T) {
	fills := &fakeFillsLog{failures: 2}
	p := newTestPaper(fills)

	require.NoError(t, p.Submit(context.Background(), testPlan(), "plan:5-0"))
	assert.Len(t, fills.appends, 1)
}

func TestPaperSubmitGivesUpAfterBoundedAttempts(t *testing.T) {
	fills := &fakeFillsLog{failures: submitAttempts}
	p := newTestPaper(fills)

	err := p.Submit(context.Background(), testPlan(), "plan:5-0")
	assert.Error(t, err)
	assert.Empty(t, fills.appends)
}

func TestPaperSubmitStopsOnCancelledContext(t *testing.T) {
	fills := &fakeFillsLog{failures: submitAttempts}
	p := NewPaper(fills, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.sleep = func(ctx context.Context, _ time.Duration) error { return context.Canceled }

	err := p.Submit(context.Background(), testPlan(), "plan:5-0")
	assert.ErrorIs(t, err, context.Canceled)
}
