package metrics

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmoney-labs/smbot/internal/domain"
	"github.com/smartmoney-labs/smbot/internal/telemetry"
)

type fakeEventLog struct {
	batches [][]domain.StreamEntry
	appends []map[string]any
	acked   []string

	appendErr error
	onRead    func()
}

func (f *fakeEventLog) Append(_ context.Context, fields map[string]any) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appends = append(f.appends, fields)
	return nil
}

func (f *fakeEventLog) ReadGroup(ctx context.Context, _ int64, _ time.Duration) ([]domain.StreamEntry, error) {
	if f.onRead != nil {
		f.onRead()
	}
	if len(f.batches) == 0 {
		return nil, ctx.Err()
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeEventLog) Ack(_ context.Context, ids ...string) error {
	f.acked = append(f.acked, ids...)
	return nil
}

type fakeHeartbeats struct {
	beats int
}

func (f *fakeHeartbeats) Beat(context.Context, string, time.Duration) error {
	f.beats++
	return nil
}

func rawEntry(t *testing.T, id string, ev domain.RawEvent) domain.StreamEntry {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return domain.StreamEntry{ID: id, Fields: map[string]string{"data": string(data)}}
}

func closedBar(ts int64, symbol string, price float64) domain.RawEvent {
	return domain.RawEvent{
		TS:     ts,
		Symbol: symbol,
		Feed:   "kline",
		Payload: domain.RawPayload{K: domain.Kline{
			OpenTime: ts - 60_000,
			Close:    price,
			Volume:   10,
			Closed:   true,
		}},
	}
}

func newTestEngine(raw, out *fakeEventLog, hb *fakeHeartbeats) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(raw, out, hb, telemetry.Nop(), 64, Params{Lookback: 15, ATRPeriod: 14}, logger)
	e.now = func() time.Time { return time.UnixMilli(0) }
	return e
}

func TestProcessEmitsOneSnapshotPerMinute(t *testing.T) {
	raw, out := &fakeEventLog{}, &fakeEventLog{}
	e := newTestEngine(raw, out, &fakeHeartbeats{})
	ctx := context.Background()

	ts := int64(1_700_000_040_000)
	require.NoError(t, e.process(ctx, rawEntry(t, "1-0", closedBar(ts, "BTCUSDT", 50_000))))
	// Redelivered bar for the same minute updates the window but must not
	// publish a second snapshot.
	require.NoError(t, e.process(ctx, rawEntry(t, "1-1", closedBar(ts, "BTCUSDT", 50_000))))

	require.Len(t, out.appends, 1)
	assert.Equal(t, "BTCUSDT", out.appends[0]["symbol"])

	require.NoError(t, e.process(ctx, rawEntry(t, "2-0", closedBar(ts+60_000, "BTCUSDT", 50_100))))
	assert.Len(t, out.appends, 2)
}

func TestProcessKeepsSymbolsIndependent(t *testing.T) {
	raw, out := &fakeEventLog{}, &fakeEventLog{}
	e := newTestEngine(raw, out, &fakeHeartbeats{})
	ctx := context.Background()

	ts := int64(1_700_000_040_000)
	require.NoError(t, e.process(ctx, rawEntry(t, "1-0", closedBar(ts, "BTCUSDT", 50_000))))
	require.NoError(t, e.process(ctx, rawEntry(t, "1-1", closedBar(ts, "ETHUSDT", 3_000))))

	require.Len(t, out.appends, 2)
	assert.Equal(t, "BTCUSDT", out.appends[0]["symbol"])
	assert.Equal(t, "ETHUSDT", out.appends[1]["symbol"])
}

func TestProcessDropsMalformedEntry(t *testing.T) {
	raw, out := &fakeEventLog{}, &fakeEventLog{}
	e := newTestEngine(raw, out, &fakeHeartbeats{})
	ctx := context.Background()

	entry := domain.StreamEntry{ID: "1-0", Fields: map[string]string{"data": "{not json"}}
	assert.NoError(t, e.process(ctx, entry))

	entry = domain.StreamEntry{ID: "1-1", Fields: map[string]string{"other": "x"}}
	assert.NoError(t, e.process(ctx, entry))

	assert.Empty(t, out.appends)
}

func TestProcessSkipsOpenAndNonKlineBars(t *testing.T) {
	raw, out := &fakeEventLog{}, &fakeEventLog{}
	e := newTestEngine(raw, out, &fakeHeartbeats{})
	ctx := context.Background()

	open := closedBar(1_700_000_040_000, "BTCUSDT", 50_000)
	open.Payload.K.Closed = false
	require.NoError(t, e.process(ctx, rawEntry(t, "1-0", open)))

	trade := closedBar(1_700_000_040_000, "BTCUSDT", 50_000)
	trade.Feed = "trade"
	require.NoError(t, e.process(ctx, rawEntry(t, "1-1", trade)))

	assert.Empty(t, out.appends)
}

func TestProcessPublishFailureLeavesEntryPending(t *testing.T) {
	raw, out := &fakeEventLog{appendErr: assert.AnError}, &fakeEventLog{appendErr: assert.AnError}
	e := newTestEngine(raw, out, &fakeHeartbeats{})

	err := e.process(context.Background(), rawEntry(t, "1-0", closedBar(1_700_000_040_000, "BTCUSDT", 50_000)))
	assert.Error(t, err)
}

func TestRunAcksProcessedEntriesAndHeartbeats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := int64(1_700_000_040_000)
	raw := &fakeEventLog{batches: [][]domain.StreamEntry{{
		rawEntry(t, "1-0", closedBar(ts, "BTCUSDT", 50_000)),
		{ID: "1-1", Fields: map[string]string{"data": "{not json"}},
	}}}
	reads := 0
	raw.onRead = func() {
		reads++
		if reads > 1 {
			cancel()
		}
	}
	out := &fakeEventLog{}
	hb := &fakeHeartbeats{}
	e := newTestEngine(raw, out, hb)

	err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// Both the processed bar and the dropped malformed entry are acked.
	assert.Equal(t, []string{"1-0", "1-1"}, raw.acked)
	assert.Len(t, out.appends, 1)
	assert.GreaterOrEqual(t, hb.beats, 1)
}

func TestSnapshotFieldsRoundTrip(t *testing.T) {
	snap := domain.MetricsSnapshot{
		TS:     1_700_000_040_000,
		Symbol: "BTCUSDT",
		Price:  50_000.5,
		PDD:    -0.21,
		VSR:    3.4,
		OIS:    0.18,
		FRD:    -0.025,
		ATR:    120.5,
		LL:     40.2,
		LVA:    15,
		LSI:    2.5,
		LCF:    50_000,
	}

	fields := SnapshotFields(snap)
	strFields := make(map[string]string, len(fields))
	for k, v := range fields {
		strFields[k] = v.(string)
	}

	assert.Equal(t, snap, ParseSnapshot(strFields))
}
