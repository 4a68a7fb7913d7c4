package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/smartmoney-labs/smbot/internal/domain"
	"github.com/smartmoney-labs/smbot/internal/telemetry"
)

const (
	readBatch    = 100
	readBlock    = time.Second
	heartbeatTTL = 5 * time.Second
	hbComponent  = "metric_engine"

	// latencyWarnMs flags bars whose publication lags their exchange
	// timestamp by more than this many milliseconds.
	latencyWarnMs = 400
)

// Engine consumes the raw event log through a durable consumer group,
// maintains one rolling window per symbol, and publishes one metrics
// snapshot per closed bar per symbol to the metrics event log.
//
// Delivery is at-least-once: entries are acked only after processing, and a
// redelivered closed bar is suppressed by the per-symbol minute dedup.
type Engine struct {
	raw     domain.EventLog
	metrics domain.EventLog
	hb      domain.HeartbeatStore
	tel     *telemetry.Metrics
	logger  *slog.Logger

	bufferSize int
	params     Params

	// Per-symbol state, owned by the Run goroutine. Windows are created
	// lazily on the first event for a symbol and live for the process.
	windows    map[string]*Window
	lastMinute map[string]int64

	now func() time.Time
}

// NewEngine creates a metric engine. bufferSize is the per-symbol window
// capacity in minutes.
func NewEngine(
	raw domain.EventLog,
	metricsLog domain.EventLog,
	hb domain.HeartbeatStore,
	tel *telemetry.Metrics,
	bufferSize int,
	params Params,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		raw:        raw,
		metrics:    metricsLog,
		hb:         hb,
		tel:        tel,
		logger:     logger.With(slog.String("component", "metric_engine")),
		bufferSize: bufferSize,
		params:     params,
		windows:    make(map[string]*Window),
		lastMinute: make(map[string]int64),
		now:        time.Now,
	}
}

// Run consumes batches until the context is cancelled. The in-flight batch
// finishes processing and acking before Run returns, so a clean shutdown
// does not cause a reprocessing storm on restart.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "metric engine starting",
		slog.Int("buffer_size", e.bufferSize),
		slog.Int("lookback", e.params.Lookback),
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		entries, err := e.raw.ReadGroup(ctx, readBatch, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transport-level reconnection is the log client's job; just
			// surface the failure and poll again.
			e.logger.ErrorContext(ctx, "raw log read failed", slog.String("error", err.Error()))
			continue
		}

		for _, entry := range entries {
			if err := e.process(ctx, entry); err != nil {
				// Leave the entry unacked so the group redelivers it.
				e.logger.ErrorContext(ctx, "entry processing failed",
					slog.String("entry_id", entry.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := e.raw.Ack(ctx, entry.ID); err != nil {
				e.logger.ErrorContext(ctx, "ack failed",
					slog.String("entry_id", entry.ID),
					slog.String("error", err.Error()),
				)
			}
		}

		// Heartbeat after every batch, bars or not, so monitoring can tell
		// an idle engine from a dead one.
		if err := e.hb.Beat(ctx, hbComponent, heartbeatTTL); err != nil {
			e.logger.WarnContext(ctx, "heartbeat failed", slog.String("error", err.Error()))
		}
	}
}

// process handles one raw log entry. A nil return means the entry is done
// (processed, skipped, or dropped as malformed) and must be acked; an error
// means it should stay pending for redelivery.
func (e *Engine) process(ctx context.Context, entry domain.StreamEntry) error {
	data, ok := entry.Fields["data"]
	if !ok {
		e.tel.MalformedEntries.Inc()
		e.logger.WarnContext(ctx, "raw entry missing data field", slog.String("entry_id", entry.ID))
		return nil
	}

	var raw domain.RawEvent
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		// Malformed payloads are dropped, not retried: redelivery cannot fix
		// a bad encode.
		e.tel.MalformedEntries.Inc()
		e.logger.WarnContext(ctx, "undecodable raw entry",
			slog.String("entry_id", entry.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if raw.Feed != "kline" || !raw.Payload.K.Closed {
		return nil
	}

	w, ok := e.windows[raw.Symbol]
	if !ok {
		w = NewWindow(e.bufferSize)
		e.windows[raw.Symbol] = w
	}
	w.Update(raw.Payload.K.Frame())
	e.tel.BarsProcessed.Inc()

	// One snapshot per (symbol, minute): a redelivered or duplicated bar for
	// the same minute must not emit twice.
	minute := raw.TS / 60_000
	if minute == e.lastMinute[raw.Symbol] {
		return nil
	}

	view, err := w.View(w.Fill())
	if err != nil {
		return err
	}
	ind := Compute(view, e.params)

	snap := domain.MetricsSnapshot{
		TS:     raw.TS,
		Symbol: raw.Symbol,
		Price:  raw.Payload.K.Close,
		PDD:    ind.PDD,
		VSR:    ind.VSR,
		OIS:    ind.OIS,
		FRD:    ind.FRD,
		ATR:    ind.ATR,
		LL:     ind.LL,
		LVA:    ind.LVA,
		LSI:    ind.LSI,
		LCF:    ind.LCF,
	}
	if err := e.metrics.Append(ctx, SnapshotFields(snap)); err != nil {
		return err
	}
	e.tel.SnapshotsEmitted.Inc()
	e.lastMinute[raw.Symbol] = minute

	if lag := e.now().UnixMilli() - raw.TS; lag > latencyWarnMs {
		e.logger.InfoContext(ctx, "bar latency",
			slog.String("symbol", raw.Symbol),
			slog.Int64("ms", lag),
		)
	}
	return nil
}

// SnapshotFields flattens a snapshot into the field-per-key record published
// on the metrics log, so consumer-group clients can read fields directly
// instead of parsing nested JSON.
func SnapshotFields(s domain.MetricsSnapshot) map[string]any {
	return map[string]any{
		"ts":     strconv.FormatInt(s.TS, 10),
		"symbol": s.Symbol,
		"price":  formatFloat(s.Price),
		"pdd":    formatFloat(s.PDD),
		"vsr":    formatFloat(s.VSR),
		"ois":    formatFloat(s.OIS),
		"frd":    formatFloat(s.FRD),
		"atr":    formatFloat(s.ATR),
		"ll":     formatFloat(s.LL),
		"lva":    formatFloat(s.LVA),
		"lsi":    formatFloat(s.LSI),
		"lcf":    formatFloat(s.LCF),
	}
}

// ParseSnapshot reconstructs a snapshot from a metrics log entry. Unparseable
// numeric fields read as zero, matching the conservative indicator defaults.
func ParseSnapshot(fields map[string]string) domain.MetricsSnapshot {
	ts, _ := strconv.ParseInt(fields["ts"], 10, 64)
	return domain.MetricsSnapshot{
		TS:     ts,
		Symbol: fields["symbol"],
		Price:  parseFloat(fields["price"]),
		PDD:    parseFloat(fields["pdd"]),
		VSR:    parseFloat(fields["vsr"]),
		OIS:    parseFloat(fields["ois"]),
		FRD:    parseFloat(fields["frd"]),
		ATR:    parseFloat(fields["atr"]),
		LL:     parseFloat(fields["ll"]),
		LVA:    parseFloat(fields["lva"]),
		LSI:    parseFloat(fields["lsi"]),
		LCF:    parseFloat(fields["lcf"]),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
