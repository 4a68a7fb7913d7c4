// Package domain defines the core value types, store/log interfaces, and
// sentinel errors shared across the bot. It has no dependencies on concrete
// infrastructure; redis, postgres, and gateway packages implement the
// interfaces declared here.
package domain

import "time"

// OrderSide is the direction of a planned trade.
type OrderSide string

const (
	OrderSideLong  OrderSide = "long"
	OrderSideShort OrderSide = "short"
)

// BarFrame is one closed 1-minute bar for a symbol, extracted from a raw
// market event. Missing feeds (open interest, funding, liquidations) arrive
// as zero values.
type BarFrame struct {
	Price       float64
	Volume      float64
	OpenInt     float64
	FundingRate float64
	LiqNotional float64
}

// RawEvent is the JSON envelope published to the raw event log by the
// collector. Only the "kline" feed with a closed bar drives the metric
// engine; other feeds pass through untouched.
type RawEvent struct {
	TS      int64      `json:"ts"`
	Symbol  string     `json:"symbol"`
	Feed    string     `json:"feed"`
	Payload RawPayload `json:"payload"`
}

// RawPayload wraps the kline body under the "k" key, mirroring the
// exchange's own envelope shape.
type RawPayload struct {
	K Kline `json:"k"`
}

// Kline carries one bar of the "kline" feed. X marks bar close; OI, FR, and
// L are optional enrichments merged in by the collector.
type Kline struct {
	OpenTime    int64   `json:"t"`
	Close       float64 `json:"c,string"`
	Volume      float64 `json:"v,string"`
	Closed      bool    `json:"x"`
	OpenInt     float64 `json:"oi,omitempty"`
	FundingRate float64 `json:"fr,omitempty"`
	LiqNotional float64 `json:"l,omitempty"`
}

// Frame converts the kline body to a BarFrame.
func (k Kline) Frame() BarFrame {
	return BarFrame{
		Price:       k.Close,
		Volume:      k.Volume,
		OpenInt:     k.OpenInt,
		FundingRate: k.FundingRate,
		LiqNotional: k.LiqNotional,
	}
}

// MetricsSnapshot is the indicator bundle computed once per closed bar per
// symbol and published to the metrics event log as a flat field-per-key
// record.
type MetricsSnapshot struct {
	TS     int64
	Symbol string
	Price  float64
	PDD    float64 // price drawdown over the lookback
	VSR    float64 // volume surge ratio vs trailing median
	OIS    float64 // open-interest surge over the lookback
	FRD    float64 // funding-rate delta vs trailing mean
	ATR    float64 // mean absolute price first-difference proxy
	LL     float64 // liquidation churn proxy
	LVA    float64 // volume first-difference
	LSI    float64 // liquidation surge index vs trailing mean
	LCF    float64 // liquidation notional flow over the lookback
}

// Signal is a candidate trade derived deterministically from one metrics
// snapshot. Immutable once produced.
type Signal struct {
	Symbol      string
	Side        OrderSide
	EntryPrice  float64
	SLPrice     float64
	TPPrice     float64
	PHitRateEst float64
	RMultiple   float64
}

// AccountState tracks equity for risk decisions. It has a single writer (the
// orchestrator's settlement bookkeeping in backtest, external fill accounting
// live) and is read by the risk manager and the kill switch. DailyPnL
// accumulates until an operator resets it externally; the core defines no
// day-rollover boundary.
type AccountState struct {
	Equity      float64
	StartEquity float64
	DailyPnL    float64
}

// Drawdown returns the realized peak-to-current equity decline.
func (a AccountState) Drawdown() float64 {
	return a.StartEquity - a.Equity
}

// DrawdownPct returns the drawdown as a percentage of starting equity, or 0
// when starting equity is unset.
func (a AccountState) DrawdownPct() float64 {
	if a.StartEquity == 0 {
		return 0
	}
	return a.Drawdown() / a.StartEquity * 100
}

// OrderPlan is a fully risk-sized order ready for the execution gateway.
type OrderPlan struct {
	Symbol     string
	Side       OrderSide
	Qty        float64
	EntryPrice float64
	SLPrice    float64
	TPPrice    float64
}

// PlannedTrade is the immutable ledger row recorded for every dispatched
// plan. IdemKey is the client idempotency key shared with the gateway so a
// redelivered metrics entry cannot double-record.
type PlannedTrade struct {
	ID         int64
	TS         time.Time
	IdemKey    string
	Symbol     string
	Side       OrderSide
	Qty        float64
	EntryPrice float64
	SLPrice    float64
	TPPrice    float64
}

// StreamEntry is one consumed event-log entry: the log-assigned ID plus the
// raw field map.
type StreamEntry struct {
	ID     string
	Fields map[string]string
}
