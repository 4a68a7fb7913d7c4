// Package strategy turns metrics snapshots into candidate trade signals. The
// evaluator is stateless: identical inputs always produce an identical
// Signal or nil, which is what keeps backtest and live decisions in parity.
package strategy

import "github.com/smartmoney-labs/smbot/internal/domain"

// Rule thresholds for the long-side capitulation entry. Only a long rule is
// defined; there is deliberately no symmetric short rule.
const (
	maxPDD = -0.2
	minVSR = 3.0
	minOIS = 0.15
	maxFRD = -0.02
	minLSI = 2.0

	// llATRFraction bounds liquidation churn relative to price churn when
	// the surge index alone does not qualify.
	llATRFraction = 0.5

	rMultiple = 3.0

	// pHitRateEst is the calibrated hit-rate constant for this rule.
	pHitRateEst = 0.4
)

// Config holds the tunable strategy parameters.
type Config struct {
	CostThreshold float64
}

// Generate evaluates the entry rule against one metrics snapshot and the
// latest price. It returns nil when any conjunct fails.
func Generate(symbol string, lastPrice float64, m domain.MetricsSnapshot, cfg Config) *domain.Signal {
	if !(m.PDD <= maxPDD && m.VSR >= minVSR && m.OIS >= minOIS && m.FRD <= maxFRD) {
		return nil
	}
	if !(m.LSI >= minLSI || m.LL <= llATRFraction*m.ATR) {
		return nil
	}
	if m.LCF > cfg.CostThreshold {
		return nil
	}

	entry := lastPrice
	sl := entry - m.ATR
	tp := entry + rMultiple*(entry-sl)

	return &domain.Signal{
		Symbol:      symbol,
		Side:        domain.OrderSideLong,
		EntryPrice:  entry,
		SLPrice:     sl,
		TPPrice:     tp,
		PHitRateEst: pHitRateEst,
		RMultiple:   rMultiple,
	}
}
