// Package risk sizes and vets candidate trades against account limits and
// owns the kill-switch safety state machine that gates order dispatch.
package risk

import (
	"math"

	"github.com/smartmoney-labs/smbot/internal/domain"
)

// Params holds position sizing and stop parameters.
type Params struct {
	RiskPct        float64 // percent of equity risked per trade
	MaxDDPct       float64 // hard-stop drawdown percent of start equity
	DailyStop      float64 // soft-stop daily loss in quote units
	ExchangeMinQty float64
}

// Outcome classifies a vetting result.
type Outcome int

const (
	// Rejected skips this one opportunity; trading continues.
	Rejected Outcome = iota
	// Sized carries a fully specified order plan.
	Sized
	// FatalHalt means the drawdown hard stop fired: the caller must halt the
	// whole decision loop, not just drop the trade.
	FatalHalt
)

// Verdict is the typed result of VetAndSize. Callers switch on Outcome; the
// halt case cannot be ignored the way a skipped trade can.
type Verdict struct {
	Outcome Outcome
	Plan    domain.OrderPlan // valid only when Outcome == Sized
	Reason  string
}

func rejected(reason string) Verdict {
	return Verdict{Outcome: Rejected, Reason: reason}
}

// VetAndSize validates a signal's edge, applies the hard and soft stops, and
// sizes the position by fixed fractional risk. Sizing by a fixed fraction of
// equity bounds the loss per trade independent of how wide the stop is.
func VetAndSize(sig domain.Signal, account domain.AccountState, params Params) Verdict {
	edge := sig.PHitRateEst*sig.RMultiple - (1 - sig.PHitRateEst)
	if edge <= 0 || sig.RMultiple < 2 {
		return rejected("insufficient edge")
	}

	if account.Drawdown() >= params.MaxDDPct/100*account.StartEquity {
		return Verdict{Outcome: FatalHalt, Reason: "max drawdown reached"}
	}

	if -account.DailyPnL >= params.DailyStop {
		return rejected("daily stop hit")
	}

	stopDist := math.Abs(sig.EntryPrice - sig.SLPrice)
	if stopDist <= 0 {
		return rejected("zero stop distance")
	}
	riskAmount := params.RiskPct / 100 * account.Equity
	qty := riskAmount / stopDist
	if qty < params.ExchangeMinQty {
		return rejected("below exchange minimum quantity")
	}

	return Verdict{
		Outcome: Sized,
		Plan: domain.OrderPlan{
			Symbol:     sig.Symbol,
			Side:       sig.Side,
			Qty:        qty,
			EntryPrice: sig.EntryPrice,
			SLPrice:    sig.SLPrice,
			TPPrice:    sig.TPPrice,
		},
	}
}
