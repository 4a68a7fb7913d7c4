package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmoney-labs/smbot/internal/domain"
)

var testRiskParams = Params{
	RiskPct:        1,
	MaxDDPct:       50,
	DailyStop:      1_000,
	ExchangeMinQty: 0.001,
}

func longSignal() domain.Signal {
	return domain.Signal{
		Symbol:      "BTCUSDT",
		Side:        domain.OrderSideLong,
		EntryPrice:  100,
		SLPrice:     90,
		TPPrice:     130,
		PHitRateEst: 0.4,
		RMultiple:   3,
	}
}

func healthyAccount() domain.AccountState {
	return domain.AccountState{Equity: 10_000, StartEquity: 10_000}
}

func TestVetAndSizeFixedFractionalQty(t *testing.T) {
	v := VetAndSize(longSignal(), healthyAccount(), testRiskParams)

	require.Equal(t, Sized, v.Outcome)
	// 1% of 10000 equity over a 10-wide stop.
	assert.InDelta(t, 10.0, v.Plan.Qty, 1e-9)
	assert.Equal(t, "BTCUSDT", v.Plan.Symbol)
	assert.Equal(t, domain.OrderSideLong, v.Plan.Side)
	assert.Equal(t, 100.0, v.Plan.EntryPrice)
	assert.Equal(t, 90.0, v.Plan.SLPrice)
	assert.Equal(t, 130.0, v.Plan.TPPrice)
}

func TestVetAndSizeRejectsInsufficientEdge(t *testing.T) {
	sig := longSignal()
	sig.PHitRateEst = 0.2 // edge = 0.2*3 - 0.8 < 0

	v := VetAndSize(sig, healthyAccount(), testRiskParams)
	assert.Equal(t, Rejected, v.Outcome)
	assert.Equal(t, "insufficient edge", v.Reason)
}

func TestVetAndSizeRejectsLowRMultiple(t *testing.T) {
	sig := longSignal()
	sig.RMultiple = 1.5

	v := VetAndSize(sig, healthyAccount(), testRiskParams)
	assert.Equal(t, Rejected, v.Outcome)
}

func TestVetAndSizeFatalHaltOnMaxDrawdown(t *testing.T) {
	account := domain.AccountState{Equity: 5_000, StartEquity: 10_000}

	v := VetAndSize(longSignal(), account, testRiskParams)
	assert.Equal(t, FatalHalt, v.Outcome)
	assert.Equal(t, "max drawdown reached", v.Reason)
}

func TestVetAndSizeRejectsAfterDailyStop(t *testing.T) {
	account := healthyAccount()
	account.DailyPnL = -1_000

	v := VetAndSize(longSignal(), account, testRiskParams)
	assert.Equal(t, Rejected, v.Outcome)
	assert.Equal(t, "daily stop hit", v.Reason)
}

func TestVetAndSizeRejectsZeroStopDistance(t *testing.T) {
	sig := longSignal()
	sig.SLPrice = sig.EntryPrice

	v := VetAndSize(sig, healthyAccount(), testRiskParams)
	assert.Equal(t, Rejected, v.Outcome)
	assert.Equal(t, "zero stop distance", v.Reason)
}

func TestVetAndSizeRejectsBelowExchangeMinimum(t *testing.T) {
	params := testRiskParams
	params.ExchangeMinQty = 100

	v := VetAndSize(longSignal(), healthyAccount(), params)
	assert.Equal(t, Rejected, v.Outcome)
	assert.Equal(t, "below exchange minimum quantity", v.Reason)
}

func TestVetAndSizeHardStopCheckedBeforeSoftStop(t *testing.T) {
	// Both stops violated: the hard stop must win so the caller halts.
	account := domain.AccountState{Equity: 4_000, StartEquity: 10_000, DailyPnL: -2_000}

	v := VetAndSize(longSignal(), account, testRiskParams)
	assert.Equal(t, FatalHalt, v.Outcome)
}
