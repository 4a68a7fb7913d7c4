package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmoney-labs/smbot/internal/domain"
)

var testCfg = Config{CostThreshold: 1_000_000}

// qualifyingSnapshot satisfies every entry conjunct.
func qualifyingSnapshot() domain.MetricsSnapshot {
	return domain.MetricsSnapshot{
		Symbol: "BTCUSDT",
		Price:  50_000,
		PDD:    -0.25,
		VSR:    3.5,
		OIS:    0.2,
		FRD:    -0.03,
		ATR:    500,
		LL:     100,
		LSI:    2.5,
		LCF:    50_000,
	}
}

func TestGenerateLongOnCapitulation(t *testing.T) {
	m := qualifyingSnapshot()
	sig := Generate(m.Symbol, m.Price, m, testCfg)

	require.NotNil(t, sig)
	assert.Equal(t, domain.OrderSideLong, sig.Side)
	assert.Equal(t, 50_000.0, sig.EntryPrice)
	assert.Equal(t, 49_500.0, sig.SLPrice)
	assert.Equal(t, 51_500.0, sig.TPPrice)
	assert.Equal(t, 3.0, sig.RMultiple)
	assert.Equal(t, 0.4, sig.PHitRateEst)
}

func TestGenerateNilWhenAnyConjunctFails(t *testing.T) {
	cases := map[string]func(*domain.MetricsSnapshot){
		"shallow drawdown":   func(m *domain.MetricsSnapshot) { m.PDD = -0.1 },
		"no volume surge":    func(m *domain.MetricsSnapshot) { m.VSR = 2.9 },
		"flat open interest": func(m *domain.MetricsSnapshot) { m.OIS = 0.1 },
		"neutral funding":    func(m *domain.MetricsSnapshot) { m.FRD = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := qualifyingSnapshot()
			mutate(&m)
			assert.Nil(t, Generate(m.Symbol, m.Price, m, testCfg))
		})
	}
}

func TestGenerateLiquidationGateEitherBranch(t *testing.T) {
	// Surge index alone qualifies.
	m := qualifyingSnapshot()
	m.LSI = 2.0
	m.LL = 1_000
	assert.NotNil(t, Generate(m.Symbol, m.Price, m, testCfg))

	// Low churn relative to price churn qualifies without the surge index.
	m = qualifyingSnapshot()
	m.LSI = 0.5
	m.LL = 200 // ATR 500, bound is 250
	assert.NotNil(t, Generate(m.Symbol, m.Price, m, testCfg))

	// Neither branch holds.
	m = qualifyingSnapshot()
	m.LSI = 0.5
	m.LL = 400
	assert.Nil(t, Generate(m.Symbol, m.Price, m, testCfg))
}

func TestGenerateRejectsExpensiveLiquidationFlow(t *testing.T) {
	m := qualifyingSnapshot()
	m.LCF = 1_000_001
	assert.Nil(t, Generate(m.Symbol, m.Price, m, testCfg))
}

func TestGenerateDeterministic(t *testing.T) {
	m := qualifyingSnapshot()
	first := Generate(m.Symbol, m.Price, m, testCfg)
	second := Generate(m.Symbol, m.Price, m, testCfg)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
}
