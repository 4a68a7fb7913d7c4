package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmoney-labs/smbot/internal/domain"
)

var testParams = Params{Lookback: 15, ATRPeriod: 14}

func windowOf(frames []domain.BarFrame) View {
	w := NewWindow(len(frames) + 8)
	for _, f := range frames {
		w.Update(f)
	}
	v, err := w.View(w.Fill())
	if err != nil {
		panic(err)
	}
	return v
}

func flatFrames(n int, price, volume float64) []domain.BarFrame {
	frames := make([]domain.BarFrame, n)
	for i := range frames {
		frames[i] = domain.BarFrame{Price: price, Volume: volume}
	}
	return frames
}

func TestPDDTwentyPercentDrop(t *testing.T) {
	frames := flatFrames(16, 100, 1)
	frames = append(frames, domain.BarFrame{Price: 80, Volume: 1})

	ind := Compute(windowOf(frames), testParams)
	assert.InDelta(t, -0.2, ind.PDD, 1e-9)
}

func TestPDDFullDayWindowDrop(t *testing.T) {
	w := NewWindow(1500)
	for i := 0; i < 1499; i++ {
		w.Update(domain.BarFrame{Price: 100, Volume: 1})
	}
	w.Update(domain.BarFrame{Price: 80, Volume: 1})

	v, err := w.View(w.Fill())
	require.NoError(t, err)
	ind := Compute(v, testParams)
	assert.InDelta(t, -0.2, ind.PDD, 0.01)
}

func TestPDDInsufficientHistoryIsZero(t *testing.T) {
	ind := Compute(windowOf(flatFrames(10, 100, 1)), testParams)
	assert.Zero(t, ind.PDD)
}

func TestVSRAgainstTrailingMedian(t *testing.T) {
	frames := flatFrames(100, 100, 1)
	for i := 0; i < 15; i++ {
		frames = append(frames, domain.BarFrame{Price: 100, Volume: 10})
	}

	// Median of 100 ones and 15 tens is 1; last 15 volumes sum to 150.
	ind := Compute(windowOf(frames), testParams)
	assert.InDelta(t, 150, ind.VSR, 1e-9)
}

func TestOISSurge(t *testing.T) {
	frames := make([]domain.BarFrame, 0, 17)
	for i := 0; i < 16; i++ {
		frames = append(frames, domain.BarFrame{Price: 100, OpenInt: 1000})
	}
	frames = append(frames, domain.BarFrame{Price: 100, OpenInt: 1200})

	ind := Compute(windowOf(frames), testParams)
	assert.InDelta(t, 0.2, ind.OIS, 1e-9)
}

func TestFRDDeltaVersusTrailingMean(t *testing.T) {
	frames := make([]domain.BarFrame, 0, 10)
	for i := 0; i < 9; i++ {
		frames = append(frames, domain.BarFrame{Price: 100})
	}
	frames = append(frames, domain.BarFrame{Price: 100, FundingRate: -0.05})

	// Mean over the 10 samples is -0.005; delta is -0.05 - (-0.005).
	ind := Compute(windowOf(frames), testParams)
	assert.InDelta(t, -0.045, ind.FRD, 1e-9)
}

func TestATRUnitSteps(t *testing.T) {
	frames := make([]domain.BarFrame, 0, 20)
	price := 100.0
	for i := 0; i < 20; i++ {
		frames = append(frames, domain.BarFrame{Price: price})
		if i%2 == 0 {
			price++
		} else {
			price--
		}
	}

	ind := Compute(windowOf(frames), testParams)
	assert.InDelta(t, 1.0, ind.ATR, 1e-9)
}

func TestLVAIsVolumeFirstDifference(t *testing.T) {
	frames := flatFrames(5, 100, 10)
	frames = append(frames, domain.BarFrame{Price: 100, Volume: 35})

	ind := Compute(windowOf(frames), testParams)
	assert.InDelta(t, 25, ind.LVA, 1e-9)
}

func TestLCFSumsLookbackLiquidations(t *testing.T) {
	frames := make([]domain.BarFrame, 0, 15)
	for i := 0; i < 15; i++ {
		frames = append(frames, domain.BarFrame{Price: 100, LiqNotional: 1000})
	}

	ind := Compute(windowOf(frames), testParams)
	assert.InDelta(t, 15_000, ind.LCF, 1e-9)
}

func TestComputeDeterministic(t *testing.T) {
	frames := make([]domain.BarFrame, 0, 64)
	for i := 0; i < 64; i++ {
		frames = append(frames, domain.BarFrame{
			Price:       100 + float64(i%7),
			Volume:      float64(1 + i%5),
			OpenInt:     1000 + float64(i),
			FundingRate: -0.001 * float64(i%3),
			LiqNotional: float64(i % 11),
		})
	}
	v := windowOf(frames)

	first := Compute(v, testParams)
	second := Compute(v, testParams)
	assert.Equal(t, first, second)
}

func TestComputeEmptyWindowAllZero(t *testing.T) {
	w := NewWindow(8)
	v, err := w.View(0)
	require.NoError(t, err)

	ind := Compute(v, testParams)
	assert.Equal(t, IndicatorSet{}, ind)
}
