package metrics

import "sort"

// Trailing horizons for the ratio-to-baseline indicators, in 1-minute bars.
const (
	medianHorizon  = 1440  // 24h of volume for the surge baseline
	fundingHorizon = 10080 // 7d of funding for the delta baseline
)

// Params fixes the indicator lookbacks. All formulas are pure and
// deterministic over a window view; every division carries an explicit zero
// guard so results are NaN-free by construction.
type Params struct {
	Lookback  int
	ATRPeriod int
}

// IndicatorSet is the derived-metric bundle for one closed bar.
type IndicatorSet struct {
	PDD float64
	VSR float64
	OIS float64
	FRD float64
	ATR float64
	LL  float64
	LVA float64
	LSI float64
	LCF float64
}

// Compute evaluates the full indicator bundle over a window view.
func Compute(v View, p Params) IndicatorSet {
	return IndicatorSet{
		PDD: pdd(v, p.Lookback),
		VSR: vsr(v, p.Lookback),
		OIS: ois(v, p.Lookback),
		FRD: frd(v),
		ATR: atr(v, p.ATRPeriod),
		LL:  ll(v, p.ATRPeriod),
		LVA: lva(v),
		LSI: lsi(v, p.Lookback),
		LCF: lcf(v, p.Lookback),
	}
}

// pdd is the price drawdown over the lookback: (last - base) / base, zero on
// insufficient history or a zero base.
func pdd(v View, lookback int) float64 {
	n := v.Len()
	if n <= lookback {
		return 0
	}
	base := v.Price(n - lookback - 1)
	if base == 0 {
		return 0
	}
	return (v.Price(n-1) - base) / base
}

// vsr is the volume surge ratio: lookback volume sum over the trailing 24h
// median, zero when the median is zero.
func vsr(v View, lookback int) float64 {
	n := v.Len()
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := n - min(lookback, n); i < n; i++ {
		sum += v.Volume(i)
	}
	med := trailingMedianVolume(v, medianHorizon)
	if med == 0 {
		return 0
	}
	return sum / med
}

// ois is the open-interest surge over the lookback, zero on insufficient
// history or a zero base.
func ois(v View, lookback int) float64 {
	n := v.Len()
	if n <= lookback {
		return 0
	}
	base := v.OpenInt(n - lookback - 1)
	if base == 0 {
		return 0
	}
	return (v.OpenInt(n-1) - base) / base
}

// frd is the funding-rate delta: last funding minus the trailing 7d mean.
func frd(v View) float64 {
	n := v.Len()
	if n < 1 {
		return 0
	}
	span := min(n, fundingHorizon)
	sum := 0.0
	for i := n - span; i < n; i++ {
		sum += v.Funding(i)
	}
	return v.Funding(n-1) - sum/float64(span)
}

// atr is the average-true-range proxy: mean absolute first difference of the
// last period prices, zero with fewer than period samples.
func atr(v View, period int) float64 {
	return meanAbsDiff(v.Price, v.Len(), period)
}

// ll is the liquidation churn proxy: the atr formula applied to the
// liquidation-notional series.
func ll(v View, period int) float64 {
	return meanAbsDiff(v.Liq, v.Len(), period)
}

// lva is the volume first difference, zero with fewer than two samples.
func lva(v View) float64 {
	n := v.Len()
	if n < 2 {
		return 0
	}
	return v.Volume(n-1) - v.Volume(n-2)
}

// lsi is the liquidation surge index: lookback liquidation sum over the
// trailing 24h mean, zero when the mean is zero.
func lsi(v View, lookback int) float64 {
	n := v.Len()
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := n - min(lookback, n); i < n; i++ {
		sum += v.Liq(i)
	}
	span := min(n, medianHorizon)
	baseSum := 0.0
	for i := n - span; i < n; i++ {
		baseSum += v.Liq(i)
	}
	mean := baseSum / float64(span)
	if mean == 0 {
		return 0
	}
	return sum / mean
}

// lcf is the liquidation cost flow: total liquidation notional over the
// lookback.
func lcf(v View, lookback int) float64 {
	n := v.Len()
	sum := 0.0
	for i := n - min(lookback, n); i < n; i++ {
		sum += v.Liq(i)
	}
	return sum
}

// meanAbsDiff averages |x[i] - x[i-1]| over the last period samples. Fewer
// than period samples yields zero rather than a thin-history estimate.
func meanAbsDiff(at func(int) float64, n, period int) float64 {
	if n < period || period < 2 {
		return 0
	}
	sum := 0.0
	for i := n - period + 1; i < n; i++ {
		d := at(i) - at(i-1)
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(period-1)
}

// trailingMedianVolume computes the median of the last horizon volumes. The
// scratch copy keeps the view read-only.
func trailingMedianVolume(v View, horizon int) float64 {
	n := v.Len()
	span := min(n, horizon)
	if span == 0 {
		return 0
	}
	scratch := make([]float64, span)
	for i := 0; i < span; i++ {
		scratch[i] = v.Volume(n - span + i)
	}
	sort.Float64s(scratch)
	mid := span / 2
	if span%2 == 1 {
		return scratch[mid]
	}
	return (scratch[mid-1] + scratch[mid]) / 2
}
