// Package metrics holds the rolling-window metric engine: the per-symbol
// ring buffer, the pure indicator formulas, and the consumer loop that turns
// raw closed-bar events into published metrics snapshots.
package metrics

import "github.com/smartmoney-labs/smbot/internal/domain"

// Window is a fixed-capacity circular buffer of five parallel time series
// for one symbol. It is owned exclusively by the metric engine goroutine;
// no cross-goroutine mutation.
type Window struct {
	size int
	idx  int
	full bool

	price   []float64
	volume  []float64
	openInt []float64
	funding []float64
	liq     []float64
}

// NewWindow creates a Window with the given capacity. All allocation happens
// here; Update never allocates.
func NewWindow(size int) *Window {
	return &Window{
		size:    size,
		price:   make([]float64, size),
		volume:  make([]float64, size),
		openInt: make([]float64, size),
		funding: make([]float64, size),
		liq:     make([]float64, size),
	}
}

// Update appends one sample at the write cursor and advances it modulo
// capacity. The full flag latches the first time the cursor wraps.
func (w *Window) Update(f domain.BarFrame) {
	w.price[w.idx] = f.Price
	w.volume[w.idx] = f.Volume
	w.openInt[w.idx] = f.OpenInt
	w.funding[w.idx] = f.FundingRate
	w.liq[w.idx] = f.LiqNotional
	w.idx = (w.idx + 1) % w.size
	if w.idx == 0 {
		w.full = true
	}
}

// Size returns the window capacity.
func (w *Window) Size() int { return w.size }

// Fill returns the number of samples inserted, capped at capacity.
func (w *Window) Fill() int {
	if w.full {
		return w.size
	}
	return w.idx
}

// View returns a count-length ordered view ending at the most recent sample,
// oldest first. The view translates logical indices onto the ring without
// copying or rotating the underlying arrays. count > capacity fails with
// domain.ErrInvalidRange.
func (w *Window) View(count int) (View, error) {
	if count > w.size {
		return View{}, domain.ErrInvalidRange
	}
	start := w.idx - count
	if start < 0 {
		start += w.size
	}
	return View{w: w, start: start, n: count}, nil
}

// View is a read-only, index-translating window over the ring. Index 0 is
// the oldest sample in the view, Len()-1 the most recent.
type View struct {
	w     *Window
	start int
	n     int
}

// Len returns the view length.
func (v View) Len() int { return v.n }

func (v View) pos(i int) int {
	return (v.start + i) % v.w.size
}

// Price returns the i-th price, oldest first.
func (v View) Price(i int) float64 { return v.w.price[v.pos(i)] }

// Volume returns the i-th volume, oldest first.
func (v View) Volume(i int) float64 { return v.w.volume[v.pos(i)] }

// OpenInt returns the i-th open interest, oldest first.
func (v View) OpenInt(i int) float64 { return v.w.openInt[v.pos(i)] }

// Funding returns the i-th funding rate, oldest first.
func (v View) Funding(i int) float64 { return v.w.funding[v.pos(i)] }

// Liq returns the i-th liquidation notional, oldest first.
func (v View) Liq(i int) float64 { return v.w.liq[v.pos(i)] }
