// Package backtest replays historical minute bars through the same window,
// indicator, signal, and risk path the live loop uses, and scores the
// resulting closed trades. Hyperparameter search over these runs is an
// external concern that treats Run as a black box.
package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Bar is one historical minute bar. High and Low drive stop/target touch
// detection during replay.
type Bar struct {
	TS          int64
	Close       float64
	High        float64
	Low         float64
	Volume      float64
	OpenInt     float64
	FundingRate float64
	LiqNotional float64
}

// Source yields the bar series for one symbol.
type Source interface {
	Bars(symbol string) ([]Bar, error)
}

// SliceSource serves in-memory bar series, keyed by symbol.
type SliceSource map[string][]Bar

// Bars returns the series for symbol, or an error when the symbol is absent.
func (s SliceSource) Bars(symbol string) ([]Bar, error) {
	bars, ok := s[symbol]
	if !ok {
		return nil, fmt.Errorf("backtest: no bars for symbol %q", symbol)
	}
	return bars, nil
}

// CSVSource reads exported minute bars from <dir>/minute_<symbol>.csv. The
// expected header is:
//
//	timestamp,close,high,low,volume,open_interest,funding_rate,liquidation_notional
//
// with timestamp in epoch milliseconds.
type CSVSource struct {
	Dir string
}

// Bars loads and parses the symbol's CSV file.
func (s CSVSource) Bars(symbol string) ([]Bar, error) {
	path := filepath.Join(s.Dir, "minute_"+symbol+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backtest: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 8

	// Skip the header row.
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("backtest: read header %s: %w", path, err)
	}

	var bars []Bar
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("backtest: read %s line %d: %w", path, line, err)
		}
		bar, err := parseBar(rec)
		if err != nil {
			return nil, fmt.Errorf("backtest: parse %s line %d: %w", path, line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBar(rec []string) (Bar, error) {
	ts, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("timestamp %q: %w", rec[0], err)
	}
	vals := make([]float64, 7)
	for i, raw := range rec[1:] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Bar{}, fmt.Errorf("field %d %q: %w", i+1, raw, err)
		}
		vals[i] = v
	}
	return Bar{
		TS:          ts,
		Close:       vals[0],
		High:        vals[1],
		Low:         vals[2],
		Volume:      vals[3],
		OpenInt:     vals[4],
		FundingRate: vals[5],
		LiqNotional: vals[6],
	}, nil
}
