package backtest

import (
	"log/slog"
	"math"

	"github.com/smartmoney-labs/smbot/internal/domain"
	"github.com/smartmoney-labs/smbot/internal/metrics"
	"github.com/smartmoney-labs/smbot/internal/risk"
	"github.com/smartmoney-labs/smbot/internal/strategy"
)

// Trade is one closed round trip recorded by the replay.
type Trade struct {
	TS     int64
	Symbol string
	Side   domain.OrderSide
	Qty    float64
	Entry  float64
	Exit   float64
	PnL    float64
	R      float64
}

// Stats summarizes a replay.
type Stats struct {
	WinRate      float64
	AvgR         float64
	ProfitFactor float64
	MaxDD        float64
	TailRatio    float64
}

// Config tunes a replay run.
type Config struct {
	BufferSize   int
	Lookback     int
	ATRPeriod    int
	FeeBps       float64
	StartEquity  float64
	TimeExitBars int
	Strategy     strategy.Config
	Risk         risk.Params
}

// Simulator replays bar series through the live decision path with simulated
// settlement. At most one position is open per run at a time; exits trigger
// on stop-loss touch, take-profit touch, or the time exit, in that order of
// precedence within a bar.
type Simulator struct {
	cfg    Config
	source Source
	logger *slog.Logger
}

// NewSimulator creates a Simulator over the given bar source.
func NewSimulator(cfg Config, source Source, logger *slog.Logger) *Simulator {
	return &Simulator{
		cfg:    cfg,
		source: source,
		logger: logger.With(slog.String("component", "backtest")),
	}
}

// Run replays each symbol in sequence against one shared account and returns
// the closed trades and summary stats. A FatalHalt verdict from risk vetting
// stops the whole replay, mirroring the live hard stop.
func (s *Simulator) Run(symbols []string) ([]Trade, Stats, error) {
	account := domain.AccountState{
		Equity:      s.cfg.StartEquity,
		StartEquity: s.cfg.StartEquity,
	}
	var trades []Trade

	for _, symbol := range symbols {
		bars, err := s.source.Bars(symbol)
		if err != nil {
			return nil, Stats{}, err
		}

		symTrades, halted := s.replaySymbol(symbol, bars, &account)
		trades = append(trades, symTrades...)
		if halted {
			s.logger.Warn("replay halted by drawdown hard stop",
				slog.String("symbol", symbol),
				slog.Float64("equity", account.Equity),
			)
			break
		}
	}

	return trades, summarize(trades, s.cfg.StartEquity, account.Equity), nil
}

// replaySymbol walks one symbol's bars. The returned bool reports a fatal
// halt.
func (s *Simulator) replaySymbol(symbol string, bars []Bar, account *domain.AccountState) ([]Trade, bool) {
	window := metrics.NewWindow(s.cfg.BufferSize)
	params := metrics.Params{Lookback: s.cfg.Lookback, ATRPeriod: s.cfg.ATRPeriod}
	feeRate := s.cfg.FeeBps / 10_000

	var (
		trades   []Trade
		open     *domain.Signal
		qty      float64
		entryBar int
	)

	for i, bar := range bars {
		window.Update(domain.BarFrame{
			Price:       bar.Close,
			Volume:      bar.Volume,
			OpenInt:     bar.OpenInt,
			FundingRate: bar.FundingRate,
			LiqNotional: bar.LiqNotional,
		})
		if window.Fill() < s.cfg.Lookback {
			continue
		}

		view, err := window.View(window.Fill())
		if err != nil {
			// Fill never exceeds capacity; treat defensively as a skip.
			continue
		}
		ind := metrics.Compute(view, params)
		snap := snapshotFrom(bar, symbol, ind)

		if open == nil {
			sig := strategy.Generate(symbol, bar.Close, snap, s.cfg.Strategy)
			if sig == nil {
				continue
			}
			verdict := risk.VetAndSize(*sig, *account, s.cfg.Risk)
			switch verdict.Outcome {
			case risk.FatalHalt:
				return trades, true
			case risk.Sized:
				open = sig
				qty = verdict.Plan.Qty
				entryBar = i
				account.Equity -= qty * bar.Close * feeRate
			}
			continue
		}

		var exit float64
		switch {
		case bar.Low <= open.SLPrice:
			exit = open.SLPrice
		case bar.High >= open.TPPrice:
			exit = open.TPPrice
		case i-entryBar >= s.cfg.TimeExitBars:
			exit = bar.Close
		default:
			continue
		}

		pnl := (exit-open.EntryPrice)*qty - qty*exit*feeRate
		account.Equity += pnl
		account.DailyPnL += pnl
		r := pnl / (math.Abs(open.EntryPrice-open.SLPrice) * qty)

		trades = append(trades, Trade{
			TS:     bar.TS,
			Symbol: symbol,
			Side:   open.Side,
			Qty:    qty,
			Entry:  open.EntryPrice,
			Exit:   exit,
			PnL:    pnl,
			R:      r,
		})
		open = nil
	}
	return trades, false
}

func snapshotFrom(bar Bar, symbol string, ind metrics.IndicatorSet) domain.MetricsSnapshot {
	return domain.MetricsSnapshot{
		TS:     bar.TS,
		Symbol: symbol,
		Price:  bar.Close,
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
}

func summarize(trades []Trade, startEquity, endEquity float64) Stats {
	if len(trades) == 0 {
		return Stats{}
	}

	var (
		wins, losses          int
		winPnL, lossPnL, sumR float64
		bestR, worstR         float64
	)
	for _, t := range trades {
		sumR += t.R
		if t.PnL > 0 {
			wins++
			winPnL += t.PnL
			if t.R > bestR {
				bestR = t.R
			}
		} else {
			losses++
			lossPnL += t.PnL
			if t.R < worstR {
				worstR = t.R
			}
		}
	}

	stats := Stats{
		WinRate: float64(wins) / float64(len(trades)),
		AvgR:    sumR / float64(len(trades)),
		MaxDD:   math.Max(0, (startEquity-endEquity)/startEquity),
	}
	if losses > 0 {
		stats.ProfitFactor = winPnL / math.Abs(lossPnL)
	} else {
		stats.ProfitFactor = math.Inf(1)
	}
	if wins > 0 && losses > 0 && worstR != 0 {
		stats.TailRatio = bestR / math.Abs(worstR)
	}
	return stats
}
