package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/smartmoney-labs/smbot/internal/backtest"
	"github.com/smartmoney-labs/smbot/internal/domain"
	"github.com/smartmoney-labs/smbot/internal/metrics"
	"github.com/smartmoney-labs/smbot/internal/orchestrator"
	"github.com/smartmoney-labs/smbot/internal/risk"
	"github.com/smartmoney-labs/smbot/internal/strategy"
)

// EngineMode runs the metric engine and the telemetry exporter.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startMetricEngine(ctx, g, deps)
	a.startTelemetry(ctx, g, deps)
	return g.Wait()
}

// OrchestratorMode runs the decision loop and the telemetry exporter.
func (a *App) OrchestratorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting orchestrator mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startOrchestrator(ctx, g, deps)
	a.startTelemetry(ctx, g, deps)
	return g.Wait()
}

// AllMode runs the metric engine and the orchestrator concurrently. They
// share the redis client but hold independent consumer-group cursors, so
// each makes progress on its own schedule.
func (a *App) AllMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting all mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startMetricEngine(ctx, g, deps)
	a.startOrchestrator(ctx, g, deps)
	a.startTelemetry(ctx, g, deps)
	return g.Wait()
}

// BacktestMode replays the configured symbols once and logs the summary.
func (a *App) BacktestMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting backtest mode",
		slog.String("data_dir", a.cfg.Backtest.DataDir),
		slog.Any("symbols", a.cfg.Backtest.Symbols),
	)

	sim := backtest.NewSimulator(backtest.Config{
		BufferSize:   a.cfg.Metrics.BufferSize,
		Lookback:     a.cfg.Metrics.Lookback,
		ATRPeriod:    a.cfg.Metrics.ATRPeriod,
		FeeBps:       a.cfg.Risk.FeeBps,
		StartEquity:  a.cfg.Risk.StartEquity,
		TimeExitBars: a.cfg.Backtest.TimeExitBars,
		Strategy:     strategy.Config{CostThreshold: a.cfg.Strategy.CostThreshold},
		Risk:         a.riskParams(),
	}, backtest.CSVSource{Dir: a.cfg.Backtest.DataDir}, a.logger)

	trades, stats, err := sim.Run(a.cfg.Backtest.Symbols)
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "backtest finished",
		slog.Int("trades", len(trades)),
		slog.Float64("win_rate", stats.WinRate),
		slog.Float64("avg_r", stats.AvgR),
		slog.Float64("profit_factor", stats.ProfitFactor),
		slog.Float64("max_dd", stats.MaxDD),
		slog.Float64("tail_ratio", stats.TailRatio),
	)
	return nil
}

func (a *App) startMetricEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	engine := metrics.NewEngine(
		deps.RawLog,
		deps.MetricsOut,
		deps.Heartbeats,
		deps.Telemetry.Metrics,
		a.cfg.Metrics.BufferSize,
		metrics.Params{Lookback: a.cfg.Metrics.Lookback, ATRPeriod: a.cfg.Metrics.ATRPeriod},
		a.logger,
	)
	g.Go(func() error {
		err := engine.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})
}

func (a *App) startOrchestrator(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	orch := orchestrator.New(
		deps.MetricsIn,
		deps.Gateway,
		deps.Ledger,
		deps.Heartbeats,
		deps.KillSwitch,
		deps.Telemetry.Metrics,
		strategy.Config{CostThreshold: a.cfg.Strategy.CostThreshold},
		a.riskParams(),
		domain.AccountState{
			Equity:      a.cfg.Risk.StartEquity,
			StartEquity: a.cfg.Risk.StartEquity,
		},
		a.logger,
	)
	g.Go(func() error {
		err := orch.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})
}

func (a *App) startTelemetry(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Telemetry.Enabled {
		return
	}
	port := a.cfg.Telemetry.Port
	g.Go(func() error {
		err := deps.Telemetry.Serve(ctx, port)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})
}

func (a *App) riskParams() risk.Params {
	return risk.Params{
		RiskPct:        a.cfg.Risk.RiskPct,
		MaxDDPct:       a.cfg.Risk.MaxDDPct,
		DailyStop:      a.cfg.Risk.DailyStop,
		ExchangeMinQty: a.cfg.Risk.ExchangeMinQty,
	}
}
