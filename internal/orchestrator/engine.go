// Package orchestrator runs the decision cycle: consume metrics snapshots,
// evaluate the strategy rule, vet and size through risk, and dispatch
// approved plans, all gated by the shared kill switch.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/smartmoney-labs/smbot/internal/domain"
	"github.com/smartmoney-labs/smbot/internal/metrics"
	"github.com/smartmoney-labs/smbot/internal/risk"
	"github.com/smartmoney-labs/smbot/internal/strategy"
	"github.com/smartmoney-labs/smbot/internal/telemetry"
)

const (
	readBatch    = 10
	readBlock    = time.Second
	heartbeatTTL = 5 * time.Second
	hbComponent  = "orchestrator"
)

// Orchestrator consumes the metrics event log through its own consumer group
// and turns qualifying snapshots into dispatched order plans. It is the
// single writer of the account state it holds.
type Orchestrator struct {
	metricsLog domain.EventLog
	gateway    domain.ExecutionGateway
	ledger     domain.TradeLedger
	hb         domain.HeartbeatStore
	ks         *risk.KillSwitch
	tel        *telemetry.Metrics
	logger     *slog.Logger

	stratCfg strategy.Config
	params   risk.Params
	account  domain.AccountState

	now func() time.Time
}

// New creates an Orchestrator. The account starts at the configured start
// equity; in live operation external fill accounting updates it, in backtest
// the simulator settles it.
func New(
	metricsLog domain.EventLog,
	gateway domain.ExecutionGateway,
	ledger domain.TradeLedger,
	hb domain.HeartbeatStore,
	ks *risk.KillSwitch,
	tel *telemetry.Metrics,
	stratCfg strategy.Config,
	params risk.Params,
	account domain.AccountState,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		metricsLog: metricsLog,
		gateway:    gateway,
		ledger:     ledger,
		hb:         hb,
		ks:         ks,
		tel:        tel,
		logger:     logger.With(slog.String("component", "orchestrator")),
		stratCfg:   stratCfg,
		params:     params,
		account:    account,
		now:        time.Now,
	}
}

// Run executes decision cycles until the context is cancelled. The in-flight
// batch is processed and acked before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "orchestrator starting",
		slog.Float64("start_equity", o.account.StartEquity),
		slog.Float64("risk_pct", o.params.RiskPct),
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := o.ProcessOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.ErrorContext(ctx, "decision cycle failed", slog.String("error", err.Error()))
		}
		if err := o.ks.Monitor(ctx, o.account); err != nil {
			o.logger.ErrorContext(ctx, "killswitch monitor failed", slog.String("error", err.Error()))
		}
	}
}

// ProcessOnce runs a single decision cycle. Halting is fail-safe: while the
// kill switch is engaged the cycle skips signal, risk, and dispatch entirely
// but still refreshes the heartbeat, so monitoring can tell "halted but
// alive" from "dead".
func (o *Orchestrator) ProcessOnce(ctx context.Context) error {
	start := o.now()
	defer func() {
		o.tel.OrchestratorLatencyMs.Set(float64(o.now().Sub(start)) / float64(time.Millisecond))
		if err := o.hb.Beat(ctx, hbComponent, heartbeatTTL); err != nil {
			o.logger.WarnContext(ctx, "heartbeat failed", slog.String("error", err.Error()))
		}
	}()

	halted, err := o.ks.IsHalted(ctx)
	if err != nil {
		return err
	}
	if halted {
		o.logger.WarnContext(ctx, "killswitch engaged, skipping cycle")
		return nil
	}

	entries, err := o.metricsLog.ReadGroup(ctx, readBatch, readBlock)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		o.processEntry(ctx, entry)
		// Ack only after the full cycle for the entry. A crash before this
		// point redelivers the entry; the idempotency key derived from the
		// entry ID keeps the gateway and ledger from double-applying it.
		if err := o.metricsLog.Ack(ctx, entry.ID); err != nil {
			o.logger.ErrorContext(ctx, "ack failed",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (o *Orchestrator) processEntry(ctx context.Context, entry domain.StreamEntry) {
	snap := metrics.ParseSnapshot(entry.Fields)
	if snap.Symbol == "" {
		return
	}

	sig := strategy.Generate(snap.Symbol, snap.Price, snap, o.stratCfg)
	if sig == nil {
		return
	}

	verdict := risk.VetAndSize(*sig, o.account, o.params)
	switch verdict.Outcome {
	case risk.Rejected:
		// Soft rejection: skip the opportunity, no alert.
		o.logger.DebugContext(ctx, "signal rejected",
			slog.String("symbol", sig.Symbol),
			slog.String("reason", verdict.Reason),
		)
	case risk.FatalHalt:
		// Hard stop: same severity class as a kill-switch trip, unified
		// behind the same shared flag so every instance stops dispatching.
		if err := o.ks.Trip(ctx, verdict.Reason); err != nil {
			o.logger.ErrorContext(ctx, "hard stop engage failed", slog.String("error", err.Error()))
		}
	case risk.Sized:
		o.dispatch(ctx, entry.ID, verdict.Plan)
	}
}

// dispatch is the only path that reaches the execution gateway. It re-checks
// the shared halt flag immediately before submitting so no code path can
// slip an order past a halt that engaged mid-batch.
func (o *Orchestrator) dispatch(ctx context.Context, entryID string, plan domain.OrderPlan) {
	halted, err := o.ks.IsHalted(ctx)
	if err != nil {
		o.logger.ErrorContext(ctx, "halt check failed, order not dispatched", slog.String("error", err.Error()))
		return
	}
	if halted {
		o.logger.WarnContext(ctx, "killswitch engaged, order not dispatched",
			slog.String("symbol", plan.Symbol),
		)
		return
	}

	idemKey := "plan:" + entryID
	if err := o.gateway.Submit(ctx, plan, idemKey); err != nil {
		o.logger.ErrorContext(ctx, "gateway submit failed",
			slog.String("symbol", plan.Symbol),
			slog.String("error", err.Error()),
		)
		return
	}
	o.tel.OrdersSent.Inc()

	trade := domain.PlannedTrade{
		TS:         o.now().UTC(),
		IdemKey:    idemKey,
		Symbol:     plan.Symbol,
		Side:       plan.Side,
		Qty:        plan.Qty,
		EntryPrice: plan.EntryPrice,
		SLPrice:    plan.SLPrice,
		TPPrice:    plan.TPPrice,
	}
	if err := o.ledger.Append(ctx, trade); err != nil {
		o.logger.ErrorContext(ctx, "ledger append failed",
			slog.String("symbol", plan.Symbol),
			slog.String("error", err.Error()),
		)
		return
	}

	o.logger.InfoContext(ctx, "order dispatched",
		slog.String("symbol", plan.Symbol),
		slog.String("side", string(plan.Side)),
		slog.Float64("qty", plan.Qty),
		slog.Float64("entry", plan.EntryPrice),
	)
}

// Account returns a copy of the current account state for monitoring.
func (o *Orchestrator) Account() domain.AccountState {
	return o.account
}

// SetAccount replaces the account state. Single-writer discipline: only the
// owner of the orchestrator's settlement path may call this.
func (o *Orchestrator) SetAccount(a domain.AccountState) {
	o.account = a
}
