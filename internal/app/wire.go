package app

import (
	"context"
	"fmt"
	"log/slog"

	cacheredis "github.com/smartmoney-labs/smbot/internal/cache/redis"
	"github.com/smartmoney-labs/smbot/internal/config"
	"github.com/smartmoney-labs/smbot/internal/domain"
	"github.com/smartmoney-labs/smbot/internal/gateway"
	"github.com/smartmoney-labs/smbot/internal/notify"
	"github.com/smartmoney-labs/smbot/internal/risk"
	"github.com/smartmoney-labs/smbot/internal/store/postgres"
	"github.com/smartmoney-labs/smbot/internal/telemetry"
)

// Dependencies holds every wired collaborator the run modes draw from.
// Fields that a mode does not need stay nil; Wire only connects what the
// configured mode requires.
type Dependencies struct {
	Redis      *cacheredis.Client
	Heartbeats domain.HeartbeatStore
	HaltFlag   domain.HaltFlag
	KillSwitch *risk.KillSwitch
	Notifier   *notify.Notifier
	Telemetry  *telemetry.Prometheus

	// Engine side.
	RawLog     domain.EventLog
	MetricsOut domain.EventLog

	// Orchestrator side.
	MetricsIn domain.EventLog
	Gateway   domain.ExecutionGateway
	Ledger    domain.TradeLedger
	Postgres  *postgres.Client
}

// Wire builds all shared dependencies for the configured mode and returns a
// cleanup function that closes them.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	rc, err := cacheredis.New(ctx, cacheredis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() { _ = rc.Close() })

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	prom := telemetry.NewPrometheus()
	haltFlag := cacheredis.NewHaltFlag(rc)

	ks := risk.NewKillSwitch(
		haltFlag,
		cacheredis.NewLagProbe(rc),
		notifier,
		prom.Metrics,
		cfg.Risk.DailyLossCap,
		cfg.Risk.MaxDDPct,
		cfg.Risk.UnhaltPassphraseHash,
		logger,
	)

	deps := &Dependencies{
		Redis:      rc,
		Heartbeats: cacheredis.NewHeartbeats(rc),
		HaltFlag:   haltFlag,
		KillSwitch: ks,
		Notifier:   notifier,
		Telemetry:  prom,
	}

	mode := cfg.Mode
	needEngine := mode == "engine" || mode == "all"
	needOrch := mode == "orchestrator" || mode == "all"

	if needEngine {
		rawLog, err := cacheredis.NewGroupLog(ctx, rc, cacheredis.RawStream, cacheredis.MetricsGroup, "worker")
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.RawLog = rawLog
		deps.MetricsOut = cacheredis.NewStreamLog(rc, cacheredis.MetricsStream)
	}

	if needOrch {
		metricsIn, err := cacheredis.NewGroupLog(ctx, rc, cacheredis.MetricsStream, cacheredis.OrchestratorGroup, "bot")
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.MetricsIn = metricsIn
		deps.Gateway = gateway.NewPaper(cacheredis.NewStreamLog(rc, cacheredis.PaperFills), logger)

		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: connect postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Postgres = pg
		deps.Ledger = postgres.NewPlannedTradeStore(pg.Pool())
	}

	return deps, cleanup, nil
}
