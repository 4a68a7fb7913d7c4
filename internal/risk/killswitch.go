package risk

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/smartmoney-labs/smbot/internal/domain"
	"github.com/smartmoney-labs/smbot/internal/telemetry"
)

// maxLagMillis is the infrastructure lag beyond which trading is considered
// unsafe to continue.
const maxLagMillis = 500

// KillSwitch is the binary ACTIVE/HALTED safety state machine. The state
// itself lives in the shared halt flag so every orchestrator instance
// observes the same transition; this type adds the trip conditions, the
// once-per-transition alert, and the authenticated path back to ACTIVE.
type KillSwitch struct {
	flag    domain.HaltFlag
	lag     domain.LagProbe
	alerter domain.Alerter
	tel     *telemetry.Metrics
	logger  *slog.Logger

	dailyLossCap float64 // fraction of start equity
	maxDDPct     float64
	// passphraseHash is the bcrypt hash the unhalt passphrase must match.
	passphraseHash string
}

// NewKillSwitch creates a KillSwitch over the shared flag.
func NewKillSwitch(
	flag domain.HaltFlag,
	lag domain.LagProbe,
	alerter domain.Alerter,
	tel *telemetry.Metrics,
	dailyLossCap, maxDDPct float64,
	passphraseHash string,
	logger *slog.Logger,
) *KillSwitch {
	return &KillSwitch{
		flag:           flag,
		lag:            lag,
		alerter:        alerter,
		tel:            tel,
		logger:         logger.With(slog.String("component", "killswitch")),
		dailyLossCap:   dailyLossCap,
		maxDDPct:       maxDDPct,
		passphraseHash: passphraseHash,
	}
}

// Monitor runs the trip conditions once per decision cycle. It is a no-op
// while already halted; there is no automatic path back to ACTIVE.
func (k *KillSwitch) Monitor(ctx context.Context, account domain.AccountState) error {
	halted, _, err := k.flag.State(ctx)
	if err != nil {
		return fmt.Errorf("killswitch: read state: %w", err)
	}
	if halted {
		return nil
	}

	lag, err := k.lag.LagMillis(ctx)
	if err != nil {
		return fmt.Errorf("killswitch: read lag: %w", err)
	}
	if lag > maxLagMillis {
		return k.Trip(ctx, "infra_lag")
	}

	if account.DailyPnL <= -k.dailyLossCap*account.StartEquity {
		return k.Trip(ctx, "daily_loss_cap")
	}

	if account.DrawdownPct() >= k.maxDDPct {
		return k.Trip(ctx, "drawdown_limit")
	}

	return nil
}

// Trip engages the shared halt flag. The alert and log fire exactly once per
// ACTIVE -> HALTED transition: Engage reports whether this call performed it.
func (k *KillSwitch) Trip(ctx context.Context, reason string) error {
	transitioned, err := k.flag.Engage(ctx, reason)
	if err != nil {
		return fmt.Errorf("killswitch: engage: %w", err)
	}
	if !transitioned {
		return nil
	}

	k.tel.KillSwitchEngaged.Inc()
	k.logger.ErrorContext(ctx, "killswitch activated", slog.String("reason", reason))
	if k.alerter != nil {
		if err := k.alerter.Alert(ctx, "killswitch", "KILL-SWITCH ACTIVATED", "reason="+reason); err != nil {
			k.logger.WarnContext(ctx, "killswitch alert failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Unhalt clears the halt flag if the passphrase matches the configured
// bcrypt hash. This is the only path back to ACTIVE. A mismatch returns
// domain.ErrUnauthorized and leaves the flag untouched.
func (k *KillSwitch) Unhalt(ctx context.Context, passphrase string) error {
	if k.passphraseHash == "" {
		k.logger.WarnContext(ctx, "unhalt rejected: no passphrase configured")
		return domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(k.passphraseHash), []byte(passphrase)); err != nil {
		k.logger.WarnContext(ctx, "unhalt rejected: bad passphrase")
		return domain.ErrUnauthorized
	}
	if err := k.flag.Clear(ctx); err != nil {
		return fmt.Errorf("killswitch: clear: %w", err)
	}
	k.logger.InfoContext(ctx, "killswitch unhalted")
	return nil
}

// IsHalted is a side-effect-free read of the shared flag.
func (k *KillSwitch) IsHalted(ctx context.Context) (bool, error) {
	halted, _, err := k.flag.State(ctx)
	if err != nil {
		return false, fmt.Errorf("killswitch: read state: %w", err)
	}
	return halted, nil
}
