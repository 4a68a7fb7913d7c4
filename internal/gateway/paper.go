// Package gateway implements the execution-gateway boundary. Only the paper
// gateway lives in this repository; live venue connectivity is an external
// collaborator behind the same domain.ExecutionGateway contract.
package gateway

import (
	"context"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/smartmoney-labs/smbot/internal/domain"
)

const submitAttempts = 3

// Paper simulates order submission by appending fill records to a paper
// fills log. It honors the idempotent-submit contract: the caller's
// idempotency key is recorded on every fill so downstream accounting can
// collapse redelivered submissions.
type Paper struct {
	fills  domain.EventLog
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPaper creates a paper gateway writing to the given fills log.
func NewPaper(fills domain.EventLog, logger *slog.Logger) *Paper {
	return &Paper{
		fills:  fills,
		logger: logger.With(slog.String("component", "paper_gateway")),
		sleep:  sleepCtx,
	}
}

// Submit appends the plan to the paper fills log, retrying transient append
// failures a bounded number of times with jittered backoff.
func (p *Paper) Submit(ctx context.Context, plan domain.OrderPlan, idemKey string) error {
	fields := map[string]any{
		"idem_key":        idemKey,
		"client_order_id": uuid.New().String(),
		"symbol":          plan.Symbol,
		"side":            string(plan.Side),
		"qty":             strconv.FormatFloat(plan.Qty, 'g', -1, 64),
		"entry_price":     strconv.FormatFloat(plan.EntryPrice, 'g', -1, 64),
		"sl_price":        strconv.FormatFloat(plan.SLPrice, 'g', -1, 64),
		"tp_price":        strconv.FormatFloat(plan.TPPrice, 'g', -1, 64),
	}

	var lastErr error
	for attempt := 1; attempt <= submitAttempts; attempt++ {
		if err := p.fills.Append(ctx, fields); err != nil {
			lastErr = err
			if attempt == submitAttempts {
				break
			}
			// 0.5s-1.5s jitter, same window the retried venue client uses.
			backoff := 500*time.Millisecond + time.Duration(rand.Int63n(int64(time.Second)))
			if serr := p.sleep(ctx, backoff); serr != nil {
				return serr
			}
			continue
		}
		return nil
	}

	p.logger.ErrorContext(ctx, "paper submit failed",
		slog.String("symbol", plan.Symbol),
		slog.String("error", lastErr.Error()),
	)
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Compile-time interface check.
var _ domain.ExecutionGateway = (*Paper)(nil)
