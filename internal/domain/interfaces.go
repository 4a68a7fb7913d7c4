package domain

import (
	"context"
	"time"
)

// EventLog is a durable, append-only, bounded log with consumer-group
// semantics: at-least-once delivery, explicit acknowledgement, replay of
// unacked entries after a crash. Implemented on Redis Streams.
type EventLog interface {
	// Append adds one entry built from the given field map, trimming the log
	// approximately to its configured maximum length.
	Append(ctx context.Context, fields map[string]any) error
	// ReadGroup reads up to count new entries for this log's consumer group,
	// blocking up to block when the log is empty. An empty result with a nil
	// error means the block timeout elapsed.
	ReadGroup(ctx context.Context, count int64, block time.Duration) ([]StreamEntry, error)
	// Ack acknowledges processed entries. Unacked entries are redelivered.
	Ack(ctx context.Context, ids ...string) error
}

// HaltFlag is the shared kill-switch state visible to every orchestrator
// instance. Engage and Clear must be atomic on the shared store; client-side
// locking is not an acceptable substitute.
type HaltFlag interface {
	// Engage sets the flag with a reason. It returns true only when this call
	// performed the ACTIVE -> HALTED transition, so callers can alert exactly
	// once.
	Engage(ctx context.Context, reason string) (bool, error)
	// Clear removes the flag. Only the authenticated unhalt path may call it.
	Clear(ctx context.Context) error
	// State reports whether the flag is set and the recorded reason.
	State(ctx context.Context) (halted bool, reason string, err error)
}

// HeartbeatStore records component liveness under short-expiry keys so
// external monitoring can tell "halted but alive" from "dead".
type HeartbeatStore interface {
	Beat(ctx context.Context, component string, ttl time.Duration) error
}

// LagProbe reports the observed infrastructure lag in milliseconds. The
// value is produced by external monitoring; a missing reading is zero.
type LagProbe interface {
	LagMillis(ctx context.Context) (int64, error)
}

// ExecutionGateway submits risk-approved plans to the venue. Contract:
// submissions carrying the same idempotency key must be applied at most
// once, because the at-least-once metrics consumer can redeliver the entry
// that produced the plan.
type ExecutionGateway interface {
	Submit(ctx context.Context, plan OrderPlan, idemKey string) error
}

// TradeLedger is the append-only record of planned trades. Rows are never
// updated or deleted; range reads serve reporting and backtest comparison.
type TradeLedger interface {
	Append(ctx context.Context, trade PlannedTrade) error
	ListRange(ctx context.Context, from, to time.Time) ([]PlannedTrade, error)
}

// Alerter delivers operator alerts for safety-relevant transitions.
type Alerter interface {
	Alert(ctx context.Context, event, title, message string) error
}
