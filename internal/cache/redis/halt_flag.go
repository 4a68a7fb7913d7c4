package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartmoney-labs/smbot/internal/domain"
)

const (
	haltKey       = "killswitch:on"
	haltReasonKey = "killswitch:reason"
	lagKey        = "infra:lag_ms"
)

// clearLua deletes the halt flag and its reason only while the flag is set,
// so a clear racing a fresh engage cannot wipe the new reason.
const clearLua = `
if redis.call('GET', KEYS[1]) == '1' then
    redis.call('DEL', KEYS[1])
    redis.call('DEL', KEYS[2])
    return 1
end
return 0
`

// HaltFlag implements domain.HaltFlag on a single shared Redis key. Engage
// uses SETNX so exactly one caller observes the ACTIVE -> HALTED transition
// even with multiple orchestrator instances running.
type HaltFlag struct {
	rdb     *redis.Client
	clearSc *redis.Script
}

// NewHaltFlag creates a HaltFlag backed by the given Client.
func NewHaltFlag(c *Client) *HaltFlag {
	return &HaltFlag{
		rdb:     c.Underlying(),
		clearSc: redis.NewScript(clearLua),
	}
}

// Engage atomically sets the halt flag. It returns true only when this call
// performed the transition; concurrent callers see false and must not alert
// again. The reason is recorded alongside the flag, best-effort.
func (h *HaltFlag) Engage(ctx context.Context, reason string) (bool, error) {
	set, err := h.rdb.SetNX(ctx, haltKey, "1", 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis: engage halt: %w", err)
	}
	if set {
		if err := h.rdb.Set(ctx, haltReasonKey, reason, 0).Err(); err != nil {
			return true, fmt.Errorf("redis: record halt reason: %w", err)
		}
	}
	return set, nil
}

// Clear removes the halt flag via the compare-and-delete script. Clearing an
// already-clear flag is a no-op.
func (h *HaltFlag) Clear(ctx context.Context) error {
	if err := h.clearSc.Run(ctx, h.rdb, []string{haltKey, haltReasonKey}).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis: clear halt: %w", err)
	}
	return nil
}

// State reports whether the flag is set and the recorded reason. A missing
// key reads as not halted.
func (h *HaltFlag) State(ctx context.Context) (bool, string, error) {
	val, err := h.rdb.Get(ctx, haltKey).Result()
	if err == redis.Nil {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("redis: read halt flag: %w", err)
	}
	if val != "1" {
		return false, "", nil
	}
	reason, err := h.rdb.Get(ctx, haltReasonKey).Result()
	if err != nil && err != redis.Nil {
		return true, "", fmt.Errorf("redis: read halt reason: %w", err)
	}
	return true, reason, nil
}

// Heartbeats implements domain.HeartbeatStore using short-expiry keys of the
// form <component>:hb holding a millisecond timestamp.
type Heartbeats struct {
	rdb *redis.Client
}

// NewHeartbeats creates a Heartbeats store backed by the given Client.
func NewHeartbeats(c *Client) *Heartbeats {
	return &Heartbeats{rdb: c.Underlying()}
}

// Beat refreshes the component's liveness key.
func (h *Heartbeats) Beat(ctx context.Context, component string, ttl time.Duration) error {
	key := component + ":hb"
	now := time.Now().UnixMilli()
	if err := h.rdb.Set(ctx, key, now, ttl).Err(); err != nil {
		return fmt.Errorf("redis: heartbeat %s: %w", key, err)
	}
	return nil
}

// LagProbe implements domain.LagProbe by reading the lag measurement that
// external monitoring publishes under infra:lag_ms. A missing key reads as
// zero lag.
type LagProbe struct {
	rdb *redis.Client
}

// NewLagProbe creates a LagProbe backed by the given Client.
func NewLagProbe(c *Client) *LagProbe {
	return &LagProbe{rdb: c.Underlying()}
}

// LagMillis returns the most recent lag reading in milliseconds.
func (p *LagProbe) LagMillis(ctx context.Context) (int64, error) {
	val, err := p.rdb.Get(ctx, lagKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: read lag: %w", err)
	}
	lag, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse lag %q: %w", val, err)
	}
	return lag, nil
}

// Compile-time interface checks.
var (
	_ domain.HaltFlag       = (*HaltFlag)(nil)
	_ domain.HeartbeatStore = (*Heartbeats)(nil)
	_ domain.LagProbe       = (*LagProbe)(nil)
)
