package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartmoney-labs/smbot/internal/domain"
)

// Stream and consumer-group names shared between the collector, the metric
// engine, and the orchestrator.
const (
	RawStream     = "market.raw"
	MetricsStream = "market.metrics"
	PaperFills    = "fills.paper"

	MetricsGroup      = "metricscg"
	OrchestratorGroup = "orchcg"
)

// streamMaxLen is the approximate retained length for event-log streams,
// enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 100_000

// StreamLog implements domain.EventLog over one Redis stream and, when a
// group is configured, one durable consumer group on it.
type StreamLog struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
}

// NewStreamLog creates a producer-only log handle for the given stream.
func NewStreamLog(c *Client, stream string) *StreamLog {
	return &StreamLog{rdb: c.Underlying(), stream: stream}
}

// NewGroupLog creates a log handle bound to a consumer group, creating the
// group (and the stream, via MKSTREAM) if it does not exist. A BUSYGROUP
// reply means the group already exists and is not an error.
func NewGroupLog(ctx context.Context, c *Client, stream, group, consumer string) (*StreamLog, error) {
	rdb := c.Underlying()
	if err := rdb.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil {
		if !isBusyGroup(err) {
			return nil, fmt.Errorf("redis: create group %s on %s: %w", group, stream, err)
		}
	}
	return &StreamLog{rdb: rdb, stream: stream, group: group, consumer: consumer}, nil
}

func isBusyGroup(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && len(rerr.Error()) >= 9 && rerr.Error()[:9] == "BUSYGROUP"
}

// Append adds one entry to the stream with approximate MAXLEN trimming.
func (l *StreamLog) Append(ctx context.Context, fields map[string]any) error {
	args := &redis.XAddArgs{
		Stream: l.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: fields,
	}
	if err := l.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: append %s: %w", l.stream, err)
	}
	return nil
}

// ReadGroup reads up to count new entries for the configured consumer group,
// blocking up to block when the stream has no new entries. The empty-slice,
// nil-error return means the block timeout elapsed.
func (l *StreamLog) ReadGroup(ctx context.Context, count int64, block time.Duration) ([]domain.StreamEntry, error) {
	if l.group == "" {
		return nil, fmt.Errorf("redis: read %s: no consumer group configured", l.stream)
	}

	res, err := l.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    l.group,
		Consumer: l.consumer,
		Streams:  []string{l.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: read group %s on %s: %w", l.group, l.stream, err)
	}

	var entries []domain.StreamEntry
	for _, s := range res {
		for _, msg := range s.Messages {
			fields := make(map[string]string, len(msg.Values))
			for k, v := range msg.Values {
				switch val := v.(type) {
				case string:
					fields[k] = val
				case []byte:
					fields[k] = string(val)
				default:
					fields[k] = fmt.Sprint(val)
				}
			}
			entries = append(entries, domain.StreamEntry{ID: msg.ID, Fields: fields})
		}
	}
	return entries, nil
}

// Ack acknowledges processed entries for the configured consumer group.
func (l *StreamLog) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := l.rdb.XAck(ctx, l.stream, l.group, ids...).Err(); err != nil {
		return fmt.Errorf("redis: ack %s on %s: %w", l.stream, l.group, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventLog = (*StreamLog)(nil)
