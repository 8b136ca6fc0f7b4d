package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisStream = "instance-action-log"

// RedisConfig configures a RedisShipper.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Stream is the stream key entries are appended to.
	Stream string
	// MaxLen caps the stream with approximate trimming (0 keeps everything).
	MaxLen int64
}

// RedisShipper appends each entry to a Redis stream with XADD so downstream
// consumers can read it with consumer groups.
type RedisShipper struct {
	client *goredis.Client
	stream string
	maxLen int64
}

// NewRedisShipper connects lazily; the first Ship surfaces connectivity errors.
func NewRedisShipper(cfg *RedisConfig) (*RedisShipper, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisShipper(client, cfg), nil
}

func newRedisShipper(client *goredis.Client, cfg *RedisConfig) *RedisShipper {
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = defaultRedisStream
	}
	return &RedisShipper{client: client, stream: stream, maxLen: cfg.MaxLen}
}

func (rs *RedisShipper) Name() string { return "redis" }

// Ship XADDs the entry fields to the stream.
func (rs *RedisShipper) Ship(ctx context.Context, entry *LogEntry) error {
	args := &goredis.XAddArgs{
		Stream: rs.stream,
		Values: streamValues(entry),
	}
	if rs.maxLen > 0 {
		args.MaxLen = rs.maxLen
		args.Approx = true
	}
	if err := rs.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append to redis stream %s: %w", rs.stream, err)
	}
	return nil
}

// streamValues flattens an entry into stream field/value pairs.
func streamValues(entry *LogEntry) map[string]any {
	return map[string]any{
		"id":                entry.ID,
		"timestamp":         entry.Timestamp.UTC().Format(time.RFC3339Nano),
		"target_id":         entry.TargetID,
		"action":            entry.Action,
		"requesting_origin": entry.RequestingOrigin,
		"result_status":     strconv.Itoa(entry.ResultStatus),
		"tenant_id":         entry.TenantID,
		"actor_id":          entry.ActorID,
		"detail":            entry.Detail,
	}
}

func (rs *RedisShipper) Close() error { return rs.client.Close() }
