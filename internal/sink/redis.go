package sink

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/meigma/xferwatch/core"
)

// DefaultRedisPrefix namespaces every key written by the Redis sink.
const DefaultRedisPrefix = "xferwatch"

// Redis stores each summary as a hash under "<prefix>:transfer:<id>" and
// indexes ids by completion time in the sorted set "<prefix>:transfers".
type Redis struct {
	rdb    *redis.Client
	prefix string
}

var _ core.Sink = (*Redis)(nil)

// NewRedis creates a Redis sink. An empty prefix uses DefaultRedisPrefix.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection with PING. An
// empty prefix uses DefaultRedisPrefix.
func DialRedis(ctx context.Context, addr, password, prefix string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return NewRedis(rdb, prefix), nil
}

func (r *Redis) transferKey(id string) string {
	return fmt.Sprintf("%s:transfer:%s", r.prefix, id)
}

func (r *Redis) indexKey() string {
	return r.prefix + ":transfers"
}

// Record writes s and indexes it.
func (r *Redis) Record(ctx context.Context, s core.Summary) error {
	e := FromSummary(s)
	fields := map[string]any{
		"id":             e.ID,
		"key":            e.Key,
		"url":            e.URL,
		"method":         e.Method,
		"transport":      e.Transport,
		"elapsed_ms":     e.ElapsedMS,
		"declared_total": e.DeclaredTotal,
		"loaded":         e.Loaded,
		"reported":       e.Reported,
		"avg_speed":      e.AverageSpeed,
		"digest":         e.Digest,
		"no_body":        strconv.FormatBool(e.NoBody),
		"text":           e.Text,
		"completed_at":   e.CompletedAt,
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.transferKey(e.ID), fields)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{
			Score:  float64(s.CompletedAt.UnixMilli()),
			Member: e.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", s.Key, err)
	}
	return nil
}

// List returns every stored entry in completion order.
func (r *Redis) List(ctx context.Context) ([]Entry, error) {
	ids, err := r.rdb.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		data, err := r.rdb.HGetAll(ctx, r.transferKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("read transfer %s: %w", id, err)
		}
		if len(data) == 0 {
			continue
		}
		entries = append(entries, entryFromHash(data))
	}
	return entries, nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func entryFromHash(data map[string]string) Entry {
	parseInt := func(k string) int64 {
		v, _ := strconv.ParseInt(data[k], 10, 64)
		return v
	}
	parseFloat := func(k string) float64 {
		v, _ := strconv.ParseFloat(data[k], 64)
		return v
	}
	noBody, _ := strconv.ParseBool(data["no_body"])
	return Entry{
		ID:            data["id"],
		Key:           data["key"],
		URL:           data["url"],
		Method:        data["method"],
		Transport:     data["transport"],
		ElapsedMS:     parseInt("elapsed_ms"),
		DeclaredTotal: parseInt("declared_total"),
		Loaded:        parseInt("loaded"),
		Reported:      parseFloat("reported"),
		AverageSpeed:  parseFloat("avg_speed"),
		Digest:        data["digest"],
		NoBody:        noBody,
		Text:          data["text"],
		CompletedAt:   data["completed_at"],
	}
}
