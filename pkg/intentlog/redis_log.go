package intentlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLog stores intents as redis hashes keyed by (op, book, patron).
// Pending intents carry a TTL so abandoned records from crashed workers age
// out once reconciled; divergent intents are persisted until an operator
// clears them.
type RedisLog struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig configures a RedisLog.
type RedisConfig struct {
	Addr     string
	Password string
	Prefix   string
	TTL      time.Duration
}

// NewRedisLog connects a redis-backed intent log.
func NewRedisLog(cfg RedisConfig) (*RedisLog, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "lending:intent:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisLog{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// Close releases the redis client.
func (l *RedisLog) Close() error {
	return l.client.Close()
}

func (l *RedisLog) key(op Op, bookID, patronID string) string {
	return l.prefix + string(op) + ":" + bookID + ":" + patronID
}

func (l *RedisLog) Begin(ctx context.Context, op Op, bookID, patronID string) error {
	key := l.key(op, bookID, patronID)
	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"op":         string(op),
		"book_id":    bookID,
		"patron_id":  patronID,
		"status":     StatusPending,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record intent: %w", err)
	}
	return nil
}

func (l *RedisLog) Complete(ctx context.Context, op Op, bookID, patronID string) error {
	if err := l.client.Del(ctx, l.key(op, bookID, patronID)).Err(); err != nil {
		return fmt.Errorf("clear intent: %w", err)
	}
	return nil
}

func (l *RedisLog) MarkDivergent(ctx context.Context, op Op, bookID, patronID, cause string) error {
	key := l.key(op, bookID, patronID)
	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"op":        string(op),
		"book_id":   bookID,
		"patron_id": patronID,
		"status":    StatusDivergent,
		"cause":     cause,
	})
	pipe.Persist(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark intent divergent: %w", err)
	}
	return nil
}

func (l *RedisLog) Pending(ctx context.Context) ([]Record, error) {
	records := []Record{}
	iter := l.client.Scan(ctx, 0, l.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		fields, err := l.client.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("read intent %s: %w", iter.Val(), err)
		}
		if len(fields) == 0 {
			// expired between scan and read
			continue
		}
		rec := Record{
			Op:       Op(fields["op"]),
			BookID:   fields["book_id"],
			PatronID: fields["patron_id"],
			Status:   fields["status"],
			Cause:    fields["cause"],
		}
		if ts, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
			rec.CreatedAt = ts
		}
		records = append(records, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan intents: %w", err)
	}
	return records, nil
}
