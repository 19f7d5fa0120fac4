package intentlog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestLog(t *testing.T) (*RedisLog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	log, err := NewRedisLog(RedisConfig{Addr: mr.Addr(), TTL: time.Hour})
	if err != nil {
		t.Fatalf("new redis log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log, mr
}

func TestBeginCompleteLifecycle(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	if err := log.Begin(ctx, OpCheckout, "b-1", "p-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	records, err := log.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("want one pending record, got %d", len(records))
	}
	rec := records[0]
	if rec.Op != OpCheckout || rec.BookID != "b-1" || rec.PatronID != "p-1" || rec.Status != StatusPending {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("created_at must round-trip")
	}

	if err := log.Complete(ctx, OpCheckout, "b-1", "p-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	records, err = log.Pending(ctx)
	if err != nil {
		t.Fatalf("pending after complete: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("completed intent must be cleared, got %+v", records)
	}
}

func TestPendingIntentsExpire(t *testing.T) {
	log, mr := newTestLog(t)
	ctx := context.Background()

	if err := log.Begin(ctx, OpReturn, "b-1", "p-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	records, err := log.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("pending intent should age out with its TTL, got %+v", records)
	}
}

func TestDivergentIntentsOutliveTTL(t *testing.T) {
	log, mr := newTestLog(t)
	ctx := context.Background()

	if err := log.Begin(ctx, OpCheckout, "b-1", "p-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := log.MarkDivergent(ctx, OpCheckout, "b-1", "p-1", "patron store unreachable"); err != nil {
		t.Fatalf("mark divergent: %v", err)
	}
	mr.FastForward(48 * time.Hour)

	records, err := log.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("divergent intent must persist, got %d records", len(records))
	}
	rec := records[0]
	if rec.Status != StatusDivergent || rec.Cause != "patron store unreachable" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestIntentKeysAreScopedPerOperation(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	if err := log.Begin(ctx, OpCheckout, "b-1", "p-1"); err != nil {
		t.Fatalf("begin checkout: %v", err)
	}
	if err := log.Begin(ctx, OpReturn, "b-1", "p-1"); err != nil {
		t.Fatalf("begin return: %v", err)
	}
	if err := log.Complete(ctx, OpCheckout, "b-1", "p-1"); err != nil {
		t.Fatalf("complete checkout: %v", err)
	}

	records, err := log.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(records) != 1 || records[0].Op != OpReturn {
		t.Fatalf("return intent must survive checkout completion: %+v", records)
	}
}
