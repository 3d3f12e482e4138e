package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return &Client{rdb: rdb, logger: zap.NewNop()}, mr
}

func TestIdempotency_NewKeyReserves(t *testing.T) {
	client, mr := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())

	result, err := svc.CheckOrReserve(context.Background(), "accept", "user-1", "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result for new request, got: %+v", result)
	}

	val, _ := mr.Get("idempotency:accept:user-1:key-1")
	if val != processingMarker {
		t.Fatalf("expected processing marker, got %q", val)
	}
}

func TestIdempotency_InFlight(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "accept", "user-1", "key-1"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	if _, err := svc.CheckOrReserve(ctx, "accept", "user-1", "key-1"); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got: %v", err)
	}
}

func TestIdempotency_StoreThenReplay(t *testing.T) {
	client, mr := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "accept", "user-1", "key-1"); err != nil {
		t.Fatal(err)
	}

	stored := &IdempotencyResult{ResourceID: "acc-1", StatusCode: 201, Body: []byte(`{"id":"acc-1"}`)}
	if err := svc.Store(ctx, "accept", "user-1", "key-1", stored); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	got, err := svc.CheckOrReserve(ctx, "accept", "user-1", "key-1")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if got == nil || got.ResourceID != "acc-1" || got.StatusCode != 201 || string(got.Body) != `{"id":"acc-1"}` {
		t.Fatalf("unexpected replay: %+v", got)
	}

	if ttl := mr.TTL("idempotency:accept:user-1:key-1"); ttl != IdempotencyTTL {
		t.Errorf("ttl = %s", ttl)
	}
}

func TestIdempotency_KeysScopedPerActor(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "accept", "user-1", "shared"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CheckOrReserve(ctx, "accept", "user-2", "shared"); err != nil {
		t.Fatalf("different actor should not collide: %v", err)
	}
}

func TestIdempotency_ReleaseKeepsResults(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	_, _ = svc.CheckOrReserve(ctx, "accept", "user-1", "k")
	if err := svc.Release(ctx, "accept", "user-1", "k"); err != nil {
		t.Fatal(err)
	}
	if res, err := svc.CheckOrReserve(ctx, "accept", "user-1", "k"); err != nil || res != nil {
		t.Fatalf("released key should reserve again, got %+v %v", res, err)
	}

	_ = svc.Store(ctx, "accept", "user-1", "k", &IdempotencyResult{ResourceID: "x", StatusCode: 201})
	if err := svc.Release(ctx, "accept", "user-1", "k"); err != nil {
		t.Fatal(err)
	}
	if res, _ := svc.Check(ctx, "accept", "user-1", "k"); res == nil {
		t.Fatal("release must not remove a stored result")
	}
}

func TestIdempotency_CorruptValue(t *testing.T) {
	client, mr := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())

	_ = mr.Set("idempotency:accept:user-1:bad", "{not json")
	if _, err := svc.Check(context.Background(), "accept", "user-1", "bad"); err == nil {
		t.Fatal("expected error for corrupt cached value")
	}
}
