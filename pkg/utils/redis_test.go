package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestConcurrencyCap_AcquireRelease(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()

	ok, err := AcquireConcurrencyCap(ctx, rdb, "cap:a", "h1", 2, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = AcquireConcurrencyCap(ctx, rdb, "cap:a", "h2", 2, time.Minute)
	if err != nil || !ok {
		t.Fatalf("second acquire: ok=%v err=%v", ok, err)
	}

	ok, err = AcquireConcurrencyCap(ctx, rdb, "cap:a", "h3", 2, time.Minute)
	if err != nil {
		t.Fatalf("third acquire err: %v", err)
	}
	if ok {
		t.Fatalf("expected third acquire to be rejected at limit 2")
	}

	released, err := ReleaseConcurrencyCap(ctx, rdb, "cap:a", "h1")
	if err != nil || !released {
		t.Fatalf("release: released=%v err=%v", released, err)
	}
	ok, err = AcquireConcurrencyCap(ctx, rdb, "cap:a", "h3", 2, time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestConcurrencyCap_ReleaseIsOncePerHolder(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()

	for _, h := range []string{"h1", "h2"} {
		ok, err := AcquireConcurrencyCap(ctx, rdb, "cap:a", h, 2, time.Minute)
		if err != nil || !ok {
			t.Fatalf("acquire %s: ok=%v err=%v", h, ok, err)
		}
	}

	released, err := ReleaseConcurrencyCap(ctx, rdb, "cap:a", "h1")
	if err != nil || !released {
		t.Fatalf("first release: released=%v err=%v", released, err)
	}

	// A second release for the same holder must not free h2's slot.
	released, err = ReleaseConcurrencyCap(ctx, rdb, "cap:a", "h1")
	if err != nil {
		t.Fatalf("repeat release err: %v", err)
	}
	if released {
		t.Fatalf("repeat release freed a slot it did not hold")
	}

	ok, err := AcquireConcurrencyCap(ctx, rdb, "cap:a", "h3", 2, time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire h3: ok=%v err=%v", ok, err)
	}
	ok, err = AcquireConcurrencyCap(ctx, rdb, "cap:a", "h4", 2, time.Minute)
	if err != nil {
		t.Fatalf("acquire h4 err: %v", err)
	}
	if ok {
		t.Fatalf("cap exceeded after repeated release for one holder")
	}
}

func TestConcurrencyCap_ReleaseWithoutAcquireIsNoop(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()

	ok, err := AcquireConcurrencyCap(ctx, rdb, "cap:a", "h1", 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	released, err := ReleaseConcurrencyCap(ctx, rdb, "cap:a", "stranger")
	if err != nil {
		t.Fatalf("release err: %v", err)
	}
	if released {
		t.Fatalf("release freed a slot for a holder that never acquired")
	}

	ok, err = AcquireConcurrencyCap(ctx, rdb, "cap:a", "h2", 1, time.Minute)
	if err != nil {
		t.Fatalf("acquire h2 err: %v", err)
	}
	if ok {
		t.Fatalf("expected cap to still be full")
	}
}

func TestConcurrencyCap_KeysAreIndependent(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()

	ok, err := AcquireConcurrencyCap(ctx, rdb, "cap:a", "h1", 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire a: ok=%v err=%v", ok, err)
	}
	ok, err = AcquireConcurrencyCap(ctx, rdb, "cap:b", "h1", 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire b: ok=%v err=%v", ok, err)
	}
}

func TestConcurrencyCap_InputValidation(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()

	if _, err := AcquireConcurrencyCap(ctx, rdb, "", "h", 1, time.Minute); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := AcquireConcurrencyCap(ctx, rdb, "k", "", 1, time.Minute); err == nil {
		t.Fatalf("expected error for empty holder")
	}
	if _, err := AcquireConcurrencyCap(ctx, rdb, "k", "h", 0, time.Minute); err == nil {
		t.Fatalf("expected error for non-positive limit")
	}
	if _, err := AcquireConcurrencyCap(ctx, rdb, "k", "h", 1, 0); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
	if _, err := ReleaseConcurrencyCap(ctx, nil, "k", "h"); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := ReleaseConcurrencyCap(ctx, rdb, "k", ""); err == nil {
		t.Fatalf("expected error for empty holder")
	}
}
