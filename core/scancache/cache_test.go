package scancache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davidahmann/hoststate/core/docvalue"
	"github.com/davidahmann/hoststate/core/statedoc"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newTestCache(ttl time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	cache := New(map[statedoc.Category]time.Duration{
		statedoc.CategorySystem: ttl,
	}, WithClock(clock.Now))
	return cache, clock
}

func countingScan(calls *int, payload docvalue.Value) ScanFunc {
	return func(context.Context) (docvalue.Value, error) {
		*calls++
		return payload, nil
	}
}

func TestGetOrScanReusesWithinTTL(t *testing.T) {
	cache, clock := newTestCache(30 * time.Second)
	calls := 0
	scan := countingScan(&calls, docvalue.Map(map[string]docvalue.Value{"hostname": docvalue.String("pi")}))

	for i := 0; i < 3; i++ {
		payload, _, err := cache.GetOrScan(context.Background(), statedoc.CategorySystem, scan)
		if err != nil {
			t.Fatalf("get or scan %d: %v", i, err)
		}
		hostname, _ := payload.MapEntry("hostname")
		if got, _ := hostname.AsString(); got != "pi" {
			t.Fatalf("unexpected payload: %q", got)
		}
		clock.Advance(5 * time.Second)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one scan within TTL, got %d", calls)
	}

	clock.Advance(30 * time.Second)
	if _, _, err := cache.GetOrScan(context.Background(), statedoc.CategorySystem, scan); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected second scan after expiry, got %d", calls)
	}
}

func TestScanErrorPropagatesAndDropsEntry(t *testing.T) {
	cache, clock := newTestCache(30 * time.Second)
	calls := 0
	good := countingScan(&calls, docvalue.EmptyMap())
	if _, _, err := cache.GetOrScan(context.Background(), statedoc.CategorySystem, good); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	clock.Advance(time.Minute)

	scanErr := errors.New("observer unreachable")
	_, _, err := cache.GetOrScan(context.Background(), statedoc.CategorySystem, func(context.Context) (docvalue.Value, error) {
		return docvalue.Value{}, scanErr
	})
	if !errors.Is(err, scanErr) {
		t.Fatalf("expected scan error to propagate, got %v", err)
	}
	if cache.Fresh(statedoc.CategorySystem) {
		t.Fatal("stale entry must not survive a failed re-scan")
	}
}

func TestUnknownCategoryAlwaysScans(t *testing.T) {
	cache, _ := newTestCache(30 * time.Second)
	calls := 0
	scan := countingScan(&calls, docvalue.EmptyMap())
	for i := 0; i < 2; i++ {
		if _, _, err := cache.GetOrScan(context.Background(), statedoc.CategoryHardware, scan); err != nil {
			t.Fatalf("get or scan: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected a scan per call without a TTL, got %d", calls)
	}
}

func TestPeekOnlyReturnsFreshEntries(t *testing.T) {
	cache, clock := newTestCache(30 * time.Second)
	calls := 0
	if _, _, err := cache.GetOrScan(context.Background(), statedoc.CategorySystem, countingScan(&calls, docvalue.EmptyMap())); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, capturedAt, ok := cache.Peek(statedoc.CategorySystem); !ok || capturedAt.IsZero() {
		t.Fatal("expected fresh entry")
	}
	clock.Advance(time.Minute)
	if _, _, ok := cache.Peek(statedoc.CategorySystem); ok {
		t.Fatal("expired entry must not be peekable")
	}
}

func TestCancelledContextSkipsScan(t *testing.T) {
	cache, _ := newTestCache(30 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, _, err := cache.GetOrScan(ctx, statedoc.CategorySystem, countingScan(&calls, docvalue.EmptyMap()))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if calls != 0 {
		t.Fatal("scan must not run after cancellation")
	}
}

func TestInvalidateAndStats(t *testing.T) {
	cache, _ := newTestCache(30 * time.Second)
	calls := 0
	scan := countingScan(&calls, docvalue.EmptyMap())
	if _, _, err := cache.GetOrScan(context.Background(), statedoc.CategorySystem, scan); err != nil {
		t.Fatalf("get or scan: %v", err)
	}
	if _, _, err := cache.GetOrScan(context.Background(), statedoc.CategorySystem, scan); err != nil {
		t.Fatalf("get or scan: %v", err)
	}
	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	cache.Invalidate(statedoc.CategorySystem)
	if cache.Fresh(statedoc.CategorySystem) {
		t.Fatal("invalidated entry still fresh")
	}

	cache.Clear()
	stats = cache.Stats()
	if stats.Hits != 0 || stats.Misses != 0 || stats.Entries != 0 {
		t.Fatalf("expected reset stats, got %+v", stats)
	}
}
