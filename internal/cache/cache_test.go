package cache

import (
	"context"
	"testing"
	"time"
)

type cachedReport struct {
	Window string `json:"window"`
	Net    string `json:"net"`
}

func TestMemoryReportCacheRoundTripAndInvalidate(t *testing.T) {
	c := NewMemoryReportCache()
	ctx := context.Background()
	key := ProfitKey("2025-06", "flat")

	if err := c.Set(ctx, key, cachedReport{Window: "2025-06", Net: "700"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got cachedReport
	ok, err := c.Get(ctx, key, &got)
	if err != nil || !ok || got.Net != "700" {
		t.Fatalf("expected cached report, got %+v ok=%v err=%v", got, ok, err)
	}

	if err := c.Invalidate(ctx, key); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if ok, _ := c.Get(ctx, key, &got); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestMemoryReportCacheExpiresAndFlushes(t *testing.T) {
	c := NewMemoryReportCache()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, PayrollKey("2025-06-01"), cachedReport{Window: "2025-06-01"}, time.Second)
	_ = c.Set(ctx, ProfitKey("2025-06", "per_staff"), cachedReport{Window: "2025-06"}, 0)

	now = now.Add(2 * time.Second)
	var got cachedReport
	if ok, _ := c.Get(ctx, PayrollKey("2025-06-01"), &got); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if ok, _ := c.Get(ctx, ProfitKey("2025-06", "per_staff"), &got); !ok {
		t.Fatalf("expected entry without ttl to survive")
	}

	_ = c.Flush(ctx)
	if ok, _ := c.Get(ctx, ProfitKey("2025-06", "per_staff"), &got); ok {
		t.Fatalf("expected flush to drop reports")
	}
}

func TestMemoryReportCacheDropsWritesAfterInvalidation(t *testing.T) {
	c := NewMemoryReportCache()
	ctx := context.Background()
	key := PayrollKey("2025-06-01")

	before, err := c.Version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if err := c.Invalidate(ctx, key); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	stored, err := c.SetIfVersion(ctx, before, key, cachedReport{Window: "2025-06-01", Net: "stale"}, time.Minute)
	if err != nil || stored {
		t.Fatalf("expected write with an old version to be dropped, stored=%v err=%v", stored, err)
	}
	var got cachedReport
	if ok, _ := c.Get(ctx, key, &got); ok {
		t.Fatalf("expected no entry, got %+v", got)
	}

	current, _ := c.Version(ctx)
	if stored, err := c.SetIfVersion(ctx, current, key, cachedReport{Window: "2025-06-01", Net: "fresh"}, time.Minute); err != nil || !stored {
		t.Fatalf("expected current-version write to land, stored=%v err=%v", stored, err)
	}
	_ = c.Flush(ctx)
	if after, _ := c.Version(ctx); after == current {
		t.Fatalf("expected flush to move the version")
	}
}
