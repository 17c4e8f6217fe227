package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// ReportCache stores computed reports as JSON under deterministic keys.
type ReportCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Version changes on every Invalidate and Flush. A report built from
	// data read after Version returned v is stored with SetIfVersion(v) and
	// is dropped when an invalidation landed in between.
	Version(ctx context.Context) (int64, error)
	SetIfVersion(ctx context.Context, version int64, key string, value any, ttl time.Duration) (bool, error)
	Invalidate(ctx context.Context, keys ...string) error
	// Flush drops every cached report.
	Flush(ctx context.Context) error
}

const keyPrefix = "report:"

func ProfitKey(window string, model string) string {
	return keyPrefix + "profit:" + window + ":" + model
}

func PayrollKey(day string) string {
	return keyPrefix + "payroll:" + day
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Version(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopReportCache) SetIfVersion(_ context.Context, _ int64, _ string, _ any, _ time.Duration) (bool, error) {
	return false, nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}

func (NoopReportCache) Flush(_ context.Context) error {
	return nil
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryReportCache is the single-process cache used when Redis is not
// configured.
type MemoryReportCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	version int64
	now     func() time.Time
}

func NewMemoryReportCache() *MemoryReportCache {
	return &MemoryReportCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryReportCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryReportCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	entry, err := c.entry(value, ttl)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryReportCache) Version(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version, nil
}

func (c *MemoryReportCache) SetIfVersion(_ context.Context, version int64, key string, value any, ttl time.Duration) (bool, error) {
	entry, err := c.entry(value, ttl)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version != version {
		return false, nil
	}
	c.entries[key] = entry
	return true, nil
}

func (c *MemoryReportCache) entry(value any, ttl time.Duration) (memoryEntry, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return memoryEntry{}, err
	}
	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	return entry, nil
}

func (c *MemoryReportCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *MemoryReportCache) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	for key := range c.entries {
		if strings.HasPrefix(key, keyPrefix) {
			delete(c.entries, key)
		}
	}
	return nil
}
