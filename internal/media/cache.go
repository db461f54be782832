package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultCacheTTL = 10 * time.Minute

type cacheEntry struct {
	info    *Info
	modTime time.Time
	size    int64
}

// CachedProber wraps a Prober and remembers results per file. An entry is
// reused while the file's size and modification time are unchanged and the
// entry is younger than the TTL.
type CachedProber struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCachedProber(prober Prober, logger *slog.Logger) *CachedProber {
	return &CachedProber{
		prober:  prober,
		ttl:     defaultCacheTTL,
		logger:  logger,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachedProber) Probe(ctx context.Context, path string) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}

	c.mu.Lock()
	entry, ok := c.entries[path]
	c.mu.Unlock()
	if ok && entry.size == stat.Size() && entry.modTime.Equal(stat.ModTime()) && time.Since(entry.info.ProbedAt) < c.ttl {
		return entry.info, nil
	}

	info, err := c.prober.Probe(ctx, path)
	if err != nil {
		if ok && entry.size == stat.Size() && entry.modTime.Equal(stat.ModTime()) {
			c.logger.Warn("media probe failed, returning cached result", "error", err)
			return entry.info, nil
		}
		return nil, err
	}
	if info.ProbedAt.IsZero() {
		info.ProbedAt = time.Now()
	}

	c.mu.Lock()
	c.entries[path] = cacheEntry{info: info, modTime: stat.ModTime(), size: stat.Size()}
	c.mu.Unlock()
	return info, nil
}

// Invalidate forgets the cached result for path.
func (c *CachedProber) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}
