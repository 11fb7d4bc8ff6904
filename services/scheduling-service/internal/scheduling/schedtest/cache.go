package schedtest

import (
	"context"
	"slices"
	"sync"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

// MemCache is a scheduling.Cache that also counts hits, invalidations and discarded writes.
type MemCache struct {
	mu            sync.Mutex
	entries       map[model.Date]map[int][]string
	gens          map[model.Date]int64
	allGen        int64
	Hits          int
	Invalidations int
	StaleSets     int
}

func NewMemCache() *MemCache {
	return &MemCache{entries: map[model.Date]map[int][]string{}, gens: map[model.Date]int64{}}
}

// generation must be called with mu held. Both counters only grow, so their sum changes
// whenever either does.
func (c *MemCache) generation(d model.Date) int64 {
	return c.gens[d] + c.allGen
}

func (c *MemCache) Get(ctx context.Context, d model.Date, minutes int) ([]string, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	times, ok := c.entries[d][minutes]
	if ok {
		c.Hits++
	}
	return slices.Clone(times), c.generation(d), ok
}

func (c *MemCache) Set(ctx context.Context, d model.Date, minutes int, gen int64, times []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation(d) != gen {
		c.StaleSets++
		return
	}
	if c.entries[d] == nil {
		c.entries[d] = map[int][]string{}
	}
	c.entries[d][minutes] = slices.Clone(times)
}

func (c *MemCache) InvalidateDates(ctx context.Context, dates ...model.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range dates {
		c.gens[d]++
		delete(c.entries, d)
		c.Invalidations++
	}
}

func (c *MemCache) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allGen++
	c.entries = map[model.Date]map[int][]string{}
	c.Invalidations++
}

func (c *MemCache) Cached(d model.Date) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries[d]) > 0
}
