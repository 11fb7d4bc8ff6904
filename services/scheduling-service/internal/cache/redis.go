package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// Availability caches computed start times in one Redis hash per date, keyed by duration in
// minutes, guarded by per-date and global generation counters. Redis errors are logged and
// treated as misses so the database stays authoritative.
type Availability struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewAvailability(rdb redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *Availability {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "availability"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Availability{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *Availability) key(d model.Date) string {
	return c.prefix + ":" + d.String()
}

// Generation counters live outside the prefix+":*" namespace so InvalidateAll never deletes them.
func (c *Availability) genKey(d model.Date) string {
	return c.prefix + "-gen:" + d.String()
}

func (c *Availability) allGenKey() string {
	return c.prefix + "-gen"
}

func (c *Availability) keys(d model.Date) []string {
	return []string{c.key(d), c.genKey(d), c.allGenKey()}
}

// genTTL outlives any in-flight computation; an expired counter restarts at zero.
const genTTL = 48 * time.Hour

// getScript returns {entry or nil, generation}. The generation is the sum of the per-date
// and global counters, which changes whenever either advances.
var getScript = redis.NewScript(`
local gen = tonumber(redis.call('GET', KEYS[2]) or '0') + tonumber(redis.call('GET', KEYS[3]) or '0')
return {redis.call('HGET', KEYS[1], ARGV[1]), gen}
`)

// setScript writes the entry only if the generation still matches ARGV[1].
var setScript = redis.NewScript(`
local gen = tonumber(redis.call('GET', KEYS[2]) or '0') + tonumber(redis.call('GET', KEYS[3]) or '0')
if gen ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// Get returns the cached entry or, on a miss, the generation to hand to Set. A Redis error
// yields generation -1, which no Set accepts.
func (c *Availability) Get(ctx context.Context, d model.Date, minutes int) ([]string, int64, bool) {
	res, err := getScript.Run(ctx, c.rdb, c.keys(d), strconv.Itoa(minutes)).Slice()
	if err != nil || len(res) != 2 {
		c.logger.Warn("availability cache read failed", "date", d.String(), "err", err)
		return nil, -1, false
	}
	gen, _ := res[1].(int64)
	raw, ok := res[0].(string)
	if !ok {
		return nil, gen, false
	}
	times, err := decode([]byte(raw))
	if err != nil {
		c.logger.Warn("availability cache entry corrupt", "date", d.String(), "err", err)
		return nil, gen, false
	}
	return times, gen, true
}

func (c *Availability) Set(ctx context.Context, d model.Date, minutes int, gen int64, times []string) {
	if gen < 0 {
		return
	}
	raw, err := encode(times)
	if err != nil {
		return
	}
	stored, err := setScript.Run(ctx, c.rdb, c.keys(d), gen, strconv.Itoa(minutes), raw, c.ttl.Milliseconds()).Int64()
	if err != nil {
		c.logger.Warn("availability cache write failed", "date", d.String(), "err", err)
		return
	}
	if stored == 0 {
		c.logger.Debug("availability cache write skipped after invalidation", "date", d.String())
	}
}

func (c *Availability) InvalidateDates(ctx context.Context, dates ...model.Date) {
	if len(dates) == 0 {
		return
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, d := range dates {
			p.Incr(ctx, c.genKey(d))
			p.Expire(ctx, c.genKey(d), genTTL)
			p.Del(ctx, c.key(d))
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("availability cache invalidation failed", "dates", len(dates), "err", err)
	}
}

// InvalidateAll advances the global generation before deleting entries, so writes racing the
// flush are rejected even for keys the scan already passed.
func (c *Availability) InvalidateAll(ctx context.Context) {
	if err := c.rdb.Incr(ctx, c.allGenKey()).Err(); err != nil {
		c.logger.Warn("availability cache generation bump failed", "err", err)
	}
	iter := c.rdb.Scan(ctx, 0, c.prefix+":*", 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 200 {
			c.rdb.Del(ctx, batch...)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		c.rdb.Del(ctx, batch...)
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("availability cache flush failed", "err", err)
	}
}

func encode(times []string) ([]byte, error) {
	if times == nil {
		times = []string{}
	}
	return json.Marshal(times)
}

func decode(raw []byte) ([]string, error) {
	var times []string
	if err := json.Unmarshal(raw, &times); err != nil {
		return nil, err
	}
	if times == nil {
		times = []string{}
	}
	return times, nil
}
