// Package local implements the in-process Backend: a sharded counter
// map with TTL expiry, a capacity guard, and a cooperative background
// reaper. It is the Backend of choice for single-instance deployments
// or as the fallback leg of a storage/composite pairing.
package local

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hophndev/fastex-go"
	"github.com/hophndev/fastex-go/internal/clock"
)

const defaultShardCount = 32

// entry is the local backend's CounterEntry (spec.md §3).
type entry struct {
	count       int64
	expiresAtMS int64
}

type shard struct {
	mu   sync.Mutex
	data map[string]*entry
}

// Backend is the fastex.Backend implementation backed by an in-process
// sharded map. It is safe for concurrent use by multiple goroutines.
type Backend struct {
	shards       []*shard
	clock        clock.Clock
	logger       fastex.Logger
	cleanupEvery time.Duration
	maxKeys      int

	connMu sync.Mutex

	stopReaper chan struct{}
	reaperDone chan struct{}

	// size is the total entry count across all shards. insertMu
	// serializes the new-key path (the only one that can grow size)
	// across shards so the capacity guard sees a consistent global
	// total instead of a per-shard fraction of it.
	size     atomic.Int64
	insertMu sync.Mutex
}

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithCleanupInterval overrides the default 30s reaper tick.
func WithCleanupInterval(d time.Duration) Option {
	return func(b *Backend) { b.cleanupEvery = d }
}

// WithMaxKeys overrides the default capacity guard of 100,000 keys
// across all shards.
func WithMaxKeys(max int) Option {
	return func(b *Backend) { b.maxKeys = max }
}

// WithLogger attaches a Logger; the default is fastex.NoOpLogger.
func WithLogger(l fastex.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithClock overrides the backend's time source, for deterministic
// tests of window boundaries and reaper liveness.
func WithClock(c clock.Clock) Option {
	return func(b *Backend) { b.clock = c }
}

// New builds a local Backend. Call Connect before CheckLimit.
func New(opts ...Option) *Backend {
	b := &Backend{
		shards:       make([]*shard, defaultShardCount),
		clock:        clock.New(),
		logger:       fastex.NoOpLogger{},
		cleanupEvery: 30 * time.Second,
		maxKeys:      100_000,
	}
	for i := range b.shards {
		b.shards[i] = &shard{data: make(map[string]*entry)}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) shardIndexFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(b.shards)))
}

// Connect starts the background reaper. Idempotent: a second call
// while already connected is a no-op.
func (b *Backend) Connect(ctx context.Context) error {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.stopReaper != nil {
		return nil
	}
	b.stopReaper = make(chan struct{})
	b.reaperDone = make(chan struct{})
	go b.reap()
	return nil
}

// Disconnect stops the background reaper. After Disconnect, CheckLimit
// returns a NotConnectedError.
func (b *Backend) Disconnect(ctx context.Context) error {
	b.connMu.Lock()
	stop := b.stopReaper
	done := b.reaperDone
	b.stopReaper = nil
	b.reaperDone = nil
	b.connMu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// IsConnected reports whether the reaper is running.
func (b *Backend) IsConnected() bool {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	return b.stopReaper != nil
}

// CheckLimit implements the local backend algorithm of spec.md §4.D.
// Incrementing an existing window is fully sharded: concurrent traffic
// to different keys never contends on the same mutex. Inserting a new
// key additionally serializes on insertMu so the capacity guard sees
// one consistent total across all shards.
func (b *Backend) CheckLimit(ctx context.Context, key string, times int64, windowMS int64) (fastex.Decision, error) {
	if !b.IsConnected() {
		return fastex.Decision{}, &fastex.NotConnectedError{Backend: "local"}
	}
	select {
	case <-ctx.Done():
		return fastex.Decision{}, ctx.Err()
	default:
	}

	now := b.clock.Now().UnixMilli()
	idx := b.shardIndexFor(key)
	s := b.shards[idx]

	s.mu.Lock()
	if e, ok := s.data[key]; ok && e.expiresAtMS > now {
		e.count++
		count, expiresAtMS := e.count, e.expiresAtMS
		s.mu.Unlock()
		if count > times {
			return fastex.Decision{RetryAfterMS: expiresAtMS - now, CurrentCount: count}, nil
		}
		return fastex.Decision{RetryAfterMS: 0, CurrentCount: count}, nil
	}
	s.mu.Unlock()

	// New key, or an expired one being replaced: this is the only path
	// that can grow the map, so it's serialized globally against
	// guardCapacity to keep |map| <= max_keys exact (spec.md §8
	// invariant 3), not just bounded per shard.
	b.insertMu.Lock()
	defer b.insertMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[key]; ok && e.expiresAtMS > now {
		// Another goroutine inserted the same key while we waited for
		// insertMu.
		e.count++
		if e.count > times {
			return fastex.Decision{RetryAfterMS: e.expiresAtMS - now, CurrentCount: e.count}, nil
		}
		return fastex.Decision{RetryAfterMS: 0, CurrentCount: e.count}, nil
	}

	_, existed := s.data[key]
	if !existed {
		b.guardCapacity(now, idx)
	}
	s.data[key] = &entry{count: 1, expiresAtMS: now + windowMS}
	if !existed {
		b.size.Add(1)
	}
	return fastex.Decision{RetryAfterMS: 0, CurrentCount: 1}, nil
}

// guardCapacity enforces the global max_keys bound before a new key is
// inserted into shards[heldIdx], which the caller already holds locked.
// Callers must hold insertMu so at most one goroutine evicts at a time.
func (b *Backend) guardCapacity(now int64, heldIdx int) {
	if b.size.Load() < int64(b.maxKeys) {
		return
	}

	// Sweep expired entries across every shard first (spec.md §4.D).
	for i, s := range b.shards {
		if i == heldIdx {
			b.sweepExpiredLocked(s, now)
			continue
		}
		s.mu.Lock()
		b.sweepExpiredLocked(s, now)
		s.mu.Unlock()
	}
	if b.size.Load() < int64(b.maxKeys) {
		return
	}

	// Still at capacity: evict the entry with the earliest expiry,
	// scanning one shard at a time so no two shard locks are ever held
	// together.
	var victim *shard
	var victimKey string
	var earliest int64
	first := true
	for i, s := range b.shards {
		locked := i != heldIdx
		if locked {
			s.mu.Lock()
		}
		for k, e := range s.data {
			if first || e.expiresAtMS < earliest {
				victim, victimKey, earliest, first = s, k, e.expiresAtMS, false
			}
		}
		if locked {
			s.mu.Unlock()
		}
	}
	if victim == nil {
		return
	}
	if victim == b.shards[heldIdx] {
		delete(victim.data, victimKey)
	} else {
		victim.mu.Lock()
		delete(victim.data, victimKey)
		victim.mu.Unlock()
	}
	b.size.Add(-1)
	b.logger.Debug("local backend evicted key at capacity", "key", victimKey)
}

// sweepExpiredLocked deletes expired entries from s. Callers must hold
// s.mu.
func (b *Backend) sweepExpiredLocked(s *shard, now int64) {
	for k, e := range s.data {
		if e.expiresAtMS <= now {
			delete(s.data, k)
			b.size.Add(-1)
		}
	}
}

// Stats is the local backend's get_stats() result (spec.md §4.D).
type Stats struct {
	TotalKeys    int
	TotalEntries int
}

// GetStats returns a snapshot of the map's size. TotalKeys and
// TotalEntries are equal for the local backend: one entry per key.
func (b *Backend) GetStats() Stats {
	var total int
	for _, s := range b.shards {
		s.mu.Lock()
		total += len(s.data)
		s.mu.Unlock()
	}
	return Stats{TotalKeys: total, TotalEntries: total}
}

// reap deletes expired entries every cleanupEvery, holding each
// shard's lock only for the duration of that shard's sweep so request
// handlers are never starved (spec.md §4.D, §5).
func (b *Backend) reap() {
	defer close(b.reaperDone)

	ticker := time.NewTicker(b.cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopReaper:
			return
		case <-ticker.C:
			now := b.clock.Now().UnixMilli()
			for _, s := range b.shards {
				s.mu.Lock()
				b.sweepExpiredLocked(s, now)
				s.mu.Unlock()
			}
			b.logger.Debug("local backend reaper swept expired entries")
		}
	}
}
