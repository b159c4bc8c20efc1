// Package visitorboard implements the visitor-board half of component C8:
// a concurrent map of accumulated visit counts keyed by the big-endian
// byte form of a (lat, lon) float64 pair, generalizing the same
// sharded-lock pattern used by internal/session for high-churn keyed
// state (per spec.md's "concurrent lock-free maps (per-bucket locking
// acceptable)" guidance).
package visitorboard

import (
	"context"
	"hash/maphash"
	"math"
	"sync"

	"gorm.io/gorm"

	"github.com/cyhdev/backend/internal/apperr"
	"github.com/cyhdev/backend/internal/db"
)

const shardCount = 16

// Key is the (lat, lon) pair in its big-endian bit-pattern form, matching
// spec.md's VisitorCount key definition exactly.
type Key struct {
	LatBits uint64
	LonBits uint64
}

// KeyFor converts a (lat, lon) pair into its map key.
func KeyFor(lat, lon float64) Key {
	return Key{LatBits: math.Float64bits(lat), LonBits: math.Float64bits(lon)}
}

// LatLon recovers the (lat, lon) float64 pair from a Key.
func (k Key) LatLon() (lat, lon float64) {
	return math.Float64frombits(k.LatBits), math.Float64frombits(k.LonBits)
}

type shard struct {
	mu     sync.RWMutex
	counts map[Key]uint64
}

// Board is the sharded visitor count map.
type Board struct {
	gormD  *gorm.DB
	seed   maphash.Seed
	shards [shardCount]*shard
}

// New constructs an empty Board. Call Sync before serving reads.
func New(gormDB *gorm.DB) *Board {
	b := &Board{gormD: gormDB, seed: maphash.MakeSeed()}
	for i := range b.shards {
		b.shards[i] = &shard{counts: make(map[Key]uint64)}
	}
	return b
}

func (b *Board) shardFor(k Key) *shard {
	return b.shards[shardIndex(b.seed, k)]
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

// Sync loads every visitation_data row and rebuilds the board from
// scratch. Duplicate (lat, lon) rows accumulate into a single count, per
// spec.md 4.8.
func (b *Board) Sync(ctx context.Context) error {
	var rows []db.VisitationDatum
	if err := b.gormD.WithContext(ctx).Find(&rows).Error; err != nil {
		return apperr.Wrap(apperr.KindQueryFailure, 8001, "failed to load visitation data", err)
	}

	next := [shardCount]*shard{}
	for i := range next {
		next[i] = &shard{counts: make(map[Key]uint64)}
	}
	for _, r := range rows {
		k := Key{LatBits: r.LatBits, LonBits: r.LonBits}
		s := next[shardIndex(b.seed, k)]
		s.counts[k] += r.Count
	}

	for i := range b.shards {
		b.shards[i].mu.Lock()
		b.shards[i].counts = next[i].counts
		b.shards[i].mu.Unlock()
	}
	return nil
}

func shardIndex(seed maphash.Seed, k Key) int {
	var h maphash.Hash
	h.SetSeed(seed)
	var buf [16]byte
	putUint64(buf[0:8], k.LatBits)
	putUint64(buf[8:16], k.LonBits)
	h.Write(buf[:])
	return int(h.Sum64() % shardCount)
}

// Record increments the in-memory count for (lat, lon) by one. It does not
// write to the database, so the next Sync replaces counts recorded here.
func (b *Board) Record(lat, lon float64) {
	k := KeyFor(lat, lon)
	s := b.shardFor(k)
	s.mu.Lock()
	s.counts[k]++
	s.mu.Unlock()
}

// Entry is one (lat, lon, count) item returned by Snapshot.
type Entry struct {
	Lat, Lon float64
	Count    uint64
}

// Snapshot returns every (lat, lon, count) entry currently on the board,
// filtering out any NaN coordinate per spec.md 4.8's read-path rule.
func (b *Board) Snapshot() []Entry {
	var out []Entry
	for _, s := range b.shards {
		s.mu.RLock()
		for k, c := range s.counts {
			lat, lon := k.LatLon()
			if math.IsNaN(lat) || math.IsNaN(lon) {
				continue
			}
			out = append(out, Entry{Lat: lat, Lon: lon, Count: c})
		}
		s.mu.RUnlock()
	}
	return out
}

// Len returns the total number of distinct (lat, lon) keys across all shards.
func (b *Board) Len() int {
	n := 0
	for _, s := range b.shards {
		s.mu.RLock()
		n += len(s.counts)
		s.mu.RUnlock()
	}
	return n
}
