// Package sysstats implements the system-stats half of component C8: a
// fixed-capacity ring buffer of (cpu_usage, memory_usage) samples, pushed
// once a second by the scheduler's per-second job and read back as the
// most recent sample.
//
// Sampling itself is grounded on
// _examples/arkeep-io-arkeep/agent/internal/metrics, whose own stats
// collector carries a "TODO: implement with gopsutil" marker — this
// package is that TODO's fulfillment, using
// github.com/shirou/gopsutil/v4's cpu and mem packages, a direct
// dependency of that same teacher's agent module.
package sysstats

import (
	"context"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Capacity is the ring buffer's fixed size, per spec.md 4.8.
const Capacity = 3600

// Sample is one (cpu_usage, memory_usage) pair, both expressed as a
// percentage in [0, 100].
type Sample struct {
	CPUUsage    float64
	MemoryUsage float64
}

// Ring is the fixed-capacity, overwrite-oldest-when-full sample buffer.
type Ring struct {
	mu     sync.RWMutex
	buf    [Capacity]Sample
	len    int
	head   int // index of the oldest sample
	latest Sample
	filled bool
}

// New constructs an empty Ring.
func New() *Ring {
	return &Ring{}
}

// Push appends a new sample, evicting the oldest sample once the ring is full.
func (r *Ring) Push(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.len < Capacity {
		r.buf[(r.head+r.len)%Capacity] = s
		r.len++
	} else {
		r.buf[r.head] = s
		r.head = (r.head + 1) % Capacity
	}
	r.latest = s
	r.filled = r.filled || r.len == Capacity
}

// GetCPUUsage returns the most recently pushed CPU usage sample, or
// (0, false) if the ring is empty.
func (r *Ring) GetCPUUsage() (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.len == 0 {
		return 0, false
	}
	return r.latest.CPUUsage, true
}

// GetMemoryUsage returns the most recently pushed memory usage sample, or
// (0, false) if the ring is empty.
func (r *Ring) GetMemoryUsage() (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.len == 0 {
		return 0, false
	}
	return r.latest.MemoryUsage, true
}

// History returns every sample currently held, oldest first.
func (r *Ring) History() []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sample, r.len)
	for i := 0; i < r.len; i++ {
		out[i] = r.buf[(r.head+i)%Capacity]
	}
	return out
}

// Len returns the number of samples currently held.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.len
}

// SampleNow collects a single (cpu_usage, memory_usage) sample from the
// host via gopsutil. The CPU percentage is measured over a short,
// non-blocking instantaneous window (0 interval compares against the last
// call's idle/busy delta).
func SampleNow(ctx context.Context) (Sample, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Sample{}, err
	}
	var cpuUsage float64
	if len(percents) > 0 {
		cpuUsage = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, err
	}

	return Sample{CPUUsage: cpuUsage, MemoryUsage: vm.UsedPercent}, nil
}
