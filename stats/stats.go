// Package stats aggregates round trip latency samples.
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/multisocket/archbench/errs"
)

// Statistics is a running sum and count of latency samples in
// milliseconds. It is safe for concurrent use.
type Statistics struct {
	sync.Mutex
	sum   float64
	count int64
	min   float64
	max   float64
}

// Snapshot is a consistent copy of a Statistics.
type Snapshot struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
}

// New creates an empty Statistics.
func New() *Statistics {
	return &Statistics{}
}

// Add records one sample in milliseconds.
func (s *Statistics) Add(ms float64) {
	s.Lock()
	if s.count == 0 || ms < s.min {
		s.min = ms
	}
	if s.count == 0 || ms > s.max {
		s.max = ms
	}
	s.sum += ms
	s.count++
	s.Unlock()
}

// AddDuration records one sample.
func (s *Statistics) AddDuration(d time.Duration) {
	s.Add(float64(d) / float64(time.Millisecond))
}

// Count returns the number of samples.
func (s *Statistics) Count() int64 {
	s.Lock()
	defer s.Unlock()
	return s.count
}

// Mean returns the mean latency in milliseconds, or errs.ErrNoSamples.
func (s *Statistics) Mean() (float64, error) {
	s.Lock()
	defer s.Unlock()
	if s.count == 0 {
		return 0, errs.ErrNoSamples
	}
	return s.sum / float64(s.count), nil
}

// Min returns the smallest sample, 0 when empty.
func (s *Statistics) Min() float64 {
	s.Lock()
	defer s.Unlock()
	return s.min
}

// Max returns the largest sample, 0 when empty.
func (s *Statistics) Max() float64 {
	s.Lock()
	defer s.Unlock()
	return s.max
}

// Snapshot returns the current aggregate.
func (s *Statistics) Snapshot() Snapshot {
	s.Lock()
	defer s.Unlock()
	return Snapshot{Count: s.count, Sum: s.sum, Min: s.min, Max: s.max}
}

func (s *Statistics) String() string {
	snap := s.Snapshot()
	if snap.Count == 0 {
		return "no samples"
	}
	return fmt.Sprintf("count=%d mean=%.3fms min=%.3fms max=%.3fms",
		snap.Count, snap.Sum/float64(snap.Count), snap.Min, snap.Max)
}
