// Package perfstats records how long the stages of the frame pipeline take,
// so that it's easy to see whether the pose estimator is keeping up with the video.
package perfstats

import (
	"sync/atomic"
	"time"

	"github.com/bmharper/ringbuffer"
)

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// Update an exponential moving average, stored in nanoseconds.
// We don't bother about strict correctness here, with CompareAndSwap,
// because this is just sampled stats, and it's OK to miss one or two samples.
func UpdateMovingAverage(stat *atomic.Int64, sample time.Duration) {
	v := sample.Nanoseconds()
	if stat.Load() == 0 {
		stat.Store(v)
	} else {
		stat.Store((stat.Load()*63 + v) >> 6)
	}
}

// RollingTime holds the most recent N durations, so that we can report recent performance
// separately from the lifetime average.
// Not thread safe.
type RollingTime struct {
	window ringbuffer.RingP[time.Duration]
}

func NewRollingTime(size int) *RollingTime {
	return &RollingTime{
		window: ringbuffer.NewRingP[time.Duration](size),
	}
}

func (r *RollingTime) Add(v time.Duration) {
	r.window.Add(v)
}

func (r *RollingTime) Len() int {
	return r.window.Len()
}

// Average of the samples in the window
func (r *RollingTime) Average() time.Duration {
	n := r.window.Len()
	if n == 0 {
		return 0
	}
	total := time.Duration(0)
	for i := 0; i < n; i++ {
		total += r.window.Peek(i)
	}
	return total / time.Duration(n)
}

// Longest sample in the window
func (r *RollingTime) Max() time.Duration {
	m := time.Duration(0)
	for i := 0; i < r.window.Len(); i++ {
		m = max(m, r.window.Peek(i))
	}
	return m
}
