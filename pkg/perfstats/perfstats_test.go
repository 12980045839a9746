package perfstats

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeAccumulator(t *testing.T) {
	a := TimeAccumulator{}
	require.Equal(t, time.Duration(0), a.Average())
	a.AddSample(10 * time.Millisecond)
	a.AddSample(30 * time.Millisecond)
	require.Equal(t, 20*time.Millisecond, a.Average())
	a.Reset()
	require.Equal(t, int64(0), a.Samples)
}

func TestRollingTime(t *testing.T) {
	r := NewRollingTime(4)
	require.Equal(t, time.Duration(0), r.Average())
	for i := 1; i <= 10; i++ {
		r.Add(time.Duration(i) * time.Millisecond)
	}
	// Only the last 4 samples survive: 7,8,9,10
	require.Equal(t, 4, r.Len())
	require.Equal(t, 8500*time.Microsecond, r.Average())
	require.Equal(t, 10*time.Millisecond, r.Max())
}

func TestMovingAverage(t *testing.T) {
	var stat atomic.Int64
	UpdateMovingAverage(&stat, 64*time.Nanosecond)
	require.Equal(t, int64(64), stat.Load())
	UpdateMovingAverage(&stat, 128*time.Nanosecond)
	require.Equal(t, int64(65), stat.Load())
}
