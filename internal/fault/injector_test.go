package fault

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alisaviation/carbonintensity/internal/models"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[models.FaultType]int
}

func (c *countingRecorder) RecordFault(kind models.FaultType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[models.FaultType]int)
	}
	c.counts[kind]++
}

func TestShouldFail_Rate(t *testing.T) {
	const n = 10000
	inj := NewInjector(DefaultFailureRate, 0, 0, WithSource(rand.NewPCG(1, 2)))

	failures := 0
	for i := 0; i < n; i++ {
		if inj.ShouldFail() {
			failures++
		}
	}

	// binomial standard deviation is ~0.0036 for n=10000; allow 5 sigma
	rate := float64(failures) / n
	tolerance := 5 * math.Sqrt(DefaultFailureRate*(1-DefaultFailureRate)/n)
	assert.InDelta(t, DefaultFailureRate, rate, tolerance)
}

func TestShouldFail_DefaultSource(t *testing.T) {
	const n = 10000
	inj := NewInjector(DefaultFailureRate, 0, 0)

	failures := 0
	for i := 0; i < n; i++ {
		if inj.ShouldFail() {
			failures++
		}
	}
	assert.InDelta(t, DefaultFailureRate, float64(failures)/n, 0.03)
}

func TestShouldFail_Bounds(t *testing.T) {
	never := NewInjector(0, 0, 0)
	always := NewInjector(1, 0, 0)
	for i := 0; i < 1000; i++ {
		require.False(t, never.ShouldFail())
		require.True(t, always.ShouldFail())
	}
}

func TestInjectedDelay_Range(t *testing.T) {
	minDelay, maxDelay := 10*time.Millisecond, 50*time.Millisecond
	inj := NewInjector(0, minDelay, maxDelay, WithSource(rand.NewPCG(3, 4)))

	seen := map[bool]bool{}
	for i := 0; i < 1000; i++ {
		d := inj.InjectedDelay()
		require.GreaterOrEqual(t, d, minDelay)
		require.LessOrEqual(t, d, maxDelay)
		seen[d < 30*time.Millisecond] = true
	}
	assert.Len(t, seen, 2, "delays should cover both halves of the range")
}

func TestInjectedDelay_Fixed(t *testing.T) {
	require.Zero(t, NewInjector(0, 0, 0).InjectedDelay())
	require.Equal(t, 5*time.Millisecond, NewInjector(0, 5*time.Millisecond, 5*time.Millisecond).InjectedDelay())
	// swapped bounds are normalised
	d := NewInjector(0, 20*time.Millisecond, 10*time.Millisecond).InjectedDelay()
	require.GreaterOrEqual(t, d, 10*time.Millisecond)
	require.LessOrEqual(t, d, 20*time.Millisecond)
}

func TestInjector_Recorder(t *testing.T) {
	rec := &countingRecorder{}
	inj := NewInjector(1, time.Millisecond, time.Millisecond, WithRecorder(rec))

	inj.ShouldFail()
	inj.ShouldFail()
	inj.InjectedDelay()

	require.Equal(t, 2, rec.counts[models.FaultError])
	require.Equal(t, 1, rec.counts[models.FaultLatency])
}

func TestInjector_ConcurrentSeeded(t *testing.T) {
	inj := NewInjector(0.5, 0, time.Millisecond, WithSource(rand.NewPCG(5, 6)))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				inj.ShouldFail()
				inj.InjectedDelay()
			}
		}()
	}
	wg.Wait()
}

func TestInjectedDelay_FixedDelayIsRecorded(t *testing.T) {
	rec := &countingRecorder{}
	inj := NewInjector(0, 5*time.Millisecond, 5*time.Millisecond, WithRecorder(rec))

	require.Equal(t, 5*time.Millisecond, inj.InjectedDelay())
	require.Equal(t, 1, rec.counts[models.FaultLatency])

	zero := NewInjector(0, 0, 0, WithRecorder(rec))
	require.Zero(t, zero.InjectedDelay())
	require.Equal(t, 1, rec.counts[models.FaultLatency], "a zero delay is not a fault")
}
