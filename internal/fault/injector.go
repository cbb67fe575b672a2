// Package fault simulates an unreliable upstream: random outages and added latency.
package fault

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alisaviation/carbonintensity/internal/models"
)

const DefaultFailureRate = 0.15

type Recorder interface {
	RecordFault(kind models.FaultType)
}

type Injector struct {
	failureRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	recorder    Recorder

	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(*Injector)

// WithSource makes decisions reproducible. Calls are serialised on the source.
func WithSource(src rand.Source) Option {
	return func(i *Injector) {
		i.rnd = rand.New(src)
	}
}

func WithRecorder(r Recorder) Option {
	return func(i *Injector) {
		i.recorder = r
	}
}

func NewInjector(failureRate float64, minDelay, maxDelay time.Duration, opts ...Option) *Injector {
	if maxDelay < minDelay {
		minDelay, maxDelay = maxDelay, minDelay
	}
	i := &Injector{
		failureRate: failureRate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ShouldFail reports whether the next upstream call should be replaced by a simulated outage.
func (i *Injector) ShouldFail() bool {
	fail := i.float64() < i.failureRate
	if fail && i.recorder != nil {
		i.recorder.RecordFault(models.FaultError)
	}
	return fail
}

// InjectedDelay returns a latency drawn uniformly from [minDelay, maxDelay].
func (i *Injector) InjectedDelay() time.Duration {
	d := i.minDelay
	if span := i.maxDelay - i.minDelay; span > 0 {
		d += time.Duration(i.int64N(int64(span) + 1))
	}
	if d > 0 && i.recorder != nil {
		i.recorder.RecordFault(models.FaultLatency)
	}
	return d
}

func (i *Injector) float64() float64 {
	if i.rnd == nil {
		return rand.Float64()
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rnd.Float64()
}

func (i *Injector) int64N(n int64) int64 {
	if i.rnd == nil {
		return rand.Int64N(n)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rnd.Int64N(n)
}
