package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/marketloom/pointer-engine/internal/logger"
)

type timing struct {
	count int64
	total time.Duration
	max   time.Duration
}

// Metrics is the in-process timing/metrics sink: named counters plus named
// start/end timers. A nil *Metrics is a no-op so components never need to
// guard their instrumentation.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
	timings  map[string]*timing
	log      *logger.Logger
}

func NewMetrics(baseLog *logger.Logger) *Metrics {
	return &Metrics{
		counters: make(map[string]int64),
		timings:  make(map[string]*timing),
		log:      baseLog.With("service", "Metrics"),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.counters[name] += n
	m.mu.Unlock()
}

// StartTimer begins a named timer and returns the matching end call.
func (m *Metrics) StartTimer(name string) func() {
	if m == nil {
		return func() {}
	}
	started := time.Now()
	return func() {
		m.ObserveDuration(name, time.Since(started))
	}
}

func (m *Metrics) ObserveDuration(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	t, ok := m.timings[name]
	if !ok {
		t = &timing{}
		m.timings[name] = t
	}
	t.count++
	t.total += d
	if d > t.max {
		t.max = d
	}
	m.mu.Unlock()
}

func (m *Metrics) Counter(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

type TimingSnapshot struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Avg   time.Duration `json:"avg"`
	Max   time.Duration `json:"max"`
}

func (m *Metrics) Timings() []TimingSnapshot {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TimingSnapshot, 0, len(m.timings))
	for name, t := range m.timings {
		avg := time.Duration(0)
		if t.count > 0 {
			avg = t.total / time.Duration(t.count)
		}
		out = append(out, TimingSnapshot{Name: name, Count: t.count, Avg: avg, Max: t.max})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
