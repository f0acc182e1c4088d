package watchers

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// EventCounters counts processed events per watcher of one chain.
type EventCounters struct {
	started  time.Time
	counters *xsync.Map[string, *atomic.Uint64]
}

type CounterSnapshot struct {
	Watcher      string  `json:"watcher"`
	Processed    uint64  `json:"processed"`
	EventsPerSec float64 `json:"eventsPerSec"`
}

func NewEventCounters() *EventCounters {
	return &EventCounters{
		started:  time.Now(),
		counters: xsync.NewMap[string, *atomic.Uint64](),
	}
}

func (c *EventCounters) Add(watcher string, count uint64) {
	counter, _ := c.counters.LoadOrCompute(watcher, func() (*atomic.Uint64, bool) {
		return &atomic.Uint64{}, false
	})
	counter.Add(count)
}

func (c *EventCounters) Get(watcher string) uint64 {
	if counter, ok := c.counters.Load(watcher); ok {
		return counter.Load()
	}
	return 0
}

func (c *EventCounters) Runtime() time.Duration {
	return time.Since(c.started)
}

// Snapshot returns the counters sorted by watcher name.
func (c *EventCounters) Snapshot() []CounterSnapshot {
	runtime := c.Runtime().Seconds()
	snapshot := []CounterSnapshot{}
	c.counters.Range(func(watcher string, counter *atomic.Uint64) bool {
		processed := counter.Load()
		rate := 0.0
		if runtime > 0 {
			rate = float64(processed) / runtime
		}
		snapshot = append(snapshot, CounterSnapshot{
			Watcher:      watcher,
			Processed:    processed,
			EventsPerSec: rate,
		})
		return true
	})
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Watcher < snapshot[j].Watcher })
	return snapshot
}
