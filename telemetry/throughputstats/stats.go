// Package throughputstats tracks how many bytes a transport moves in each
// direction. Counters are sampled into one-second windows so the owning
// client can report sustained throughput rather than a single total.
package throughputstats

import (
	"encoding/json"
	"sync"
	"time"
)

const windowInterval = time.Second

// Digest is a point-in-time summary of both directions, suitable for
// embedding in a telemetry report.
type Digest struct {
	Unit     string          `json:"unit"`
	Inbound  json.RawMessage `json:"inbound"`
	Outbound json.RawMessage `json:"outbound"`
}

type snapshot struct {
	Total   int       `json:"total"`
	Start   time.Time `json:"start"`
	Stop    time.Time `json:"stop"`
	Windows []int     `json:"windows"`
}

type counter struct {
	mu sync.Mutex

	current int
	total   int
	start   time.Time
	stop    time.Time
	windows []int
}

func (c *counter) count(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current += n
}

func (c *counter) roll(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stop = now
	c.total += c.current
	c.windows = append(c.windows, c.current)
	c.current = 0
}

func (c *counter) digest() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The window in flight counts toward the total
	raw, _ := json.Marshal(snapshot{
		Total:   c.total + c.current,
		Start:   c.start,
		Stop:    c.stop,
		Windows: c.windows,
	})
	return raw
}

// ThroughputStats tracks inbound and outbound volume for a single
// connection. The windowing goroutine stops when the provided done channel
// closes.
type ThroughputStats struct {
	unit     string
	inbound  counter
	outbound counter
}

func New(unit string, done <-chan struct{}) *ThroughputStats {
	now := time.Now().UTC()
	t := &ThroughputStats{
		unit:     unit,
		inbound:  counter{start: now, stop: now},
		outbound: counter{start: now, stop: now},
	}

	go func() {
		ticker := time.NewTicker(windowInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				now := time.Now().UTC()
				t.inbound.roll(now)
				t.outbound.roll(now)
			}
		}
	}()

	return t
}

func (t *ThroughputStats) CountInbound(n int) {
	t.inbound.count(n)
}

func (t *ThroughputStats) CountOutbound(n int) {
	t.outbound.count(n)
}

func (t *ThroughputStats) Digest() Digest {
	return Digest{
		Unit:     t.unit,
		Inbound:  t.inbound.digest(),
		Outbound: t.outbound.digest(),
	}
}
