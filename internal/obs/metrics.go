package obs

import (
	"sync/atomic"
	"time"

	"tradecore/internal/model/enum"
)

const maxTopic = int(enum.TopicTimer)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	eventCounts     [maxTopic + 1]uint64
	malformedCounts [maxTopic + 1]uint64
	deliveries      uint64
	skipped         uint64
	failures        uint64
	misconfigured   uint64
	anomalies       uint64
	queueDrops      uint64
	queueClosed     uint64

	dispatchLatency  LatencyStats
	extensionLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts      map[enum.Topic]uint64
	MalformedCounts  map[enum.Topic]uint64
	Deliveries       uint64
	Skipped          uint64
	Failures         uint64
	Misconfigured    uint64
	Anomalies        uint64
	QueueDrops       uint64
	QueueClosed      uint64
	DispatchLatency  LatencySnapshot
	ExtensionLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts one dispatched event and how long its handlers took.
func (m *Metrics) ObserveEvent(topic enum.Topic, d time.Duration) {
	if m == nil {
		return
	}
	idx := int(topic)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	m.dispatchLatency.Observe(d)
}

// IncMalformed records an event rejected by its handler.
func (m *Metrics) IncMalformed(topic enum.Topic) {
	if m == nil {
		return
	}
	idx := int(topic)
	if idx >= 0 && idx < len(m.malformedCounts) {
		atomic.AddUint64(&m.malformedCounts[idx], 1)
	}
}

// ObserveDelivery measures one extension invocation.
func (m *Metrics) ObserveDelivery(d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.deliveries, 1)
	m.extensionLatency.Observe(d)
}

// IncSkipped records a delivery withheld by an instrument filter.
func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.skipped, 1)
}

// IncFailure records a failed extension invocation.
func (m *Metrics) IncFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.failures, 1)
}

// IncMisconfigured records an extension skipped for having no instruments.
func (m *Metrics) IncMisconfigured() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.misconfigured, 1)
}

// IncAnomaly records a reconciliation anomaly.
func (m *Metrics) IncAnomaly() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.anomalies, 1)
}

// IncQueueDrop records a queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		EventCounts:      topicCounts(&m.eventCounts),
		MalformedCounts:  topicCounts(&m.malformedCounts),
		Deliveries:       atomic.LoadUint64(&m.deliveries),
		Skipped:          atomic.LoadUint64(&m.skipped),
		Failures:         atomic.LoadUint64(&m.failures),
		Misconfigured:    atomic.LoadUint64(&m.misconfigured),
		Anomalies:        atomic.LoadUint64(&m.anomalies),
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		QueueClosed:      atomic.LoadUint64(&m.queueClosed),
		DispatchLatency:  m.dispatchLatency.Snapshot(),
		ExtensionLatency: m.extensionLatency.Snapshot(),
	}
}

func topicCounts(counts *[maxTopic + 1]uint64) map[enum.Topic]uint64 {
	out := make(map[enum.Topic]uint64)
	for i := range counts {
		if v := atomic.LoadUint64(&counts[i]); v > 0 {
			out[enum.Topic(i)] = v
		}
	}
	return out
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
