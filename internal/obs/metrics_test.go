package obs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradecore/internal/model/enum"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveEvent(enum.TopicTick, time.Millisecond)
	m.IncFailure()
	m.IncQueueDrop()
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				m.ObserveEvent(enum.TopicTrade, time.Microsecond)
				m.ObserveDelivery(2 * time.Microsecond)
			}
		}()
	}
	wg.Wait()

	m.IncMalformed(enum.TopicTick)
	m.IncMalformed(enum.Topic(250))
	m.IncSkipped()
	m.IncMisconfigured()
	m.IncAnomaly()
	m.IncQueueClosed()

	snap := m.Snapshot()
	assert.Equal(t, map[enum.Topic]uint64{enum.TopicTrade: 100}, snap.EventCounts)
	assert.Equal(t, map[enum.Topic]uint64{enum.TopicTick: 1}, snap.MalformedCounts)
	assert.Equal(t, uint64(100), snap.Deliveries)
	assert.Equal(t, uint64(1), snap.Skipped)
	assert.Equal(t, uint64(1), snap.Misconfigured)
	assert.Equal(t, uint64(1), snap.Anomalies)
	assert.Equal(t, uint64(1), snap.QueueClosed)
	assert.Equal(t, uint64(100), snap.DispatchLatency.Count)
	assert.Equal(t, time.Microsecond, snap.DispatchLatency.Avg)
	assert.Equal(t, 2*time.Microsecond, snap.ExtensionLatency.Max)
}

func TestLatencyStatsMinMax(t *testing.T) {
	var l LatencyStats
	assert.Equal(t, LatencySnapshot{}, l.Snapshot())
	l.Observe(3 * time.Millisecond)
	l.Observe(time.Millisecond)
	l.Observe(-time.Second)
	l.Observe(5 * time.Millisecond)

	snap := l.Snapshot()
	assert.Equal(t, uint64(3), snap.Count)
	assert.Equal(t, time.Millisecond, snap.Min)
	assert.Equal(t, 5*time.Millisecond, snap.Max)
	assert.Equal(t, 3*time.Millisecond, snap.Avg)
}
