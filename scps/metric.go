package scps

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ControllerMetrics contains atomic metrics for a Controller.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ControllerMetrics struct {
	// CommandCount indicates the number of commands written.
	CommandCount atomic.Uint64
	// ResponseCount indicates the number of complete replies received.
	ResponseCount atomic.Uint64
	// TimeoutCount indicates the number of commands that timed out.
	TimeoutCount atomic.Uint64
	// TransportErrCount indicates the number of commands that failed to write.
	TransportErrCount atomic.Uint64
	// DroppedChunkCount indicates the number of chunks received with no command in flight.
	DroppedChunkCount atomic.Uint64
	// ConnectCount indicates the number of Connect calls that opened a port.
	ConnectCount atomic.Uint64
	// ConnectFallbackCount indicates the number of forced-reset reconnects.
	ConnectFallbackCount atomic.Uint64

	verbCounts *xsync.MapOf[string, *xsync.Counter]
}

func newControllerMetrics() *ControllerMetrics {
	return &ControllerMetrics{
		verbCounts: xsync.NewMapOf[string, *xsync.Counter](),
	}
}

// VerbCount returns how many times verb has been sent.
func (m *ControllerMetrics) VerbCount(verb string) int64 {
	c, ok := m.verbCounts.Load(verb)
	if !ok {
		return 0
	}

	return c.Value()
}

// RangeVerbCounts calls f for every verb sent so far. Iteration stops when f
// returns false.
func (m *ControllerMetrics) RangeVerbCounts(f func(verb string, count int64) bool) {
	m.verbCounts.Range(func(verb string, c *xsync.Counter) bool {
		return f(verb, c.Value())
	})
}

func (m *ControllerMetrics) incCommandCount(verb string) {
	m.CommandCount.Add(1)

	c, _ := m.verbCounts.LoadOrCompute(verb, xsync.NewCounter)
	c.Inc()
}

func (m *ControllerMetrics) incResponseCount() {
	m.ResponseCount.Add(1)
}

func (m *ControllerMetrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *ControllerMetrics) incTransportErrCount() {
	m.TransportErrCount.Add(1)
}

func (m *ControllerMetrics) incDroppedChunkCount() {
	m.DroppedChunkCount.Add(1)
}

func (m *ControllerMetrics) incConnectCount() {
	m.ConnectCount.Add(1)
}

func (m *ControllerMetrics) incConnectFallbackCount() {
	m.ConnectFallbackCount.Add(1)
}
