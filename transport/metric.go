package transport

import "sync/atomic"

// Metrics contains atomic counters for a Transport.
// They can be used as the value of a prometheus CounterFunc.
type Metrics struct {
	// OpenCount is the number of successful port opens.
	OpenCount atomic.Uint64
	// OpenErrCount is the number of failed port opens.
	OpenErrCount atomic.Uint64
	// BytesRead is the number of bytes delivered to the chunk handler.
	BytesRead atomic.Uint64
	// BytesWritten is the number of bytes written to the port.
	BytesWritten atomic.Uint64
	// ReadErrCount is the number of read errors seen while the port was open.
	ReadErrCount atomic.Uint64
	// WriteErrCount is the number of failed writes.
	WriteErrCount atomic.Uint64
}

func (m *Metrics) incOpenCount()         { m.OpenCount.Add(1) }
func (m *Metrics) incOpenErrCount()      { m.OpenErrCount.Add(1) }
func (m *Metrics) addBytesRead(n int)    { m.BytesRead.Add(uint64(n)) }
func (m *Metrics) addBytesWritten(n int) { m.BytesWritten.Add(uint64(n)) }
func (m *Metrics) incReadErrCount()      { m.ReadErrCount.Add(1) }
func (m *Metrics) incWriteErrCount()     { m.WriteErrCount.Add(1) }
