// Package telemetry provides the lightweight counters the tag store reports to.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Counter is a cumulative metric that grows monotonically.
//
// The value is kept in-process so it can be read back without scraping; when
// a Prometheus counter is attached every increment is mirrored into it.
type Counter struct {
	name   string
	value  *atomic.Int64
	mirror prometheus.Counter
}

// NewCounter returns a new Counter. mirror may be nil.
func NewCounter(name string, mirror prometheus.Counter) *Counter {
	return &Counter{
		name:   name,
		value:  atomic.NewInt64(0),
		mirror: mirror,
	}
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add value atomically
func (c *Counter) Add(v int64) {
	if v <= 0 {
		// Counters are monotonic.
		return
	}
	c.value.Add(v)
	if c.mirror != nil {
		c.mirror.Add(float64(v))
	}
}

// Get value atomically
func (c *Counter) Get() int64 {
	return c.value.Load()
}

// Name of the counter.
func (c *Counter) Name() string {
	return c.name
}
