package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "waveplus"

type Metrics struct {
	CacheHits    prometheus.Counter
	Transactions prometheus.Counter
	LockBreaks   prometheus.Counter
	BogusFrames  prometheus.Counter
	ReadErrors   prometheus.Counter
	StaleServed  prometheus.Counter
	ReadFailures prometheus.Counter
}

// NewMetrics creates the coordinator counters and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	newCounter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		CacheHits:    newCounter("cache_hits_total", "Readings served from cache without a device transaction"),
		Transactions: newCounter("device_transactions_total", "Device transactions started"),
		LockBreaks:   newCounter("lock_breaks_total", "Times the transaction lock was forcibly broken after a timeout"),
		BogusFrames:  newCounter("bogus_frames_total", "Corrupted frames discarded"),
		ReadErrors:   newCounter("read_errors_total", "Failed connect or read attempts"),
		StaleServed:  newCounter("stale_readings_served_total", "Stale readings served after a failed transaction"),
		ReadFailures: newCounter("read_failures_total", "Requests failed with no reading available"),
	}
}
