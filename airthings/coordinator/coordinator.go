// Package coordinator serializes access to a single slow sensor and caches
// its last reading so that any number of concurrent callers cost at most one
// device transaction.
package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/airthings/airthings"
	"github.com/alepar/airthings/airthings/waveplus"
)

var ErrReadFailed = errors.New("sensor read failed")

// ReadError is returned when every attempt of a transaction failed and no
// earlier reading could be served instead.
type ReadError struct {
	Attempts int
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %s", ErrReadFailed, e.Attempts, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func (e *ReadError) Is(target error) bool {
	return target == ErrReadFailed
}

type entry struct {
	reading    airthings.Reading
	capturedAt time.Time
}

type Coordinator struct {
	device  airthings.Device
	policy  Policy
	logger  log.FieldLogger
	metrics *Metrics

	lock  *breakableLock
	cache atomic.Pointer[entry]

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a Coordinator for device. A nil logger uses the standard
// logrus logger and nil metrics are kept unregistered.
func New(device airthings.Device, policy Policy, logger log.FieldLogger, metrics *Metrics) *Coordinator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Coordinator{
		device:  device,
		policy:  policy,
		logger:  logger,
		metrics: metrics,
		lock:    newBreakableLock(),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Reading returns the current sensor reading and whether it came from cache.
//
// A transaction, once started, runs until it succeeds or its retries are
// exhausted even if the caller has gone away. When it fails the last known
// reading is returned as cached, however old it is.
func (c *Coordinator) Reading() (airthings.Reading, bool, error) {
	if e := c.fresh(); e != nil {
		c.metrics.CacheHits.Inc()
		return e.reading, true, nil
	}

	if broken := c.lock.acquire(c.policy.LockTimeout); broken {
		c.metrics.LockBreaks.Inc()
		c.logger.Warnf("transaction lock not acquired within %s, breaking it", c.policy.LockTimeout)
	}
	defer c.lock.release()

	// somebody may have refreshed the cache while we waited
	if e := c.fresh(); e != nil {
		c.metrics.CacheHits.Inc()
		return e.reading, true, nil
	}

	reading, err := c.transact()
	if err != nil {
		if e := c.cache.Load(); e != nil {
			c.metrics.StaleServed.Inc()
			c.logger.WithField("age", c.now().Sub(e.capturedAt)).Warnf("serving stale reading: %s", err)
			return e.reading, true, nil
		}
		c.metrics.ReadFailures.Inc()
		return airthings.Reading{}, false, err
	}

	c.cache.Store(&entry{reading: reading, capturedAt: c.now()})
	return reading, false, nil
}

func (c *Coordinator) fresh() *entry {
	e := c.cache.Load()
	if e == nil || c.now().Sub(e.capturedAt) >= c.policy.CacheTTL {
		return nil
	}
	return e
}

// transact runs connect, read and decode until a usable frame arrives or
// MaxRetries attempts have failed. The device is always left disconnected.
func (c *Coordinator) transact() (airthings.Reading, error) {
	c.metrics.Transactions.Inc()
	defer c.disconnect()

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxRetries; attempt++ {
		reading, err := c.attempt()
		if err == nil {
			c.logger.WithField("attempt", attempt).Debug("received new reading")
			return reading, nil
		}
		lastErr = err

		logger := c.logger.WithField("attempt", attempt)
		if errors.Is(err, waveplus.ErrBogusFrame) {
			c.metrics.BogusFrames.Inc()
			logger.Warn("discarding bogus frame")
		} else {
			c.metrics.ReadErrors.Inc()
			logger.Errorf("retrying error in read: %s", err)
			// start the next attempt from a fresh connection
			c.disconnect()
		}

		if attempt < c.policy.MaxRetries {
			c.sleep(c.policy.RetryBackoff)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts allowed")
	}
	return airthings.Reading{}, &ReadError{Attempts: c.policy.MaxRetries, Err: lastErr}
}

func (c *Coordinator) attempt() (airthings.Reading, error) {
	if c.device.State() != airthings.Connected {
		ctx, cancel := context.WithTimeout(context.Background(), c.policy.ConnectTimeout)
		err := c.device.Connect(ctx)
		cancel()
		if err != nil {
			return airthings.Reading{}, errors.Wrap(err, "failed to connect")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.policy.ReadTimeout)
	defer cancel()
	data, err := c.device.ReadCharacteristic(ctx, waveplus.SensorCharacteristicUUID)
	if err != nil {
		return airthings.Reading{}, errors.Wrap(err, "failed to read")
	}

	return waveplus.DecodeFrame(data)
}

func (c *Coordinator) disconnect() {
	if err := c.device.Disconnect(); err != nil {
		c.logger.Warnf("failed to disconnect: %s", err)
	}
}
