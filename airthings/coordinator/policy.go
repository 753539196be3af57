package coordinator

import "time"

// Policy bounds how long a reading may be cached and how long callers and
// the device are waited on.
type Policy struct {
	// CacheTTL is how long a successful reading is served without touching the device.
	CacheTTL time.Duration

	// LockTimeout is how long a caller waits for an in-flight transaction before breaking the lock.
	LockTimeout time.Duration

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// RetryBackoff is the pause between two attempts of one transaction.
	RetryBackoff time.Duration
	MaxRetries   int
}

func DefaultPolicy() Policy {
	return Policy{
		CacheTTL:       4 * time.Minute,
		LockTimeout:    30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    2 * time.Second,
		RetryBackoff:   time.Second,
		MaxRetries:     5,
	}
}
