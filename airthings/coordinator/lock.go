package coordinator

import "time"

// breakableLock is a mutex whose acquire stops waiting after a timeout and
// takes the lock over from whoever holds it.
//
// A broken lock is not exclusive: the previous holder keeps running and its
// release frees the slot of the new holder. Waiters are not served in order.
type breakableLock struct {
	slot chan struct{}
}

func newBreakableLock() *breakableLock {
	return &breakableLock{slot: make(chan struct{}, 1)}
}

// acquire reports whether the lock had to be broken.
func (l *breakableLock) acquire(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.slot <- struct{}{}:
		return false
	case <-timer.C:
	}

	l.release()
	// another waiter may win the freed slot; proceed regardless
	select {
	case l.slot <- struct{}{}:
	default:
	}
	return true
}

func (l *breakableLock) release() {
	select {
	case <-l.slot:
	default:
	}
}
