package coordinator

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/alepar/airthings/airthings"
	"github.com/alepar/airthings/airthings/waveplus"
)

var errTransport = errors.New("le-connection-abort-by-local")

type step struct {
	data []byte
	err  error
}

// fakeDevice replays scripted read results; the last step repeats.
type fakeDevice struct {
	mu          sync.Mutex
	state       airthings.ConnState
	steps       []step
	connectErr  error
	readDelay   time.Duration
	blockFirst  chan struct{}
	connects    int
	reads       int
	disconnects int
}

func newFakeDevice(steps ...step) *fakeDevice {
	return &fakeDevice{steps: steps}
}

func (d *fakeDevice) Address() string      { return "a4:da:32:11:22:33" }
func (d *fakeDevice) SerialNumber() string { return "12345678" }

func (d *fakeDevice) State() airthings.ConnState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *fakeDevice) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connectErr != nil {
		return d.connectErr
	}
	if d.state != airthings.Connected {
		d.connects++
		d.state = airthings.Connected
	}
	return nil
}

func (d *fakeDevice) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == airthings.Connected {
		d.disconnects++
	}
	d.state = airthings.Disconnected
	return nil
}

func (d *fakeDevice) ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error) {
	d.mu.Lock()
	if d.state != airthings.Connected {
		d.mu.Unlock()
		return nil, waveplus.ErrNotConnected
	}
	d.reads++
	n := d.reads
	s := d.steps[min(n, len(d.steps))-1]
	block, delay := d.blockFirst, d.readDelay
	d.mu.Unlock()

	if n == 1 && block != nil {
		<-block
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.data, s.err
}

func (d *fakeDevice) setSteps(steps ...step) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.steps = steps
	d.reads = 0
}

func (d *fakeDevice) counts() (connects, reads, disconnects int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects, d.reads, d.disconnects
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func frame(humidity uint8, radonShort, radonLong, temperature, pressure, co2, voc uint16) []byte {
	buf := make([]byte, waveplus.FrameSize)
	buf[1] = humidity
	for i, v := range []uint16{radonShort, radonLong, temperature, pressure, co2, voc} {
		binary.LittleEndian.PutUint16(buf[4+2*i:], v)
	}
	return buf
}

var (
	goodFrame    = step{data: frame(90, 10, 12, 2137, 50675, 812, 512)}
	otherFrame   = step{data: frame(100, 20, 22, 2250, 50600, 900, 300)}
	partialFrame = step{data: frame(90, 10, 12, 2137, 50675, 0xFFFF, 512)}
	bogusFrame   = step{data: frame(255, 0xFFFF, 0xFFFF, 38220, 0xFFFF, 0xFFFF, 0xFFFF)}
	failedRead   = step{err: errTransport}
)
