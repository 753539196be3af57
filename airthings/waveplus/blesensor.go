package waveplus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/airthings/airthings"
)

const (
	SensorServiceUUID        = "b42e1c08ade711e489d3123b93f75cba"
	SensorCharacteristicUUID = "b42e2a68ade711e489d3123b93f75cba"

	// upper bound on waiting for the stack to confirm a disconnect
	disconnectWait = 5 * time.Second
)

var ErrNotConnected = errors.New("device not connected")

var sensorServiceUUID = ble.MustParse(SensorServiceUUID)

// BleSensor is a Wave Plus reached over the default ble.Device. It tracks
// its own connection so that callers can connect and disconnect freely.
type BleSensor struct {
	Addr   string
	Serial string
	Logger log.FieldLogger

	mu              sync.Mutex
	client          ble.Client
	done            chan struct{}
	characteristics map[string]*ble.Characteristic
}

func (sensor *BleSensor) Address() string {
	return sensor.Addr
}

func (sensor *BleSensor) SerialNumber() string {
	return sensor.Serial
}

func (sensor *BleSensor) State() airthings.ConnState {
	sensor.mu.Lock()
	defer sensor.mu.Unlock()
	if sensor.client == nil {
		return airthings.Disconnected
	}
	return airthings.Connected
}

func (sensor *BleSensor) Connect(ctx context.Context) error {
	sensor.mu.Lock()
	defer sensor.mu.Unlock()
	if sensor.client != nil {
		return nil
	}

	sensor.logger().Debugf("connecting to device")
	cln, err := ble.Dial(ctx, ble.NewAddr(sensor.Addr))
	if err != nil {
		return errors.Wrap(err, "couldn't connect to ble")
	}

	// Normally, the connection is disconnected by us after the read.
	// However, it can be asynchronously disconnected by the remote peripheral.
	// So we wait(detect) the disconnection in the go routine.
	done := make(chan struct{})
	go func() {
		<-cln.Disconnected()
		sensor.logger().Debugf("device disconnected")
		sensor.mu.Lock()
		if sensor.client == cln {
			sensor.client = nil
			sensor.characteristics = nil
		}
		sensor.mu.Unlock()
		close(done)
	}()

	sensor.client = cln
	sensor.done = done
	sensor.characteristics = map[string]*ble.Characteristic{}
	return nil
}

func (sensor *BleSensor) Disconnect() error {
	sensor.mu.Lock()
	cln, done := sensor.client, sensor.done
	sensor.client = nil
	sensor.characteristics = nil
	sensor.mu.Unlock()

	if cln == nil {
		return nil
	}

	sensor.logger().Debugf("closing connection")
	err := cln.CancelConnection()
	select {
	case <-done:
	case <-time.After(disconnectWait):
		sensor.logger().Warnf("device did not confirm disconnect within %s", disconnectWait)
	}
	return errors.Wrap(err, "failed to cancel connection")
}

func (sensor *BleSensor) ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error) {
	sensor.mu.Lock()
	cln := sensor.client
	sensor.mu.Unlock()
	if cln == nil {
		return nil, ErrNotConnected
	}

	type result struct {
		value []byte
		err   error
	}
	// go-ble reads cannot be cancelled; a timed out read keeps its goroutine until the stack gives up
	resc := make(chan result, 1)
	go func() {
		value, err := sensor.read(cln, uuid)
		resc <- result{value, err}
	}()

	select {
	case res := <-resc:
		return res.value, res.err
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "timeout reading characteristic")
	}
}

func (sensor *BleSensor) read(cln ble.Client, uuid string) ([]byte, error) {
	c, err := sensor.characteristic(cln, uuid)
	if err != nil {
		return nil, err
	}

	sensor.logger().Debugf("reading characteristic")
	value, err := cln.ReadCharacteristic(c)
	sensor.logger().Debugf("finished reading characteristic")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read characteristic value")
	}
	return value, nil
}

func (sensor *BleSensor) characteristic(cln ble.Client, uuid string) (*ble.Characteristic, error) {
	key := strings.ToLower(uuid)

	sensor.mu.Lock()
	c, ok := sensor.characteristics[key]
	sensor.mu.Unlock()
	if ok {
		return c, nil
	}

	charUUID, err := ble.Parse(uuid)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse characteristic uuid %q", uuid)
	}

	sensor.logger().Debugf("discovering services")
	services, err := cln.DiscoverServices([]ble.UUID{sensorServiceUUID})
	if err != nil {
		return nil, errors.Wrap(err, "couldn't discover services")
	}
	if len(services) == 0 {
		return nil, errors.New("did not find expected sensor service")
	}

	sensor.logger().Debugf("discovering characteristics")
	characteristics, err := cln.DiscoverCharacteristics([]ble.UUID{charUUID}, services[0])
	if err != nil {
		return nil, errors.Wrap(err, "couldn't discover characteristic")
	}
	if len(characteristics) == 0 {
		return nil, errors.New("did not find expected characteristic")
	}
	c = characteristics[0]

	sensor.mu.Lock()
	if sensor.client == cln && sensor.characteristics != nil {
		sensor.characteristics[key] = c
	}
	sensor.mu.Unlock()
	return c, nil
}

func (sensor *BleSensor) logger() log.FieldLogger {
	if sensor.Logger == nil {
		return log.WithField("addr", sensor.Addr)
	}
	return sensor.Logger.WithField("addr", sensor.Addr)
}
