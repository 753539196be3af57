package airthings

import "context"

// ConnState is the connection state of a Device.
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Device is a single paired sensor that has to be connected before its
// characteristics can be read. Connect and Disconnect are idempotent.
type Device interface {
	Address() string
	SerialNumber() string
	State() ConnState
	Connect(ctx context.Context) error
	Disconnect() error

	// ReadCharacteristic returns the raw value of the characteristic with the given uuid.
	// The read is abandoned when ctx is done.
	ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error)
}

type Reading struct {
	// units: % of relative Humidity
	Humidity float64 `json:"humidity"`

	// units: Bq/m3
	RadonShortTermAvg int `json:"radonStAvg"`

	// units: Bq/m3
	RadonLongTermAvg int `json:"radonLtAvg"`

	// units: degrees Celsius
	Temperature float64 `json:"temperature"`

	// units: hPa
	Pressure float64 `json:"pressure"`

	// units: ppm, nil when the sensor could not measure it this cycle
	Co2 *int `json:"co2,omitempty"`

	// units: ppb, nil when the sensor could not measure it this cycle
	Voc *int `json:"voc,omitempty"`
}
