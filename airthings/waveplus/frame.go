package waveplus

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/alepar/airthings/airthings"
)

const (
	// FrameSize is the length of the sensor characteristic value.
	FrameSize = 20

	// sentinel the sensor reports for a channel it could not measure
	missingValue = 0xFFFF
)

var (
	ErrBogusFrame = errors.New("bogus sensor frame")
	ErrShortFrame = errors.New("short sensor frame")
)

type rawFrame struct {
	Version     uint8
	Humidity    uint8
	Unk2        uint8
	Unk3        uint8
	RadonShort  uint16
	RadonLong   uint16
	Temperature uint16
	AtmPressure uint16
	Co2         uint16
	Voc         uint16
	Unk10       uint16
	Unk11       uint16
}

// DecodeFrame converts the raw characteristic value into a Reading.
//
// The sensor occasionally returns a frame with every channel saturated. Such
// frames fail with ErrBogusFrame. A single saturated co2 or voc channel only
// leaves that field nil.
func DecodeFrame(data []byte) (airthings.Reading, error) {
	if len(data) < FrameSize {
		return airthings.Reading{}, errors.Wrapf(ErrShortFrame, "got %d bytes, want %d", len(data), FrameSize)
	}

	raw := rawFrame{}
	if err := binary.Read(bytes.NewReader(data[:FrameSize]), binary.LittleEndian, &raw); err != nil {
		return airthings.Reading{}, errors.Wrap(err, "failed to unpack sensor frame")
	}

	reading := airthings.Reading{
		Humidity:          float64(raw.Humidity) / 2.0,
		RadonShortTermAvg: int(raw.RadonShort),
		RadonLongTermAvg:  int(raw.RadonLong),
		Temperature:       float64(raw.Temperature) / 100.0,
		Pressure:          float64(raw.AtmPressure) / 50.0,
	}

	if reading.Humidity > 100 && reading.Temperature > 100 && raw.Co2 == missingValue && raw.Voc == missingValue {
		return airthings.Reading{}, ErrBogusFrame
	}

	if raw.Co2 != missingValue {
		co2 := int(raw.Co2)
		reading.Co2 = &co2
	}
	if raw.Voc != missingValue {
		voc := int(raw.Voc)
		reading.Voc = &voc
	}

	return reading, nil
}
