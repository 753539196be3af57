package waveplus

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/airthings/airthings"
)

// ManufacturerID is the Bluetooth SIG company identifier of Corentium AS,
// the maker of the radio in the Wave Plus.
const ManufacturerID = 820

var ErrDeviceNotFound = errors.New("no matching device found")

type BleScanner struct {
	ScanDuration time.Duration
	Retries      int
	Logger       log.FieldLogger
}

func (scanner *BleScanner) Discover(ctx context.Context, matcher airthings.Matcher) (airthings.Device, error) {
	var lastErr error
	for i := 0; i < scanner.Retries; i++ {
		device, err := scanner.scan(ctx, matcher)
		if err == nil {
			return device, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			break
		}
		if i < scanner.Retries-1 {
			scanner.logger().Errorf("retrying error in scan: %s", err)
		}
	}

	if lastErr == nil {
		lastErr = ErrDeviceNotFound
	}
	return nil, errors.Wrap(lastErr, "all retries to scan failed")
}

func (scanner *BleScanner) scan(ctx context.Context, matcher airthings.Matcher) (airthings.Device, error) {
	scanCtx, cancel := context.WithTimeout(ctx, scanner.ScanDuration)
	defer cancel()

	ads, err := ble.Find(scanCtx, false, advFilter(matcher))
	if err != nil {
		switch errors.Cause(err) {
		case nil:
		case context.DeadlineExceeded:
		case context.Canceled:
			return nil, errors.Wrap(err, "scan for devices cancelled")
		default:
			return nil, errors.Wrap(err, "failed to scan for devices")
		}
	}

	for _, a := range ads {
		addr := a.Addr().String()
		serialNr := manufacturerDataToSerialNumber(a.ManufacturerData())
		scanner.logger().WithFields(log.Fields{
			"addr":     addr,
			"serialNr": serialNr,
			"rssi":     a.RSSI(),
		}).Info("found device")
		if matcher.DeviceID == "" {
			scanner.logger().Warnf("set DEVICE_ID=%s to skip the scan on next start", addr)
		}

		return &BleSensor{
			Addr:   addr,
			Serial: serialNr,
			Logger: scanner.logger(),
		}, nil
	}

	return nil, ErrDeviceNotFound
}

func (scanner *BleScanner) logger() log.FieldLogger {
	if scanner.Logger == nil {
		return log.StandardLogger()
	}
	return scanner.Logger
}

func advFilter(matcher airthings.Matcher) ble.AdvFilter {
	return func(a ble.Advertisement) bool {
		return matchAdvertisement(matcher, a.Addr().String(), a.Connectable(), a.ManufacturerData())
	}
}

func matchAdvertisement(matcher airthings.Matcher, addr string, connectable bool, manufacturerData []byte) bool {
	if matcher.DeviceID != "" {
		return matcher.MatchID(addr)
	}
	return connectable && len(manufacturerData) >= 6 && matcher.MatchManufacturer(manufacturerData)
}

func manufacturerDataToSerialNumber(manufacturerData []byte) string {
	if len(manufacturerData) < 6 {
		return ""
	}
	serialNumber := uint32(manufacturerData[2])
	serialNumber |= uint32(manufacturerData[3]) << 8
	serialNumber |= uint32(manufacturerData[4]) << 16
	serialNumber |= uint32(manufacturerData[5]) << 24
	return fmt.Sprint(serialNumber)
}
