package airthings

import (
	"context"
	"strings"
)

type Scanner interface {

	// returns the first device accepted by the matcher
	Discover(ctx context.Context, matcher Matcher) (Device, error)
}

// Matcher selects a device either by its advertised manufacturer id or by
// a prefix of its device id. A non-empty DeviceID takes precedence.
type Matcher struct {
	ManufacturerID uint16
	DeviceID       string
}

// MatchID reports whether id starts with the configured DeviceID. Separators
// and case are ignored, so "A4:DA:32" matches "a4da32xxxxxx".
func (m Matcher) MatchID(id string) bool {
	if m.DeviceID == "" {
		return false
	}
	return strings.HasPrefix(normalizeID(id), normalizeID(m.DeviceID))
}

// MatchManufacturer reports whether the first two bytes of manufacturer data
// carry the configured company identifier (little-endian).
func (m Matcher) MatchManufacturer(manufacturerData []byte) bool {
	if len(manufacturerData) < 2 {
		return false
	}
	id := uint16(manufacturerData[0]) | uint16(manufacturerData[1])<<8
	return id == m.ManufacturerID
}

func normalizeID(id string) string {
	id = strings.ToLower(id)
	return strings.NewReplacer(":", "", "-", "").Replace(id)
}
