package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CompanyApple is the Bluetooth SIG company identifier assigned to Apple.
const CompanyApple uint16 = 0x004C

var ErrTooShort = errors.New("manufacturer data too short")

// Frame is one manufacturer-specific data AD structure with the company
// identifier split off.
type Frame struct {
	Raw       []byte
	CompanyID uint16
	// Type is the first payload octet, used for dispatch only.
	Type    byte
	Payload []byte
}

// Parse splits manufacturer data into the little-endian company identifier and
// the payload that follows it.
func Parse(raw []byte) (Frame, error) {
	if len(raw) < 3 {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrTooShort, len(raw))
	}
	return Frame{
		Raw:       raw,
		CompanyID: binary.LittleEndian.Uint16(raw[0:2]),
		Type:      raw[2],
		Payload:   raw[2:],
	}, nil
}

// FromPayload wraps a payload whose company identifier was already stripped by
// the caller.
func FromPayload(companyID uint16, payload []byte) (Frame, error) {
	if len(payload) == 0 {
		return Frame{}, fmt.Errorf("%w: empty payload", ErrTooShort)
	}
	return Frame{
		Raw:       payload,
		CompanyID: companyID,
		Type:      payload[0],
		Payload:   payload,
	}, nil
}

// CompanyIDString returns the identifier in the 0xNNNN form used by the SIG
// assigned numbers list.
func (f Frame) CompanyIDString() string {
	return fmt.Sprintf("0x%04X", f.CompanyID)
}
