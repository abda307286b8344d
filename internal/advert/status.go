package advert

import "fmt"

// bitField locates a sub-field inside one octet.
type bitField struct {
	shift uint
	width uint
}

func (f bitField) extract(b byte) byte {
	return (b >> f.shift) & byte(1<<f.width-1)
}

var (
	batteryBits  = bitField{shift: 6, width: 2}
	reservedBits = bitField{shift: 0, width: 6}
)

// BatteryLevel is the 2-bit battery state carried in bits 7-6 of the status byte.
type BatteryLevel byte

const (
	BatteryFull BatteryLevel = iota
	BatteryMedium
	BatteryLow
	BatteryCritical
)

var batteryNames = [...]string{
	BatteryFull:     "Full",
	BatteryMedium:   "Medium",
	BatteryLow:      "Low",
	BatteryCritical: "Critical",
}

func (l BatteryLevel) String() string {
	if int(l) < len(batteryNames) {
		return batteryNames[l]
	}
	return fmt.Sprintf("BatteryLevel(%d)", byte(l))
}

// Status is the unpacked status byte. Reserved holds bits 5-0 verbatim and is
// never interpreted.
type Status struct {
	Raw          byte
	BatteryLevel BatteryLevel
	Reserved     byte
}

// ParseStatus unpacks a status byte.
func ParseStatus(b byte) Status {
	return Status{
		Raw:          b,
		BatteryLevel: BatteryLevel(batteryBits.extract(b)),
		Reserved:     reservedBits.extract(b),
	}
}
