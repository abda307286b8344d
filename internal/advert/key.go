package advert

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// AddressLength is the size of a BLE link-layer address.
	AddressLength = 6
	// FragmentLength is the number of public key octets carried in the payload.
	FragmentLength = 22
	// PublicKeyLength is the size of a 28-octet P-224 x-coordinate advertisement key.
	PublicKeyLength = AddressLength + FragmentLength
)

// DeviceAddress is the 6-octet advertising address, most significant octet first.
type DeviceAddress [AddressLength]byte

// ParseDeviceAddress accepts "AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff",
// "aabb.ccdd.eeff" or plain hex.
func ParseDeviceAddress(s string) (DeviceAddress, error) {
	var addr DeviceAddress
	clean := strings.NewReplacer(":", "", "-", "", ".", "", " ", "").Replace(strings.TrimSpace(s))
	if len(clean) != AddressLength*2 {
		return addr, fmt.Errorf("device address must be %d bytes, got %q", AddressLength, s)
	}
	if _, err := hex.Decode(addr[:], []byte(clean)); err != nil {
		return addr, fmt.Errorf("invalid device address hex %q: %w", s, err)
	}
	return addr, nil
}

func (a DeviceAddress) String() string {
	var b strings.Builder
	b.Grow(AddressLength*3 - 1)
	for i, octet := range a {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02X", octet)
	}
	return b.String()
}

// KeyFragment holds the key octets copied out of the payload. Truncated is set
// when the payload ended before a full fragment plus hint and counter.
type KeyFragment struct {
	Bytes     []byte
	Truncated bool
}

func (f KeyFragment) String() string {
	return hexUpper(f.Bytes)
}

// PublicKey is a 28-octet advertisement key rebuilt as address ++ fragment.
// It is a syntactic reconstruction; nothing verifies that the address used is
// the one the accessory derived the key with.
type PublicKey [PublicKeyLength]byte

// ReconstructKey concatenates the device address and a full 22-octet fragment.
// It returns false for any fragment that is not exactly FragmentLength long.
func ReconstructKey(addr DeviceAddress, fragment []byte) (PublicKey, bool) {
	var key PublicKey
	if len(fragment) != FragmentLength {
		return key, false
	}
	copy(key[:AddressLength], addr[:])
	copy(key[AddressLength:], fragment)
	return key, true
}

func (k PublicKey) String() string {
	return hexUpper(k[:])
}

func hexUpper(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
