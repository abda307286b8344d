package advert

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Payload layout, offsets relative to the first octet after the company
// identifier:
//
//	0     type (0x12)
//	1     declared payload length (0x19)
//	2     status: bits 7-6 battery, bits 5-0 reserved
//	3-24  public key octets 6..27
//	25    key hint
//	26    rotation counter
const (
	TypeOfflineFinding    = 0x12
	StandardPayloadLength = 0x19
	// MinLength covers type, length and status.
	MinLength = 3
	// StandardLength is the size of a complete payload.
	StandardLength = MinLength + FragmentLength + 2

	tailLength = FragmentLength + 2
)

// ErrNotOfflineFinding is returned by callers that need an error for a payload
// Validate rejected.
var ErrNotOfflineFinding = errors.New("not an offline finding advertisement")

var log = logrus.WithField("component", "advert")

// Note is an informational discrepancy found while decoding. It never stops
// decoding.
type Note struct {
	Field   string
	Message string
}

func (n Note) String() string {
	return n.Field + ": " + n.Message
}

// Advertisement is the decoded form of one payload. Pointer fields are nil when
// the buffer ended before they could be read.
type Advertisement struct {
	Type          byte
	PayloadLength byte
	Status        *Status
	KeyFragment   *KeyFragment
	// ReconstructedKey is derived from the host supplied address, not read
	// off the wire.
	ReconstructedKey *PublicKey
	Address          *DeviceAddress
	KeyHint          *byte
	RotationCounter  *byte
	Notes            []Note
}

// Validate reports whether buf can be an offline finding payload. It must pass
// before Decode is called.
func Validate(buf []byte) bool {
	return len(buf) >= MinLength && buf[0] == TypeOfflineFinding
}

// Decode extracts every field that fits in buf. addr is optional; when set and
// a full fragment is present the 28-octet key is reconstructed from it.
// Decode does not re-check the type and never reads past len(buf). The result
// holds copies, buf is not retained.
func Decode(buf []byte, addr *DeviceAddress) Advertisement {
	var adv Advertisement
	c := &cursor{buf: buf}

	typ, ok := c.octet()
	if !ok {
		return adv
	}
	adv.Type = typ

	declared, ok := c.octet()
	if !ok {
		return adv
	}
	adv.PayloadLength = declared
	if declared != StandardPayloadLength {
		adv.Notes = append(adv.Notes, Note{
			Field:   "payload_length",
			Message: fmt.Sprintf("declared 0x%02X, expected 0x%02X", declared, StandardPayloadLength),
		})
	}

	raw, ok := c.octet()
	if !ok {
		return adv
	}
	status := ParseStatus(raw)
	adv.Status = &status

	remaining := c.remaining()
	log.WithFields(logrus.Fields{
		"offset":    c.off,
		"remaining": remaining,
		"length":    len(buf),
	}).Debug("status decoded")

	switch {
	case remaining >= tailLength:
		b, _ := c.next(FragmentLength)
		adv.KeyFragment = &KeyFragment{Bytes: clone(b)}
		if addr != nil {
			if key, ok := ReconstructKey(*addr, b); ok {
				a := *addr
				adv.Address = &a
				adv.ReconstructedKey = &key
			}
		}
		if hint, ok := c.octet(); ok {
			adv.KeyHint = &hint
		}
		if counter, ok := c.octet(); ok {
			adv.RotationCounter = &counter
		}
	case remaining > 0:
		b, _ := c.next(remaining)
		adv.KeyFragment = &KeyFragment{Bytes: clone(b), Truncated: true}
		log.WithField("fragment_length", remaining).Debug("key fragment truncated")
	}
	return adv
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
