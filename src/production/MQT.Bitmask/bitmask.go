// Package bitmask holds the pin arithmetic shared by the API and the
// scheduler, plus the 2-byte wire encoding of a mask.
package bitmask

import (
	"encoding/binary"
	"errors"
	"fmt"

	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
)

// PinCount is the number of addressable pins in a mask
const PinCount = 16

// WireSize is the length of an encoded mask
const WireSize = 2

// ErrInvalidLength is returned by Decode for payloads that are not exactly WireSize bytes
var ErrInvalidLength = errors.New("device state must be exactly 2 bytes")

// ValidPin reports whether pin addresses a bit of a 16-bit mask
func ValidPin(pin int) bool {
	return pin >= 0 && pin < PinCount
}

// Apply returns mask with the pin switched according to action, and whether
// that differs from the input. Pins outside 0-15 leave the mask untouched.
func Apply(mask uint16, pin int, action mqtmodels.Action) (uint16, bool) {
	if !ValidPin(pin) {
		return mask, false
	}
	pinBit := uint16(1) << uint(pin)

	switch action {
	case mqtmodels.ActionOn:
		if mask&pinBit == 0 {
			return mask | pinBit, true
		}
	case mqtmodels.ActionOff:
		if mask&pinBit != 0 {
			return mask &^ pinBit, true
		}
	}
	return mask, false
}

// IsOn reports whether pin is set in mask
func IsOn(mask uint16, pin int) bool {
	if !ValidPin(pin) {
		return false
	}
	return mask&(uint16(1)<<uint(pin)) != 0
}

// Encode writes mask as 2 bytes, big-endian
func Encode(mask uint16) []byte {
	buf := make([]byte, WireSize)
	binary.BigEndian.PutUint16(buf, mask)
	return buf
}

// Decode parses a 2-byte big-endian mask
func Decode(payload []byte) (uint16, error) {
	if len(payload) != WireSize {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidLength, len(payload))
	}
	return binary.BigEndian.Uint16(payload), nil
}
