package ble

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// A UUID is a BLE attribute UUID, stored little-endian as it appears on
// the wire. It is either 2, 4, or 16 bytes long.
type UUID []byte

// UUID16 converts a uint16 (such as 0x1800) to a UUID.
func UUID16(i uint16) UUID {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, i)
	return UUID(b)
}

// UUID32 converts a uint32 to a 32-bit UUID.
func UUID32(i uint32) UUID {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, i)
	return UUID(b)
}

// Parse parses a standard-format UUID string, such as "1800" or
// "34DA3AD1-7110-41A1-B1EF-4430F509CDE7", into its little-endian wire form.
func Parse(s string) (UUID, error) {
	s = strings.Replace(s, "-", "", -1)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if err := lenErr(len(b)); err != nil {
		return nil, err
	}
	return UUID(Reverse(b)), nil
}

// MustParse parses a standard-format UUID string, like Parse, but panics
// in case of error.
func MustParse(s string) UUID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// lenErr returns an error if n is an invalid UUID length.
func lenErr(n int) error {
	switch n {
	case 2, 4, 16:
		return nil
	}
	return fmt.Errorf("ble: UUIDs must have length 2, 4, or 16, got %d", n)
}

// Len returns the length of the UUID, in bytes.
func (u UUID) Len() int {
	return len(u)
}

// String hex-encodes a UUID in its canonical, big-endian display form.
func (u UUID) String() string {
	return fmt.Sprintf("%X", Reverse(u))
}

// Is16Bit reports whether u is a 16-bit short-form UUID.
func (u UUID) Is16Bit() bool {
	return len(u) == 2
}

// Equal reports whether v represents the same UUID as u, comparing on
// the 128-bit canonical form so that a 16-bit Bluetooth SIG UUID compares
// equal to its 128-bit expansion.
func (u UUID) Equal(v UUID) bool {
	return bytes.Equal(u.canonical(), v.canonical())
}

// canonical expands u to its 128-bit Bluetooth Base UUID form when it is
// a short-form UUID, leaving 128-bit UUIDs untouched.
func (u UUID) canonical() []byte {
	switch len(u) {
	case 16:
		return u
	case 2, 4:
		b := make([]byte, 16)
		copy(b, bluetoothBaseUUID)
		copy(b[12:], u) // the short value occupies bytes 12.. of the little-endian form
		return b
	default:
		return u
	}
}

// bluetoothBaseUUID is the little-endian wire form of
// 00000000-0000-1000-8000-00805F9B34FB, the base UUID that every 16- and
// 32-bit Bluetooth SIG UUID expands into.
var bluetoothBaseUUID = []byte{
	0xFB, 0x34, 0x9B, 0x5F, 0x80, 0x00, 0x00, 0x80,
	0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Contains reports whether u is in the slice s. A nil slice matches
// everything, matching the discovery filter convention used throughout C6.
func Contains(s []UUID, u UUID) bool {
	if s == nil {
		return true
	}
	for _, a := range s {
		if a.Equal(u) {
			return true
		}
	}
	return false
}

// Reverse returns a reversed copy of u.
func Reverse(u []byte) []byte {
	l := len(u)
	if l == 2 {
		return []byte{u[1], u[0]}
	}
	b := make([]byte, l)
	for i := 0; i < l/2+1; i++ {
		b[i], b[l-i-1] = u[l-i-1], u[i]
	}
	return b
}

// Name returns the Bluetooth SIG assigned name of a well-known service,
// characteristic, or descriptor UUID, or "" if u is not in the table.
func Name(u UUID) string {
	return knownUUID[strings.ToUpper(u.String())]
}

// knownUUID is a small dictionary of assigned-number UUIDs this module
// cares about directly (GATT declaration/descriptor types and the ones
// named in const.go); it is not meant to be an exhaustive SIG registry.
var knownUUID = map[string]string{
	"2800": "Primary Service",
	"2801": "Secondary Service",
	"2802": "Include",
	"2803": "Characteristic",
	"2900": "Characteristic Extended Properties",
	"2901": "Characteristic User Description",
	"2902": "Client Characteristic Configuration",
	"2903": "Server Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
	"2905": "Characteristic Aggregate Format",
	"2A05": "Service Changed",
}
