package bleperiph

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// A UUID is a BLE UUID, stored little-endian as it appears on the air.
type UUID []byte

// UUID16 converts a uint16 (such as 0x180F) to a UUID.
func UUID16(i uint16) UUID {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, i)
	return UUID(b)
}

// Parse parses "180f" style 16-bit UUIDs and the canonical 128-bit form
// "12345678-1234-5678-1234-56789abcdef0".
func Parse(s string) (UUID, error) {
	if len(s) == 4 {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return UUID(Reverse(b)), nil
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid uuid %q", s)
	}
	return UUID(Reverse(u[:])), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) UUID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Len returns the length of the UUID in bytes, 2 or 16.
func (u UUID) Len() int {
	return len(u)
}

// Uint16 returns the value of a 16-bit UUID, 0 for 128-bit ones.
func (u UUID) Uint16() uint16 {
	if len(u) != 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(u)
}

func (u UUID) String() string {
	if len(u) == 16 {
		var v uuid.UUID
		copy(v[:], Reverse(u))
		return v.String()
	}
	return fmt.Sprintf("%x", Reverse(u))
}

// Equal reports whether u and v are the same UUID.
func (u UUID) Equal(v UUID) bool {
	return bytes.Equal(u, v)
}

// Reverse returns a reversed copy of u.
func Reverse(u []byte) []byte {
	l := len(u)
	b := make([]byte, l)
	for i := 0; i < l; i++ {
		b[l-i-1] = u[i]
	}
	return b
}
