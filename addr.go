package bleperiph

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph/sliceops"
)

// Addr is a 6-byte Bluetooth device address, stored in over-the-air
// (little-endian) order.
type Addr [6]byte

// ParseAddr parses an address written most significant byte first, either
// colon separated ("AA:BB:CC:DD:EE:FF") or as 12 hex digits.
func ParseAddr(s string) (Addr, error) {
	var a Addr
	hexStr := strings.Replace(strings.Replace(s, ":", "", -1), "-", "", -1)
	if len(hexStr) != 12 {
		return a, errors.Errorf("invalid address %q", s)
	}

	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return a, errors.Wrapf(err, "invalid address %q", s)
	}

	copy(a[:], sliceops.SwapBuf(b))
	return a, nil
}

// MustParseAddr is like ParseAddr but panics on error.
func MustParseAddr(s string) Addr {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the address most significant byte first, colon separated.
func (a Addr) String() string {
	be := sliceops.SwapBuf(a[:])
	parts := make([]string, len(be))
	for i, v := range be {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":")
}

// Bytes returns a copy of the raw over-the-air bytes.
func (a Addr) Bytes() []byte {
	out := make([]byte, len(a))
	copy(out, a[:])
	return out
}

func (a Addr) IsZero() bool {
	return a == Addr{}
}
