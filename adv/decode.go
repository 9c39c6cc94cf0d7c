package adv

import (
	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
)

// https://www.bluetooth.org/en-us/specification/assigned-numbers/generic-access-profile
var types = struct {
	flags       byte
	uuid16inc   byte
	uuid16comp  byte
	uuid32inc   byte
	uuid32comp  byte
	uuid128inc  byte
	uuid128comp byte
	nameshort   byte
	namecomp    byte
	txpwr       byte
}{
	flags:       0x01,
	uuid16inc:   0x02,
	uuid16comp:  0x03,
	uuid32inc:   0x04,
	uuid32comp:  0x05,
	uuid128inc:  0x06,
	uuid128comp: 0x07,
	nameshort:   0x08,
	namecomp:    0x09,
	txpwr:       0x0a,
}

var keys = struct {
	flags string
	uuids string
	name  string
	txpwr string
}{
	flags: "flags",
	uuids: "uuids",
	name:  "name",
	txpwr: "txpwr",
}

type pduRecord struct {
	arrayElementSz int
	minSz          int
	key            string
}

var pduDecodeMap = map[byte]pduRecord{
	types.uuid16inc:   {2, 2, keys.uuids},
	types.uuid16comp:  {2, 2, keys.uuids},
	types.uuid32inc:   {4, 4, keys.uuids},
	types.uuid32comp:  {4, 4, keys.uuids},
	types.uuid128inc:  {16, 16, keys.uuids},
	types.uuid128comp: {16, 16, keys.uuids},
	types.namecomp:    {0, 1, keys.name},
	types.nameshort:   {0, 1, keys.name},
	types.txpwr:       {0, 1, keys.txpwr},
	types.flags:       {0, 1, keys.flags},
}

// Fields is a decoded advertising payload.
type Fields struct {
	m map[string][][]byte
}

// Decode parses a payload made of AD structures. Unknown types are skipped.
func Decode(pdu []byte) (*Fields, error) {
	if len(pdu) == 0 {
		return nil, errors.New("nil/empty pdu")
	}

	m := make(map[string][][]byte)
	for i := 0; (i + 1) < len(pdu); {
		//length @ offset 0
		//type @ offset 1
		//data @ 2 - length
		length := int(pdu[i])
		typ := pdu[i+1]

		// zero length terminates the significant part
		if length == 0 {
			break
		}

		if (i + length) >= len(pdu) {
			return nil, errors.Errorf("buffer overflow: want %v, have %v", i+length+1, len(pdu))
		}

		b := pdu[i+2 : i+1+length]

		if dec, ok := pduDecodeMap[typ]; ok {
			if dec.minSz > len(b) {
				return nil, errors.Errorf("adv type %v: min length %v, have %v", typ, dec.minSz, len(b))
			}

			if dec.arrayElementSz > 0 {
				if len(b)%dec.arrayElementSz != 0 {
					return nil, errors.Errorf("adv type %v: length %v not a multiple of %v", typ, len(b), dec.arrayElementSz)
				}
				for j := 0; j < len(b); j += dec.arrayElementSz {
					m[dec.key] = append(m[dec.key], b[j:j+dec.arrayElementSz])
				}
			} else {
				m[dec.key] = append(m[dec.key], b)
			}
		}

		i += length + 1
	}

	return &Fields{m: m}, nil
}

func (f *Fields) first(k string) ([]byte, bool) {
	v := f.m[k]
	if len(v) == 0 {
		return nil, false
	}
	return v[0], true
}

// Flags returns the flags of the packet.
func (f *Fields) Flags() (flags byte, present bool) {
	if b, ok := f.first(keys.flags); ok {
		return b[0], true
	}
	return 0, false
}

// LocalName returns the short or complete local name, if present.
func (f *Fields) LocalName() string {
	b, _ := f.first(keys.name)
	return string(b)
}

// TxPower returns the TxPower, if it presents.
func (f *Fields) TxPower() (power int, present bool) {
	if b, ok := f.first(keys.txpwr); ok {
		return int(int8(b[0])), true
	}
	return 0, false
}

// UUIDs returns a list of service UUIDs.
func (f *Fields) UUIDs() []bleperiph.UUID {
	var u []bleperiph.UUID
	for _, b := range f.m[keys.uuids] {
		u = append(u, bleperiph.UUID(b))
	}
	return u
}
