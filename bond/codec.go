package bond

import (
	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
)

const (
	// KeySize is the encoded length of a record key: the peer address.
	KeySize = 6

	// ValueSize is the encoded length of a record value: the LTK in
	// little-endian order followed by the security level tag.
	ValueSize = 17
)

var (
	ErrBufferTooSmall = errors.New("buffer too small")
	ErrInvalidData    = errors.New("invalid data")
)

// Value is the persisted part of a bond besides its address.
type Value struct {
	LTK      bleperiph.LongTermKey
	Security bleperiph.SecurityLevel
}

// EncodeKey writes the 6 address bytes into buf.
func EncodeKey(addr bleperiph.Addr, buf []byte) (int, error) {
	if len(buf) < KeySize {
		return 0, errors.Wrapf(ErrBufferTooSmall, "key needs %d bytes, have %d", KeySize, len(buf))
	}
	return copy(buf, addr[:]), nil
}

// DecodeKey reads an address from the first 6 bytes of buf.
func DecodeKey(buf []byte) (bleperiph.Addr, error) {
	var a bleperiph.Addr
	if len(buf) < KeySize {
		return a, errors.Wrapf(ErrBufferTooSmall, "key needs %d bytes, have %d", KeySize, len(buf))
	}
	copy(a[:], buf)
	return a, nil
}

// EncodeValue writes LTK and security tag into buf.
func EncodeValue(v Value, buf []byte) (int, error) {
	if len(buf) < ValueSize {
		return 0, errors.Wrapf(ErrBufferTooSmall, "value needs %d bytes, have %d", ValueSize, len(buf))
	}
	if !v.Security.Valid() {
		return 0, errors.Wrapf(ErrInvalidData, "security level %d", uint8(v.Security))
	}
	copy(buf, v.LTK[:])
	buf[16] = byte(v.Security)
	return ValueSize, nil
}

// DecodeValue reads a value encoded by EncodeValue. Tags other than 0, 1
// and 2 are rejected.
func DecodeValue(buf []byte) (Value, error) {
	var v Value
	if len(buf) < ValueSize {
		return v, errors.Wrapf(ErrBufferTooSmall, "value needs %d bytes, have %d", ValueSize, len(buf))
	}
	lvl := bleperiph.SecurityLevel(buf[16])
	if !lvl.Valid() {
		return v, errors.Wrapf(ErrInvalidData, "security tag 0x%02x", buf[16])
	}
	copy(v.LTK[:], buf[:16])
	v.Security = lvl
	return v, nil
}

func encodeRecord(info bleperiph.BondInfo) (key, value []byte, err error) {
	key = make([]byte, KeySize)
	if _, err = EncodeKey(info.Addr, key); err != nil {
		return nil, nil, err
	}
	value = make([]byte, ValueSize)
	if _, err = EncodeValue(Value{LTK: info.LTK, Security: info.Security}, value); err != nil {
		return nil, nil, err
	}
	return key, value, nil
}

func decodeRecord(key, value []byte) (*bleperiph.BondInfo, error) {
	a, err := DecodeKey(key)
	if err != nil {
		return nil, err
	}
	v, err := DecodeValue(value)
	if err != nil {
		return nil, err
	}
	return &bleperiph.BondInfo{Addr: a, LTK: v.LTK, Security: v.Security}, nil
}
