package bond

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
)

func testLTK(seed byte) bleperiph.LongTermKey {
	var k bleperiph.LongTermKey
	for i := range k {
		k[i] = seed + byte(i)
	}
	return k
}

func TestValueRoundTrip(t *testing.T) {
	levels := []bleperiph.SecurityLevel{
		bleperiph.NoEncryption,
		bleperiph.Encrypted,
		bleperiph.EncryptedAuthenticated,
	}
	for _, lvl := range levels {
		in := Value{LTK: testLTK(0x10), Security: lvl}
		buf := make([]byte, ValueSize)
		n, err := EncodeValue(in, buf)
		if err != nil || n != ValueSize {
			t.Fatalf("%s: encode returned %d, %v", lvl, n, err)
		}
		if buf[16] != byte(lvl) {
			t.Fatalf("%s: expected tag %d, got %d", lvl, lvl, buf[16])
		}
		if buf[0] != 0x10 || buf[15] != 0x1f {
			t.Fatalf("%s: ltk not stored in order: %x", lvl, buf)
		}

		out, err := DecodeValue(buf)
		if err != nil {
			t.Fatalf("%s: decode: %s", lvl, err)
		}
		if out != in {
			t.Fatalf("%s: expected %+v, got %+v", lvl, in, out)
		}
	}
}

func TestDecodeValueRejectsUnknownTag(t *testing.T) {
	for _, tag := range []byte{3, 0x7f, 0xff} {
		buf := make([]byte, ValueSize)
		buf[16] = tag
		if _, err := DecodeValue(buf); errors.Cause(err) != ErrInvalidData {
			t.Fatalf("tag %d: expected ErrInvalidData, got %v", tag, err)
		}
	}
}

func TestShortBuffers(t *testing.T) {
	if _, err := EncodeValue(Value{}, make([]byte, ValueSize-1)); errors.Cause(err) != ErrBufferTooSmall {
		t.Fatalf("encode value: expected ErrBufferTooSmall, got %v", err)
	}
	if _, err := DecodeValue(make([]byte, ValueSize-1)); errors.Cause(err) != ErrBufferTooSmall {
		t.Fatalf("decode value: expected ErrBufferTooSmall, got %v", err)
	}
	if _, err := EncodeKey(bleperiph.Addr{}, make([]byte, KeySize-1)); errors.Cause(err) != ErrBufferTooSmall {
		t.Fatalf("encode key: expected ErrBufferTooSmall, got %v", err)
	}
	if _, err := DecodeKey(make([]byte, 2)); errors.Cause(err) != ErrBufferTooSmall {
		t.Fatalf("decode key: expected ErrBufferTooSmall, got %v", err)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	a := bleperiph.MustParseAddr("C0:FF:EE:00:11:22")
	buf := make([]byte, KeySize)
	if n, err := EncodeKey(a, buf); err != nil || n != KeySize {
		t.Fatalf("encode returned %d, %v", n, err)
	}
	out, err := DecodeKey(buf)
	if err != nil || out != a {
		t.Fatalf("expected %s, got %s, %v", a, out, err)
	}
}
