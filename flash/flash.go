// Package flash provides the NOR flash abstraction the bond store lives on,
// plus a RAM-backed part for tests and a file-backed part for hosts that
// keep the image on disk.
package flash

import (
	"github.com/pkg/errors"
)

var (
	ErrOutOfBounds = errors.New("access out of flash bounds")
	ErrNotAligned  = errors.New("access not aligned")
)

// NorFlash is a multi-write NOR flash part. Erased bytes read as 0xFF and
// a write can only clear bits, so a word may be rewritten as long as the
// new value only flips 1s to 0s.
type NorFlash interface {
	// Read fills b from offset off. Reads need no alignment.
	Read(off uint32, b []byte) error

	// Write programs b at off. Both must be aligned to WriteSize.
	Write(off uint32, b []byte) error

	// Erase resets [from, to) to 0xFF. Both must be aligned to EraseSize.
	Erase(from, to uint32) error

	Capacity() uint32
	WriteSize() uint32
	EraseSize() uint32
}

func checkRead(f NorFlash, off uint32, n int) error {
	if uint64(off)+uint64(n) > uint64(f.Capacity()) {
		return errors.Wrapf(ErrOutOfBounds, "read %d bytes at 0x%x", n, off)
	}
	return nil
}

func checkWrite(f NorFlash, off uint32, n int) error {
	if uint64(off)+uint64(n) > uint64(f.Capacity()) {
		return errors.Wrapf(ErrOutOfBounds, "write %d bytes at 0x%x", n, off)
	}
	ws := f.WriteSize()
	if off%ws != 0 || uint32(n)%ws != 0 {
		return errors.Wrapf(ErrNotAligned, "write %d bytes at 0x%x", n, off)
	}
	return nil
}

func checkErase(f NorFlash, from, to uint32) error {
	if from > to || to > f.Capacity() {
		return errors.Wrapf(ErrOutOfBounds, "erase 0x%x..0x%x", from, to)
	}
	es := f.EraseSize()
	if from%es != 0 || to%es != 0 {
		return errors.Wrapf(ErrNotAligned, "erase 0x%x..0x%x", from, to)
	}
	return nil
}

// program applies NOR write semantics to dst.
func program(dst, src []byte) {
	for i := range src {
		dst[i] &= src[i]
	}
}

func erase(b []byte) {
	for i := range b {
		b[i] = 0xff
	}
}
