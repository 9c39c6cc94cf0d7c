package flash

import (
	"sync"

	"github.com/pkg/errors"
)

// Mem is a RAM-backed NorFlash. The Fail* fields inject errors into the
// matching operation.
type Mem struct {
	sync.Mutex
	b         []byte
	eraseSize uint32
	writeSize uint32

	FailReads  error
	FailWrites error
	FailErase  error
}

// NewMem returns an erased part of the given geometry.
func NewMem(capacity, eraseSize, writeSize uint32) *Mem {
	if eraseSize == 0 || writeSize == 0 || capacity%eraseSize != 0 {
		panic("flash: invalid geometry")
	}
	m := &Mem{
		b:         make([]byte, capacity),
		eraseSize: eraseSize,
		writeSize: writeSize,
	}
	erase(m.b)
	return m
}

func (m *Mem) Read(off uint32, b []byte) error {
	m.Lock()
	defer m.Unlock()
	if m.FailReads != nil {
		return m.FailReads
	}
	if err := checkRead(m, off, len(b)); err != nil {
		return err
	}
	copy(b, m.b[off:])
	return nil
}

func (m *Mem) Write(off uint32, b []byte) error {
	m.Lock()
	defer m.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	if err := checkWrite(m, off, len(b)); err != nil {
		return err
	}
	program(m.b[off:], b)
	return nil
}

func (m *Mem) Erase(from, to uint32) error {
	m.Lock()
	defer m.Unlock()
	if m.FailErase != nil {
		return m.FailErase
	}
	if err := checkErase(m, from, to); err != nil {
		return err
	}
	erase(m.b[from:to])
	return nil
}

func (m *Mem) Capacity() uint32  { return uint32(len(m.b)) }
func (m *Mem) WriteSize() uint32 { return m.writeSize }
func (m *Mem) EraseSize() uint32 { return m.eraseSize }

// Corrupt overwrites raw bytes, ignoring NOR semantics.
func (m *Mem) Corrupt(off uint32, data []byte) error {
	m.Lock()
	defer m.Unlock()
	if uint64(off)+uint64(len(data)) > uint64(len(m.b)) {
		return errors.Wrap(ErrOutOfBounds, "corrupt")
	}
	copy(m.b[off:], data)
	return nil
}

// Bytes returns a copy of the whole part.
func (m *Mem) Bytes() []byte {
	m.Lock()
	defer m.Unlock()
	out := make([]byte, len(m.b))
	copy(out, m.b)
	return out
}
