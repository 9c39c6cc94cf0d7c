//go:build linux || darwin

package flash

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// File is a NorFlash image kept in a memory-mapped file. Missing files are
// created erased.
type File struct {
	sync.Mutex
	f         *os.File
	b         []byte
	eraseSize uint32
}

// OpenFile maps the image at path, creating it if needed. Writes are
// byte granular.
func OpenFile(path string, capacity, eraseSize uint32) (*File, error) {
	if eraseSize == 0 || capacity == 0 || capacity%eraseSize != 0 {
		return nil, errors.Errorf("invalid geometry: capacity %d, erase size %d", capacity, eraseSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "can't open flash image")
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "can't stat flash image")
	}

	fresh := st.Size() == 0
	if st.Size() != 0 && st.Size() != int64(capacity) {
		f.Close()
		return nil, errors.Errorf("flash image %s is %d bytes, want %d", path, st.Size(), capacity)
	}
	if fresh {
		if err := f.Truncate(int64(capacity)); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "can't size flash image")
		}
	}

	b, err := unix.Mmap(int(f.Fd()), 0, int(capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "can't map flash image")
	}

	ff := &File{f: f, b: b, eraseSize: eraseSize}
	if fresh {
		erase(ff.b)
		if err := ff.sync(); err != nil {
			ff.Close()
			return nil, err
		}
	}
	return ff, nil
}

func (f *File) Read(off uint32, b []byte) error {
	f.Lock()
	defer f.Unlock()
	if err := checkRead(f, off, len(b)); err != nil {
		return err
	}
	copy(b, f.b[off:])
	return nil
}

func (f *File) Write(off uint32, b []byte) error {
	f.Lock()
	defer f.Unlock()
	if err := checkWrite(f, off, len(b)); err != nil {
		return err
	}
	program(f.b[off:], b)
	return f.sync()
}

func (f *File) Erase(from, to uint32) error {
	f.Lock()
	defer f.Unlock()
	if err := checkErase(f, from, to); err != nil {
		return err
	}
	erase(f.b[from:to])
	return f.sync()
}

func (f *File) Capacity() uint32  { return uint32(len(f.b)) }
func (f *File) WriteSize() uint32 { return 1 }
func (f *File) EraseSize() uint32 { return f.eraseSize }

func (f *File) sync() error {
	if err := unix.Msync(f.b, unix.MS_SYNC); err != nil {
		return errors.Wrap(err, "msync")
	}
	return nil
}

// Close unmaps and closes the image.
func (f *File) Close() error {
	f.Lock()
	defer f.Unlock()
	if f.b == nil {
		return nil
	}
	err := unix.Munmap(f.b)
	f.b = nil
	if cerr := f.f.Close(); err == nil {
		err = cerr
	}
	return err
}
