//go:build linux || darwin

package flash

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.img")

	f, err := OpenFile(path, 8192, 4096)
	if err != nil {
		t.Fatalf("open: %s", err)
	}
	if err := f.Write(10, []byte("bond")); err != nil {
		t.Fatalf("write: %s", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %s", err)
	}

	f, err = OpenFile(path, 8192, 4096)
	if err != nil {
		t.Fatalf("reopen: %s", err)
	}
	defer f.Close()

	b := make([]byte, 6)
	if err := f.Read(9, b); err != nil {
		t.Fatalf("read: %s", err)
	}
	if exp := []byte{0xff, 'b', 'o', 'n', 'd', 0xff}; !bytes.Equal(b, exp) {
		t.Fatalf("expected %x, got %x", exp, b)
	}

	if _, err := OpenFile(path, 4096, 4096); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}
