package kvlog

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph/flash"
)

// two 256 byte pages behind a 256 byte gap
func newTestMap() (*Map, *flash.Mem) {
	f := flash.NewMem(1024, 256, 4)
	return New(f, Region{Start: 256, End: 768}), f
}

func key(i int) []byte {
	return []byte(fmt.Sprintf("key%03d", i))
}

func value(i, gen int) []byte {
	v := bytes.Repeat([]byte{byte(i)}, 17)
	v[16] = byte(gen)
	return v
}

func TestFreshRegionIsEmpty(t *testing.T) {
	m, f := newTestMap()

	v, err := m.Fetch(key(1))
	if err != nil || v != nil {
		t.Fatalf("expected nil value and error, got %x, %v", v, err)
	}
	k, v, err := m.First()
	if err != nil || k != nil || v != nil {
		t.Fatalf("expected empty first, got %x, %x, %v", k, v, err)
	}
	if err := m.Remove(key(1)); err != nil {
		t.Fatalf("remove on fresh region: %s", err)
	}

	for i, b := range f.Bytes() {
		if b != 0xff {
			t.Fatalf("reads must not format the region, byte %d is %x", i, b)
		}
	}
}

func TestStoreFetchLatestWins(t *testing.T) {
	m, _ := newTestMap()

	for gen := 0; gen < 3; gen++ {
		if err := m.Store(key(1), value(1, gen)); err != nil {
			t.Fatalf("store: %s", err)
		}
	}

	v, err := m.Fetch(key(1))
	if err != nil {
		t.Fatalf("fetch: %s", err)
	}
	if !bytes.Equal(v, value(1, 2)) {
		t.Fatalf("expected %x, got %x", value(1, 2), v)
	}
}

func TestRemove(t *testing.T) {
	m, _ := newTestMap()

	if err := m.Store(key(1), value(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := m.Store(key(1), value(1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := m.Store(key(2), value(2, 0)); err != nil {
		t.Fatal(err)
	}

	if err := m.Remove(key(1)); err != nil {
		t.Fatalf("remove: %s", err)
	}
	if v, err := m.Fetch(key(1)); err != nil || v != nil {
		t.Fatalf("expected removed key to be gone, got %x, %v", v, err)
	}
	if v, _ := m.Fetch(key(2)); !bytes.Equal(v, value(2, 0)) {
		t.Fatalf("unrelated key affected: %x", v)
	}
}

func TestIterOrderAndFirst(t *testing.T) {
	m, _ := newTestMap()

	for i := 1; i <= 3; i++ {
		if err := m.Store(key(i), value(i, 0)); err != nil {
			t.Fatal(err)
		}
	}
	k, _, err := m.First()
	if err != nil || !bytes.Equal(k, key(1)) {
		t.Fatalf("expected first %s, got %s, %v", key(1), k, err)
	}

	// rewriting key 1 moves it behind the others
	if err := m.Store(key(1), value(1, 1)); err != nil {
		t.Fatal(err)
	}

	var keys []string
	err = m.Iter(func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if err != nil {
		t.Fatalf("iter: %s", err)
	}
	exp := []string{"key002", "key003", "key001"}
	if fmt.Sprint(keys) != fmt.Sprint(exp) {
		t.Fatalf("expected %v, got %v", exp, keys)
	}

	k, _, _ = m.First()
	if !bytes.Equal(k, key(2)) {
		t.Fatalf("expected first %s, got %s", key(2), k)
	}
}

func TestCompaction(t *testing.T) {
	m, _ := newTestMap()

	for gen := 0; gen < 40; gen++ {
		for i := 0; i < 3; i++ {
			if err := m.Store(key(i), value(i, gen)); err != nil {
				t.Fatalf("store gen %d key %d: %s", gen, i, err)
			}
		}
	}

	for i := 0; i < 3; i++ {
		v, err := m.Fetch(key(i))
		if err != nil {
			t.Fatalf("fetch: %s", err)
		}
		if !bytes.Equal(v, value(i, 39)) {
			t.Fatalf("key %d: expected %x, got %x", i, value(i, 39), v)
		}
	}
}

func TestFull(t *testing.T) {
	m, _ := newTestMap()

	// 32 byte items, 7 fit in a page
	for i := 0; i < 7; i++ {
		if err := m.Store(key(i), value(i, 0)); err != nil {
			t.Fatalf("store %d: %s", i, err)
		}
	}
	if err := m.Store(key(7), value(7, 0)); errors.Cause(err) != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	for i := 0; i < 7; i++ {
		if v, err := m.Fetch(key(i)); err != nil || !bytes.Equal(v, value(i, 0)) {
			t.Fatalf("key %d lost after ErrFull: %x, %v", i, v, err)
		}
	}
}

func TestItemTooBig(t *testing.T) {
	m, _ := newTestMap()
	if err := m.Store(key(1), make([]byte, 250)); errors.Cause(err) != ErrItemTooBig {
		t.Fatalf("expected ErrItemTooBig, got %v", err)
	}
	if err := m.Store(nil, []byte{1}); errors.Cause(err) != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestCorruptedMarkers(t *testing.T) {
	m, f := newTestMap()
	if err := m.Store(key(1), value(1, 0)); err != nil {
		t.Fatal(err)
	}

	if err := f.Corrupt(256, []byte{0x12, 0x34}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Fetch(key(1)); errors.Cause(err) != ErrCorrupted {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
	if err := m.Remove(key(1)); errors.Cause(err) != ErrCorrupted {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
}

func TestRecoverUnopenedNextPage(t *testing.T) {
	m, f := newTestMap()
	if err := m.Store(key(1), value(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := m.Store(key(2), value(2, 0)); err != nil {
		t.Fatal(err)
	}

	// page 0 closed, page 1 never opened
	if err := f.Corrupt(256+4, closedMarker); err != nil {
		t.Fatal(err)
	}

	if v, err := m.Fetch(key(1)); err != nil || !bytes.Equal(v, value(1, 0)) {
		t.Fatalf("expected stored value, got %x, %v", v, err)
	}
	if err := m.Store(key(3), value(3, 0)); err != nil {
		t.Fatalf("store: %s", err)
	}
	for i := 1; i <= 3; i++ {
		if v, err := m.Fetch(key(i)); err != nil || !bytes.Equal(v, value(i, 0)) {
			t.Fatalf("key %d: got %x, %v", i, v, err)
		}
	}

	b := f.Bytes()
	if !bytes.Equal(b[512:516], openMarker) {
		t.Fatalf("expected page 1 open, markers % x", b[512:520])
	}
	if !bytes.Equal(b[256:264], bytes.Repeat([]byte{0xff}, 8)) {
		t.Fatalf("expected page 0 compacted and erased, markers % x", b[256:264])
	}
}

func TestRecoverUnclosedPage(t *testing.T) {
	m, f := newTestMap()
	if err := m.Store(key(1), value(1, 0)); err != nil {
		t.Fatal(err)
	}

	// page 1 opened, page 0 never closed
	if err := f.Corrupt(512, openMarker); err != nil {
		t.Fatal(err)
	}

	if v, err := m.Fetch(key(1)); err != nil || !bytes.Equal(v, value(1, 0)) {
		t.Fatalf("expected stored value, got %x, %v", v, err)
	}
	if err := m.Store(key(2), value(2, 0)); err != nil {
		t.Fatalf("store: %s", err)
	}
	for i := 1; i <= 2; i++ {
		if v, err := m.Fetch(key(i)); err != nil || !bytes.Equal(v, value(i, 0)) {
			t.Fatalf("key %d: got %x, %v", i, v, err)
		}
	}
}

func TestAllPagesClosed(t *testing.T) {
	m, f := newTestMap()
	if err := m.Store(key(1), value(1, 0)); err != nil {
		t.Fatal(err)
	}

	if err := f.Corrupt(256+4, closedMarker); err != nil {
		t.Fatal(err)
	}
	if err := f.Corrupt(512, openMarker); err != nil {
		t.Fatal(err)
	}
	if err := f.Corrupt(512+4, closedMarker); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.First(); errors.Cause(err) != ErrCorrupted {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
}

func TestRotationSurvivesEraseFailure(t *testing.T) {
	m, f := newTestMap()
	if err := m.Store(key(1), value(1, 0)); err != nil {
		t.Fatalf("store: %s", err)
	}

	f.FailErase = errors.New("transient erase failure")
	last := -1
	for gen := 1; gen < 20; gen++ {
		if err := m.Store(key(1), value(1, gen)); err != nil {
			last = gen - 1
			break
		}
	}
	if last < 0 {
		t.Fatalf("expected a rotation to hit the erase failure")
	}
	if v, err := m.Fetch(key(1)); err != nil || !bytes.Equal(v, value(1, last)) {
		t.Fatalf("expected %x during the fault, got %x, %v", value(1, last), v, err)
	}

	f.FailErase = nil
	if v, err := m.Fetch(key(1)); err != nil || !bytes.Equal(v, value(1, last)) {
		t.Fatalf("expected %x after the fault, got %x, %v", value(1, last), v, err)
	}
	for gen := 100; gen < 103; gen++ {
		if err := m.Store(key(1), value(1, gen)); err != nil {
			t.Fatalf("store after fault cleared: %s", err)
		}
	}
	if v, err := m.Fetch(key(1)); err != nil || !bytes.Equal(v, value(1, 102)) {
		t.Fatalf("expected %x, got %x, %v", value(1, 102), v, err)
	}
}

func TestBadItemState(t *testing.T) {
	m, f := newTestMap()
	if err := m.Store(key(1), value(1, 0)); err != nil {
		t.Fatal(err)
	}

	if err := f.Corrupt(256+pageHeaderLen, []byte{0x5a}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Fetch(key(1)); errors.Cause(err) != ErrCorrupted {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
}

func TestChecksumMismatchSkipsItem(t *testing.T) {
	m, f := newTestMap()
	if err := m.Store(key(1), value(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := m.Store(key(2), value(2, 0)); err != nil {
		t.Fatal(err)
	}

	if err := f.Corrupt(256+pageHeaderLen+itemHeaderLen, []byte{'X'}); err != nil {
		t.Fatal(err)
	}

	if v, err := m.Fetch(key(1)); err != nil || v != nil {
		t.Fatalf("expected damaged item skipped, got %x, %v", v, err)
	}
	if v, err := m.Fetch(key(2)); err != nil || !bytes.Equal(v, value(2, 0)) {
		t.Fatalf("expected intact item, got %x, %v", v, err)
	}
}

func TestEraseAndFetchInto(t *testing.T) {
	m, _ := newTestMap()
	if err := m.Store(key(1), value(1, 0)); err != nil {
		t.Fatal(err)
	}

	if _, err := m.FetchInto(key(1), make([]byte, 4)); errors.Cause(err) != ErrBufferTooSmall {
		t.Fatalf("expected ErrBufferTooSmall, got %v", err)
	}
	buf := make([]byte, 32)
	n, err := m.FetchInto(key(1), buf)
	if err != nil || n != 17 {
		t.Fatalf("expected 17 bytes, got %d, %v", n, err)
	}

	if err := m.Erase(); err != nil {
		t.Fatalf("erase: %s", err)
	}
	if v, err := m.Fetch(key(1)); err != nil || v != nil {
		t.Fatalf("expected empty map after erase, got %x, %v", v, err)
	}
}

func TestBadRegion(t *testing.T) {
	f := flash.NewMem(1024, 256, 4)
	tt := []Region{
		{Start: 0, End: 256},
		{Start: 100, End: 612},
		{Start: 512, End: 2048},
	}
	for _, r := range tt {
		m := New(f, r)
		if err := m.Store(key(1), value(1, 0)); errors.Cause(err) != ErrBadRegion {
			t.Fatalf("region %+v: expected ErrBadRegion, got %v", r, err)
		}
	}
}
