// Package kvlog implements a small log-structured key/value map on top of
// a NOR flash region.
//
// The region is split into pages of the flash erase size. Each page starts
// with two 4-byte markers (open, closed) followed by items:
//
//	[state u8][keyLen u8][dataLen u16 LE][crc32 u32 LE] key value (padded)
//
// Items are appended to the single open page. A removed item has its state
// byte cleared, which a NOR part can do in place. When the open page fills
// up the next (erased) page is opened, the full one is closed and the
// oldest page is compacted into the new one and erased, so one erased page
// is always kept spare. A rotation cut short by a fault or power loss is
// finished by the next Store.
package kvlog

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph/flash"
	"github.com/rigado/bleperiph/sliceops"
)

var (
	ErrCorrupted      = errors.New("flash region corrupted")
	ErrFull           = errors.New("flash region full")
	ErrItemTooBig     = errors.New("item too big for a page")
	ErrBufferTooSmall = errors.New("buffer too small")
	ErrBadRegion      = errors.New("invalid flash region")
	ErrInvalidKey     = errors.New("invalid key")
)

// MaxPageSize is the largest erase size the map supports; item offsets
// within a page must fit the 16-bit length field.
const MaxPageSize = 0x10000

const (
	pageHeaderLen = 8
	itemHeaderLen = 8

	stateFree    = 0xff
	stateValid   = 0xfe
	stateRemoved = 0x00

	maxKeyLen = 0xfe
)

var (
	openMarker   = []byte{'K', 'V', 'L', 'G'}
	closedMarker = []byte{'C', 'L', 'S', 'D'}
	erasedMarker = []byte{0xff, 0xff, 0xff, 0xff}
)

// Region is the [Start, End) span of the flash the map owns.
type Region struct {
	Start uint32
	End   uint32
}

func (r Region) Len() uint32 { return r.End - r.Start }

// Map is a persistent key/value map. It is safe for concurrent use.
type Map struct {
	mu     sync.Mutex
	f      flash.NorFlash
	r      Region
	pageSz uint32
	pages  int
	ws     uint32
	err    error
}

// New binds a map to region r of f. It never fails; an unusable geometry
// is reported as ErrBadRegion by every later call.
func New(f flash.NorFlash, r Region) *Map {
	m := &Map{f: f, r: r}
	m.err = m.checkGeometry()
	return m
}

func (m *Map) checkGeometry() error {
	if m.f == nil {
		return errors.Wrap(ErrBadRegion, "no flash")
	}
	m.pageSz = m.f.EraseSize()
	m.ws = m.f.WriteSize()

	switch {
	case m.r.End <= m.r.Start || m.r.End > m.f.Capacity():
		return errors.Wrapf(ErrBadRegion, "0x%x..0x%x", m.r.Start, m.r.End)
	case m.pageSz == 0 || m.pageSz > MaxPageSize:
		return errors.Wrapf(ErrBadRegion, "page size %d", m.pageSz)
	case m.r.Start%m.pageSz != 0 || m.r.End%m.pageSz != 0:
		return errors.Wrapf(ErrBadRegion, "0x%x..0x%x not page aligned", m.r.Start, m.r.End)
	case m.r.Len()/m.pageSz < 2:
		return errors.Wrap(ErrBadRegion, "need at least two pages")
	}
	switch m.ws {
	case 1, 2, 4:
	default:
		return errors.Wrapf(ErrBadRegion, "write size %d", m.ws)
	}
	m.pages = int(m.r.Len() / m.pageSz)
	return nil
}

type pageState int

const (
	pageErased pageState = iota
	pageOpen
	pageClosed
)

type item struct {
	page  int
	off   uint32
	hdr   [itemHeaderLen]byte
	key   []byte
	value []byte
	valid bool
}

type page struct {
	state pageState
	end   uint32
	items []*item
}

// layout is a decoded snapshot of the region.
type layout struct {
	pages []page

	// newest is the page written last, -1 when the region is fresh. open
	// is the page accepting items, -1 if a rotation stopped before opening
	// the page after newest. stale is a page a rotation opened a successor
	// for but did not get to close, or -1.
	newest int
	open   int
	stale  int

	// order lists valid items oldest first, live maps a key to its
	// latest valid item.
	order []*item
	live  map[string]*item
}

func (l *layout) fresh() bool { return l.newest < 0 }

func (l *layout) isLive(it *item) bool {
	return l.live[string(it.key)] == it
}

func (m *Map) pageAddr(p int) uint32 {
	return m.r.Start + uint32(p)*m.pageSz
}

func (m *Map) padded(n int) uint32 {
	return (uint32(n) + m.ws - 1) / m.ws * m.ws
}

func (m *Map) scan() (*layout, error) {
	l := &layout{
		pages:  make([]page, m.pages),
		newest: -1,
		open:   -1,
		stale:  -1,
		live:   map[string]*item{},
	}

	buf := make([]byte, m.pageSz)
	used := false
	var open []int
	for p := 0; p < m.pages; p++ {
		if err := m.f.Read(m.pageAddr(p), buf); err != nil {
			return nil, errors.Wrapf(err, "read page %d", p)
		}
		st, err := decodePageState(buf)
		if err != nil {
			return nil, errors.Wrapf(err, "page %d", p)
		}
		l.pages[p].state = st
		if st == pageErased {
			continue
		}
		if st == pageOpen {
			open = append(open, p)
		}
		used = true
		if err := m.scanItems(p, buf, &l.pages[p]); err != nil {
			return nil, errors.Wrapf(err, "page %d", p)
		}
	}
	if !used {
		return l, nil
	}

	switch len(open) {
	case 0:
		if err := m.findNewest(l); err != nil {
			return nil, err
		}
	case 1:
		l.open, l.newest = open[0], open[0]
	case 2:
		if err := m.resolveOpen(l, open[0], open[1]); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Wrap(ErrCorrupted, "multiple open pages")
	}

	for i := 1; i <= m.pages; i++ {
		p := (l.newest + i) % m.pages
		for _, it := range l.pages[p].items {
			if !it.valid {
				continue
			}
			l.order = append(l.order, it)
			l.live[string(it.key)] = it
		}
	}
	return l, nil
}

// findNewest handles a region without an open page: a rotation closed the
// full page and stopped before opening the next one. The newest page is
// the closed page followed by an erased one.
func (m *Map) findNewest(l *layout) error {
	for p := 0; p < m.pages; p++ {
		if l.pages[p].state != pageClosed || l.pages[(p+1)%m.pages].state != pageErased {
			continue
		}
		if l.newest >= 0 {
			return errors.Wrap(ErrCorrupted, "no open page")
		}
		l.newest = p
	}
	if l.newest < 0 {
		return errors.Wrap(ErrCorrupted, "no open page")
	}
	return nil
}

// resolveOpen handles two open pages: a rotation opened the next page and
// stopped before closing the full one. The new page has no items yet.
func (m *Map) resolveOpen(l *layout, a, b int) error {
	if len(l.pages[a].items) == 0 && (b+1)%m.pages == a {
		a, b = b, a
	}
	if len(l.pages[b].items) != 0 || (a+1)%m.pages != b {
		return errors.Wrap(ErrCorrupted, "multiple open pages")
	}
	l.pages[a].state = pageClosed
	l.stale = a
	l.open, l.newest = b, b
	return nil
}

func decodePageState(b []byte) (pageState, error) {
	m0, m1 := b[0:4], b[4:8]
	switch {
	case bytes.Equal(m0, erasedMarker) && bytes.Equal(m1, erasedMarker):
		return pageErased, nil
	case bytes.Equal(m0, openMarker) && bytes.Equal(m1, erasedMarker):
		return pageOpen, nil
	case bytes.Equal(m0, openMarker) && bytes.Equal(m1, closedMarker):
		return pageClosed, nil
	}
	return pageErased, errors.Wrapf(ErrCorrupted, "bad page markers % x", b[:pageHeaderLen])
}

func (m *Map) scanItems(p int, buf []byte, pg *page) error {
	off := uint32(pageHeaderLen)
	for off+itemHeaderLen <= m.pageSz {
		h := buf[off : off+itemHeaderLen]
		if sliceops.IsErased(h) {
			break
		}

		keyLen := int(h[1])
		dataLen := int(binary.LittleEndian.Uint16(h[2:]))
		if keyLen == 0 || keyLen > dataLen {
			return errors.Wrapf(ErrCorrupted, "bad item header at 0x%x", off)
		}
		size := itemHeaderLen + m.padded(dataLen)
		if off+size > m.pageSz {
			return errors.Wrapf(ErrCorrupted, "item at 0x%x overruns page", off)
		}

		it := &item{page: p, off: off}
		copy(it.hdr[:], h)
		data := buf[off+itemHeaderLen : off+itemHeaderLen+uint32(dataLen)]

		switch h[0] {
		case stateValid:
			if crc32.ChecksumIEEE(data) == binary.LittleEndian.Uint32(h[4:]) {
				it.valid = true
				it.key = append([]byte(nil), data[:keyLen]...)
				it.value = append([]byte(nil), data[keyLen:]...)
			}
		case stateRemoved, stateFree:
			// removed or never committed
		default:
			return errors.Wrapf(ErrCorrupted, "bad item state 0x%02x at 0x%x", h[0], off)
		}

		pg.items = append(pg.items, it)
		off += size
	}
	pg.end = off
	return nil
}

func (m *Map) writeMarker(p int, off uint32, marker []byte) error {
	return errors.Wrapf(m.f.Write(m.pageAddr(p)+off, marker), "mark page %d", p)
}

func (m *Map) openPage(l *layout, p int) error {
	a := m.pageAddr(p)
	if err := m.f.Erase(a, a+m.pageSz); err != nil {
		return errors.Wrapf(err, "erase page %d", p)
	}
	if err := m.writeMarker(p, 0, openMarker); err != nil {
		return err
	}
	l.pages[p] = page{state: pageOpen, end: pageHeaderLen}
	l.open, l.newest = p, p
	return nil
}

func (m *Map) itemSize(key, value []byte) uint32 {
	return itemHeaderLen + m.padded(len(key)+len(value))
}

// appendItem writes the header uncommitted, then the data, then commits the
// state byte.
func (m *Map) appendItem(l *layout, key, value []byte) (*item, error) {
	p := l.open
	pg := &l.pages[p]
	size := m.itemSize(key, value)
	if pg.end+size > m.pageSz {
		return nil, ErrFull
	}

	data := append(append([]byte(nil), key...), value...)
	it := &item{page: p, off: pg.end, key: key, value: value, valid: true}
	it.hdr[0] = stateFree
	it.hdr[1] = byte(len(key))
	binary.LittleEndian.PutUint16(it.hdr[2:], uint16(len(data)))
	binary.LittleEndian.PutUint32(it.hdr[4:], crc32.ChecksumIEEE(data))

	a := m.pageAddr(p) + pg.end
	if err := m.f.Write(a, it.hdr[:]); err != nil {
		return nil, errors.Wrap(err, "write item header")
	}
	padded := make([]byte, size-itemHeaderLen)
	for i := copy(padded, data); i < len(padded); i++ {
		padded[i] = 0xff
	}
	if err := m.f.Write(a+itemHeaderLen, padded); err != nil {
		return nil, errors.Wrap(err, "write item data")
	}
	if err := m.setState(it, stateValid); err != nil {
		return nil, errors.Wrap(err, "commit item")
	}

	pg.end += size
	pg.items = append(pg.items, it)
	l.order = append(l.order, it)
	l.live[string(key)] = it
	return it, nil
}

func (m *Map) setState(it *item, st byte) error {
	it.hdr[0] = st
	return m.f.Write(m.pageAddr(it.page)+it.off, it.hdr[:m.ws])
}

// prepare makes l writable: it formats a fresh region and finishes a
// rotation that was cut short.
func (m *Map) prepare(l *layout) error {
	switch {
	case l.fresh():
		return m.openPage(l, 0)
	case l.open < 0:
		if err := m.openPage(l, (l.newest+1)%m.pages); err != nil {
			return err
		}
	}
	if l.stale >= 0 {
		if err := m.writeMarker(l.stale, 4, closedMarker); err != nil {
			return err
		}
		l.stale = -1
	}
	return m.ensureSpare(l)
}

// ensureSpare compacts the page after the open one into the open page and
// erases it, unless it already is erased.
func (m *Map) ensureSpare(l *layout) error {
	spare := (l.open + 1) % m.pages
	if l.pages[spare].state == pageErased {
		return nil
	}
	for _, it := range l.pages[spare].items {
		if !it.valid || !l.isLive(it) {
			continue
		}
		if _, err := m.appendItem(l, it.key, it.value); err != nil {
			return errors.Wrapf(err, "compact page %d", spare)
		}
	}

	a := m.pageAddr(spare)
	if err := m.f.Erase(a, a+m.pageSz); err != nil {
		return errors.Wrapf(err, "erase page %d", spare)
	}
	l.pages[spare] = page{state: pageErased}
	return nil
}

// rotate opens the spare page, closes the full one and compacts the oldest
// page. The new page is opened first so an interrupted rotation never
// leaves the region without a page holding the latest items.
func (m *Map) rotate(l *layout) error {
	cur := l.open
	next := (cur + 1) % m.pages
	if l.pages[next].state != pageErased {
		return errors.Wrap(ErrFull, "no spare page")
	}

	if err := m.openPage(l, next); err != nil {
		return err
	}
	if err := m.writeMarker(cur, 4, closedMarker); err != nil {
		return err
	}
	l.pages[cur].state = pageClosed
	return m.ensureSpare(l)
}

// Store appends key/value. The newest record of a key shadows the older
// ones.
func (m *Map) Store(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if len(key) == 0 || len(key) > maxKeyLen {
		return errors.Wrapf(ErrInvalidKey, "key length %d", len(key))
	}
	if m.itemSize(key, value) > m.pageSz-pageHeaderLen {
		return errors.Wrapf(ErrItemTooBig, "%d bytes", len(key)+len(value))
	}

	l, err := m.scan()
	if err != nil {
		return err
	}
	if err := m.prepare(l); err != nil {
		return err
	}

	for i := 0; i < m.pages; i++ {
		_, err := m.appendItem(l, key, value)
		if errors.Cause(err) != ErrFull {
			return err
		}
		if err := m.rotate(l); err != nil {
			return err
		}
	}
	return ErrFull
}

// Fetch returns the latest value stored under key, or nil if there is none.
func (m *Map) Fetch(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	l, err := m.scan()
	if err != nil {
		return nil, err
	}
	it, ok := l.live[string(key)]
	if !ok {
		return nil, nil
	}
	return it.value, nil
}

// FetchInto copies the latest value of key into buf and returns its length.
// A missing key returns 0.
func (m *Map) FetchInto(key, buf []byte) (int, error) {
	v, err := m.Fetch(key)
	if err != nil || v == nil {
		return 0, err
	}
	if len(buf) < len(v) {
		return 0, errors.Wrapf(ErrBufferTooSmall, "need %d bytes", len(v))
	}
	return copy(buf, v), nil
}

// Remove invalidates every record of key. Removing a missing key is not an
// error.
func (m *Map) Remove(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	l, err := m.scan()
	if err != nil {
		return err
	}
	for _, it := range l.order {
		if !bytes.Equal(it.key, key) {
			continue
		}
		if err := m.setState(it, stateRemoved); err != nil {
			return errors.Wrap(err, "remove item")
		}
	}
	return nil
}

// Iter calls fn for the live record of every key, oldest page first and
// lowest offset first. Iteration stops at the first error from fn.
func (m *Map) Iter(fn func(key, value []byte) error) error {
	m.mu.Lock()
	if m.err != nil {
		m.mu.Unlock()
		return m.err
	}
	l, err := m.scan()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	for _, it := range l.order {
		if !l.isLive(it) {
			continue
		}
		if err := fn(it.key, it.value); err != nil {
			return err
		}
	}
	return nil
}

var errStop = errors.New("stop")

// First returns the first live record in iteration order. An empty map
// returns nil key and value.
func (m *Map) First() (key, value []byte, err error) {
	err = m.Iter(func(k, v []byte) error {
		key, value = k, v
		return errStop
	})
	if err == errStop {
		err = nil
	}
	return key, value, err
}

// Erase wipes the region. The map is fresh afterwards.
func (m *Map) Erase() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	return errors.Wrap(m.f.Erase(m.r.Start, m.r.End), "erase region")
}
