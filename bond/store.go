// Package bond persists pairing credentials in a kvlog map keyed by the
// peer address.
package bond

import (
	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
	"github.com/rigado/bleperiph/flash"
	"github.com/rigado/bleperiph/kvlog"
)

// DefaultRegion is the last 32 KiB of a 4 MiB part.
var DefaultRegion = kvlog.Region{Start: 0x3F0000, End: 0x3F8000}

// Store is the bonding store. It is not safe for concurrent use by more
// than one session.
type Store struct {
	m   *kvlog.Map
	log bleperiph.Logger
}

// New returns a store on top of m. It never fails; storage errors surface
// on first access.
func New(m *kvlog.Map) *Store {
	return &Store{m: m, log: bleperiph.ComponentLogger("bond")}
}

// Open binds a store to region r of f.
func Open(f flash.NorFlash, r kvlog.Region) *Store {
	return New(kvlog.New(f, r))
}

// Upsert replaces the record for info.Addr. A corrupted region does not
// stop the old record from being dropped; a failure to append afterwards
// is returned.
func (s *Store) Upsert(info bleperiph.BondInfo) error {
	key, value, err := encodeRecord(info)
	if err != nil {
		return errors.Wrap(err, "encode bond")
	}

	err = s.m.Remove(key)
	switch {
	case errors.Cause(err) == kvlog.ErrCorrupted:
		s.log.Warnf("ignoring corrupted bond region while removing %s: %s", info.Addr, err)
	case err != nil:
		return errors.Wrapf(err, "remove bond %s", info.Addr)
	}

	if err := s.m.Store(key, value); err != nil {
		return errors.Wrapf(err, "store bond %s", info.Addr)
	}
	s.log.Debugf("stored bond for %s (%s)", info.Addr, info.Security)
	return nil
}

// Lookup returns the most recent record for addr, or nil. A corrupted
// region reads as empty.
func (s *Store) Lookup(addr bleperiph.Addr) (*bleperiph.BondInfo, error) {
	key := make([]byte, KeySize)
	if _, err := EncodeKey(addr, key); err != nil {
		return nil, err
	}

	value, err := s.m.Fetch(key)
	if err != nil {
		return nil, s.absorbCorruption(err, "lookup")
	}
	if value == nil {
		return nil, nil
	}
	return decodeRecord(key, value)
}

// First returns the first record in storage order, or nil. A corrupted
// region reads as empty.
func (s *Store) First() (*bleperiph.BondInfo, error) {
	key, value, err := s.m.First()
	if err != nil {
		return nil, s.absorbCorruption(err, "first")
	}
	if key == nil {
		return nil, nil
	}
	return decodeRecord(key, value)
}

// All returns every bond in storage order.
func (s *Store) All() ([]bleperiph.BondInfo, error) {
	var out []bleperiph.BondInfo
	err := s.m.Iter(func(key, value []byte) error {
		info, err := decodeRecord(key, value)
		if err != nil {
			return err
		}
		out = append(out, *info)
		return nil
	})
	if err != nil {
		return nil, s.absorbCorruption(err, "list")
	}
	return out, nil
}

// Clear erases every bond, recovering a corrupted region.
func (s *Store) Clear() error {
	return errors.Wrap(s.m.Erase(), "clear bonds")
}

func (s *Store) absorbCorruption(err error, op string) error {
	if errors.Cause(err) == kvlog.ErrCorrupted {
		s.log.Warnf("%s: treating corrupted bond region as empty: %s", op, err)
		return nil
	}
	return errors.Wrap(err, op)
}
