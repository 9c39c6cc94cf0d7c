// Package gatt serves the attribute table of one connection and runs the
// per-connection event loop.
package gatt

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
)

var (
	ErrUnknownHandle = errors.New("unknown attribute handle")
	ErrNotWritable   = errors.New("attribute not writable")
	ErrInvalidOffset = errors.New("invalid offset")
)

// Server is the attribute table built from a profile. Handles are assigned
// once, when the server is created.
type Server struct {
	profile *bleperiph.Profile

	mu     sync.RWMutex
	chars  map[uint16]*bleperiph.Characteristic
	descs  map[uint16]*bleperiph.Descriptor
	values map[uint16][]byte
}

// NewServer assigns handles to every attribute of p, in declaration order
// starting at 1.
func NewServer(p *bleperiph.Profile) *Server {
	s := &Server{
		profile: p,
		chars:   map[uint16]*bleperiph.Characteristic{},
		descs:   map[uint16]*bleperiph.Descriptor{},
		values:  map[uint16][]byte{},
	}

	h := uint16(1)
	for _, svc := range p.Services {
		svc.Handle = h
		h++
		for _, c := range svc.Characteristics {
			c.Handle = h
			c.ValueHandle = h + 1
			h += 2
			s.chars[c.ValueHandle] = c
			s.values[c.ValueHandle] = append([]byte(nil), c.Value...)

			// client characteristic configuration
			if c.Property&(bleperiph.CharNotify|bleperiph.CharIndicate) != 0 {
				h++
			}
			for _, d := range c.Descriptors {
				d.Handle = h
				h++
				s.descs[d.Handle] = d
			}
		}
		svc.EndHandle = h - 1
	}
	return s
}

func (s *Server) Profile() *bleperiph.Profile {
	return s.profile
}

// Value returns the current value of a characteristic value handle or a
// descriptor handle.
func (s *Server) Value(h uint16) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[h]; ok {
		return append([]byte(nil), v...), true
	}
	if d, ok := s.descs[h]; ok {
		return append([]byte(nil), d.Value...), true
	}
	return nil, false
}

// SetValue replaces the value of a characteristic.
func (s *Server) SetValue(h uint16, v []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chars[h]; !ok {
		return errors.Wrapf(ErrUnknownHandle, "0x%04x", h)
	}
	s.values[h] = append([]byte(nil), v...)
	return nil
}

// Characteristic returns the first characteristic with UUID u.
func (s *Server) Characteristic(u bleperiph.UUID) *bleperiph.Characteristic {
	for _, svc := range s.profile.Services {
		for _, c := range svc.Characteristics {
			if c.UUID.Equal(u) {
				return c
			}
		}
	}
	return nil
}

// Accept applies a central's write to the table and hands the resulting
// value to the characteristic's write handler. The table is left
// unchanged when the handler fails.
func (s *Server) Accept(ev bleperiph.WriteEvent) error {
	c, ok := s.chars[ev.Handle]
	if !ok {
		return errors.Wrapf(ErrUnknownHandle, "0x%04x", ev.Handle)
	}
	if !c.Property.Writable() {
		return errors.Wrapf(ErrNotWritable, "%s", c.UUID)
	}

	s.mu.RLock()
	cur := s.values[ev.Handle]
	s.mu.RUnlock()
	if ev.Offset < 0 || ev.Offset > len(cur) {
		return errors.Wrapf(ErrInvalidOffset, "%d, value is %d bytes", ev.Offset, len(cur))
	}
	v := append(append([]byte(nil), cur[:ev.Offset]...), ev.Value...)

	if h := c.WriteHandler(); h != nil {
		if err := h(v); err != nil {
			return errors.Wrapf(err, "write %s", c.UUID)
		}
	}

	s.mu.Lock()
	s.values[ev.Handle] = v
	s.mu.Unlock()
	return nil
}
