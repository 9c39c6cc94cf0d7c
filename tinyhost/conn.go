package tinyhost

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
	"tinygo.org/x/bluetooth"
)

var errUnknownHandle = errors.New("no characteristic registered for handle")

type conn struct {
	h    *Host
	addr bleperiph.Addr

	mu     sync.Mutex
	events []bleperiph.Event
	sig    chan struct{}
	closed bool
	done   chan struct{}
}

func newConn(h *Host, addr bleperiph.Addr) *conn {
	return &conn{
		h:    h,
		addr: addr,
		sig:  make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (c *conn) push(ev bleperiph.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	select {
	case c.sig <- struct{}{}:
	default:
	}
}

func (c *conn) disconnect(reason bleperiph.DisconnectReason) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	c.push(bleperiph.Disconnected{Reason: reason})
}

func (c *conn) RemoteAddr() bleperiph.Addr { return c.addr }

func (c *conn) NextEvent(ctx context.Context) (bleperiph.Event, error) {
	for {
		c.mu.Lock()
		if len(c.events) > 0 {
			ev := c.events[0]
			c.events = c.events[1:]
			c.mu.Unlock()
			return ev, nil
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, bleperiph.ErrDisconnected
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.sig:
		}
	}
}

func (c *conn) SecurityLevel() (bleperiph.SecurityLevel, error) {
	return c.h.level, nil
}

func (c *conn) SetBondable(bondable bool) error {
	c.h.log.Debugf("bondable %t requested for %s, pairing is handled by the system agent", bondable, c.addr)
	return nil
}

func (c *conn) Notify(ctx context.Context, handle uint16, data []byte) error {
	select {
	case <-c.done:
		return bleperiph.ErrDisconnected
	default:
	}

	ch, registered := c.h.characteristic(handle)
	if !registered {
		return bleperiph.ErrNotReady
	}
	if ch == nil {
		return errors.Wrapf(errUnknownHandle, "0x%04x", handle)
	}
	_, err := ch.Write(data)
	return err
}

// ReadRSSI has no peripheral-side counterpart in the adapter API; it only
// reports whether the link is still up.
func (c *conn) ReadRSSI() (int8, error) {
	select {
	case <-c.done:
		return 0, bleperiph.ErrDisconnected
	default:
		return 0, nil
	}
}

func (c *conn) Disconnected() <-chan struct{} { return c.done }

func toUUID(u bleperiph.UUID) (bluetooth.UUID, error) {
	switch u.Len() {
	case 2:
		return bluetooth.New16BitUUID(u.Uint16()), nil
	case 16:
		bu, err := bluetooth.ParseUUID(u.String())
		return bu, errors.Wrapf(err, "uuid %s", u)
	}
	return bluetooth.UUID{}, errors.Errorf("unsupported uuid length %d", u.Len())
}

func toPermissions(p bleperiph.Property) bluetooth.CharacteristicPermissions {
	var perm bluetooth.CharacteristicPermissions
	if p&bleperiph.CharBroadcast != 0 {
		perm |= bluetooth.CharacteristicBroadcastPermission
	}
	if p&bleperiph.CharRead != 0 {
		perm |= bluetooth.CharacteristicReadPermission
	}
	if p&bleperiph.CharWriteNR != 0 {
		perm |= bluetooth.CharacteristicWriteWithoutResponsePermission
	}
	if p&bleperiph.CharWrite != 0 {
		perm |= bluetooth.CharacteristicWritePermission
	}
	if p&bleperiph.CharNotify != 0 {
		perm |= bluetooth.CharacteristicNotifyPermission
	}
	if p&bleperiph.CharIndicate != 0 {
		perm |= bluetooth.CharacteristicIndicatePermission
	}
	return perm
}
