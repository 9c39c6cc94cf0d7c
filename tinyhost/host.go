// Package tinyhost runs the peripheral on a real adapter through
// tinygo.org/x/bluetooth (BlueZ on Linux, CoreBluetooth on macOS).
//
// The system stack owns pairing and bond storage, so the security level a
// link reports is the one configured for the host, and SetBondable and
// AddBond only log. No PairingComplete event is ever delivered, so bonds
// are never written to the bond store on this host; bond persistence runs
// only with hosts that report pairing, such as bletest.
package tinyhost

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
	"github.com/rigado/bleperiph/adv"
	"tinygo.org/x/bluetooth"
)

// Host adapts a tinygo adapter to bleperiph.Host.
type Host struct {
	adapter *bluetooth.Adapter
	level   bleperiph.SecurityLevel
	log     bleperiph.Logger

	connects chan bluetooth.Device

	mu         sync.Mutex
	registered bool
	chars      map[uint16]*bluetooth.Characteristic
	conn       *conn
}

// New returns a host on adapter. Links report level as their security
// level; use the level the system agent enforces for this device.
func New(adapter *bluetooth.Adapter, level bleperiph.SecurityLevel) *Host {
	return &Host{
		adapter:  adapter,
		level:    level,
		log:      bleperiph.ComponentLogger("tinyhost"),
		connects: make(chan bluetooth.Device, 1),
		chars:    map[uint16]*bluetooth.Characteristic{},
	}
}

// Enable powers the adapter and installs the connection handler.
func (h *Host) Enable() error {
	if err := h.adapter.Enable(); err != nil {
		return errors.Wrap(err, "enable adapter")
	}
	h.adapter.SetConnectHandler(h.onConnect)
	return nil
}

func (h *Host) onConnect(device bluetooth.Device, connected bool) {
	if connected {
		select {
		case h.connects <- device:
		default:
			h.log.Warnf("dropping connection from %s, not accepting", device.Address.String())
		}
		return
	}

	h.mu.Lock()
	c := h.conn
	h.conn = nil
	h.mu.Unlock()
	if c != nil {
		c.disconnect(bleperiph.ReasonRemoteUserTerminated)
	}
}

func (h *Host) Advertise(ctx context.Context, adData, scanData []byte, params bleperiph.AdvParams) (bleperiph.Advertisement, error) {
	f, err := adv.Decode(adData)
	if err != nil {
		return nil, errors.Wrap(err, "decode advertising data")
	}

	opts := bluetooth.AdvertisementOptions{
		LocalName: f.LocalName(),
		Interval:  bluetooth.NewDuration(params.IntervalMin),
	}
	for _, u := range f.UUIDs() {
		bu, err := toUUID(u)
		if err != nil {
			return nil, err
		}
		opts.ServiceUUIDs = append(opts.ServiceUUIDs, bu)
	}

	a := h.adapter.DefaultAdvertisement()
	if err := a.Configure(opts); err != nil {
		return nil, errors.Wrap(err, "configure advertisement")
	}
	if err := a.Start(); err != nil {
		return nil, errors.Wrap(err, "start advertisement")
	}
	h.log.Debugf("advertising %q with %d services", opts.LocalName, len(opts.ServiceUUIDs))
	if len(scanData) > 0 {
		// the adapter picks its own transmit power
		if sr, err := adv.Decode(scanData); err == nil {
			if p, ok := sr.TxPower(); ok {
				h.log.Debugf("requested tx power %d dBm", p)
			}
		}
	}
	return &advertisement{h: h, a: a}, nil
}

// AddBond implements bleperiph.BondLoader. The system agent keeps its own
// copy of the bond, so this only logs.
func (h *Host) AddBond(info bleperiph.BondInfo) error {
	h.log.Infof("bond for %s is managed by the system agent", info.Addr)
	return nil
}

// register adds the profile's services to the adapter. The adapter keeps
// services for its lifetime, so this happens once; later profiles must
// have the same layout, which is true for every profile built from the
// same service set.
func (h *Host) register(p *bleperiph.Profile) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registered {
		return nil
	}

	for _, s := range p.Services {
		su, err := toUUID(s.UUID)
		if err != nil {
			return err
		}
		svc := &bluetooth.Service{UUID: su}
		for _, c := range s.Characteristics {
			cu, err := toUUID(c.UUID)
			if err != nil {
				return err
			}
			handle := &bluetooth.Characteristic{}
			vh := c.ValueHandle
			h.chars[vh] = handle

			cfg := bluetooth.CharacteristicConfig{
				Handle: handle,
				UUID:   cu,
				Value:  append([]byte(nil), c.Value...),
				Flags:  toPermissions(c.Property),
			}
			if c.Property.Writable() {
				cfg.WriteEvent = func(client bluetooth.Connection, offset int, value []byte) {
					h.deliver(bleperiph.WriteEvent{Handle: vh, Offset: offset, Value: append([]byte(nil), value...)})
				}
			}
			if len(c.Descriptors) > 0 {
				h.log.Debugf("%s: descriptors are not exposed by this host", c.UUID)
			}
			svc.Characteristics = append(svc.Characteristics, cfg)
		}
		if err := h.adapter.AddService(svc); err != nil {
			return errors.Wrapf(err, "add service %s", s.UUID)
		}
	}
	h.registered = true
	return nil
}

func (h *Host) deliver(ev bleperiph.Event) {
	h.mu.Lock()
	c := h.conn
	h.mu.Unlock()
	if c == nil {
		h.log.Debugf("dropping %T without a connection", ev)
		return
	}
	c.push(ev)
}

func (h *Host) characteristic(handle uint16) (*bluetooth.Characteristic, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chars[handle], h.registered
}

type advertisement struct {
	h *Host
	a *bluetooth.Advertisement
}

func (a *advertisement) Accept(ctx context.Context) (bleperiph.Link, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-a.h.connects:
		return &link{h: a.h, dev: d}, nil
	}
}

func (a *advertisement) Stop() error {
	return a.a.Stop()
}

type link struct {
	h   *Host
	dev bluetooth.Device
}

func (l *link) RemoteAddr() bleperiph.Addr {
	a, err := bleperiph.ParseAddr(l.dev.Address.String())
	if err != nil {
		// CoreBluetooth hides the address behind a UUID
		return bleperiph.Addr{}
	}
	return a
}

func (l *link) AttachServer(srv bleperiph.AttributeServer) (bleperiph.Conn, error) {
	if err := l.h.register(srv.Profile()); err != nil {
		return nil, err
	}

	c := newConn(l.h, l.RemoteAddr())
	l.h.mu.Lock()
	l.h.conn = c
	l.h.mu.Unlock()
	return c, nil
}
