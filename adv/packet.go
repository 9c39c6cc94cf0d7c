// Package adv builds the advertising payload and runs the advertise/accept
// step of a connection cycle.
package adv

import (
	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
)

// MaxEIRPacketLength is the maximum allowed AdvertisingPacket
// and ScanResponsePacket length.
const MaxEIRPacketLength = 31

// Advertising flags [CSS v6, Part A, 1.3].
const (
	FlagGeneralDiscoverable = 0x02
	FlagLEOnly              = 0x04
)

var (
	ErrNotFit  = errors.New("data exceeds the max advertising packet length")
	ErrInvalid = errors.New("invalid advertising field")
)

// Packet is an advertising packet or scan response.
// Refer to Supplement to Bluetooth Core Specification | CSSv6, Part A.
type Packet struct {
	b []byte
}

// Bytes returns the bytes of the packet.
func (p *Packet) Bytes() []byte {
	return p.b
}

// Len returns the length of the packet.
func (p *Packet) Len() int {
	return len(p.b)
}

// NewPacket returns a new advertising Packet.
func NewPacket(fields ...Field) (*Packet, error) {
	p := &Packet{b: make([]byte, 0, MaxEIRPacketLength)}
	for _, f := range fields {
		if err := f(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Field is an advertising field which can be appended to a packet.
type Field func(p *Packet) error

func (p *Packet) append(typ byte, b []byte) error {
	if p.Len()+1+1+len(b) > MaxEIRPacketLength {
		return errors.Wrapf(ErrNotFit, "AD type 0x%02x, %d bytes", typ, len(b))
	}
	p.b = append(p.b, byte(len(b)+1))
	p.b = append(p.b, typ)
	p.b = append(p.b, b...)
	return nil
}

// Flags is a flags.
func Flags(f byte) Field {
	return func(p *Packet) error {
		return p.append(types.flags, []byte{f})
	}
}

// CompleteName is a complete local name.
func CompleteName(n string) Field {
	return func(p *Packet) error {
		return p.append(types.namecomp, []byte(n))
	}
}

// TxPower is the transmit power level in dBm.
func TxPower(dBm int8) Field {
	return func(p *Packet) error {
		return p.append(types.txpwr, []byte{byte(dBm)})
	}
}

// ServiceUUIDs16 is a complete list of 16-bit service UUIDs carried in a
// single AD structure.
func ServiceUUIDs16(uuids ...bleperiph.UUID) Field {
	return func(p *Packet) error {
		b := make([]byte, 0, 2*len(uuids))
		for _, u := range uuids {
			if u.Len() != 2 {
				return errors.Wrapf(ErrInvalid, "%s is not a 16-bit uuid", u)
			}
			b = append(b, u...)
		}
		return p.append(types.uuid16comp, b)
	}
}

// Build returns the payload the peripheral advertises: flags (LE general
// discoverable, BR/EDR not supported), the complete list of 16-bit
// services and the complete local name.
func Build(name string, uuids ...bleperiph.UUID) (*Packet, error) {
	fields := []Field{Flags(FlagGeneralDiscoverable | FlagLEOnly)}
	if len(uuids) > 0 {
		fields = append(fields, ServiceUUIDs16(uuids...))
	}
	fields = append(fields, CompleteName(name))
	return NewPacket(fields...)
}

// ScanResponse returns the scan response sent alongside the payload: the
// transmit power level advertising runs at.
func ScanResponse(params bleperiph.AdvParams) (*Packet, error) {
	return NewPacket(TxPower(int8(params.TxPower)))
}
