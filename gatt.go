package bleperiph

// Property is the characteristic property bitfield [Vol 3, Part G, 3.3.1.1].
type Property uint8

const (
	CharBroadcast   Property = 0x01
	CharRead        Property = 0x02
	CharWriteNR     Property = 0x04
	CharWrite       Property = 0x08
	CharNotify      Property = 0x10
	CharIndicate    Property = 0x20
	CharSignedWrite Property = 0x40
	CharExtended    Property = 0x80
)

// Writable reports whether a central may write the value.
func (p Property) Writable() bool {
	return p&(CharWrite|CharWriteNR|CharSignedWrite) != 0
}

// WriteHandler receives a value a central wrote to a characteristic.
type WriteHandler func(value []byte) error

// Descriptor is a characteristic descriptor with a static value.
type Descriptor struct {
	UUID   UUID
	Value  []byte
	Handle uint16
}

// Characteristic is a single attribute value in a service. Handle and
// ValueHandle are assigned when the attribute table is built.
type Characteristic struct {
	UUID        UUID
	Property    Property
	Value       []byte
	Descriptors []*Descriptor

	Handle      uint16
	ValueHandle uint16

	writeHandler WriteHandler
}

// NewDescriptor adds a descriptor to the characteristic.
func (c *Characteristic) NewDescriptor(u UUID, value []byte) *Descriptor {
	d := &Descriptor{UUID: u, Value: value}
	c.Descriptors = append(c.Descriptors, d)
	return d
}

// HandleWrite sets the handler invoked for accepted writes.
func (c *Characteristic) HandleWrite(h WriteHandler) *Characteristic {
	c.writeHandler = h
	return c
}

func (c *Characteristic) WriteHandler() WriteHandler {
	return c.writeHandler
}

// Service is a primary GATT service.
type Service struct {
	UUID            UUID
	Characteristics []*Characteristic

	Handle    uint16
	EndHandle uint16
}

// NewService creates a service with the given UUID.
func NewService(u UUID) *Service {
	return &Service{UUID: u}
}

// NewCharacteristic adds a characteristic to the service.
func (s *Service) NewCharacteristic(u UUID, p Property, value []byte) *Characteristic {
	c := &Characteristic{UUID: u, Property: p, Value: value}
	s.Characteristics = append(s.Characteristics, c)
	return c
}

// Profile is the set of services exposed by the attribute server.
type Profile struct {
	Services []*Service
}

// Find returns the characteristic with the given UUID inside the service
// with UUID svc.
func (p *Profile) Find(svc, char UUID) *Characteristic {
	for _, s := range p.Services {
		if !s.UUID.Equal(svc) {
			continue
		}
		for _, c := range s.Characteristics {
			if c.UUID.Equal(char) {
				return c
			}
		}
	}
	return nil
}

// AttributeServer is the connection-scoped attribute table a host exposes
// to the central.
type AttributeServer interface {
	Profile() *Profile

	// Value returns the current value stored under a value handle.
	Value(handle uint16) ([]byte, bool)
}
