package bleperiph

import (
	"context"
)

// Conn is one established link with the attribute server attached. It is
// only valid until the Disconnected event has been observed.
type Conn interface {
	// RemoteAddr returns the central's address.
	RemoteAddr() Addr

	// NextEvent blocks until the next GATT event of this link is available.
	// Events are returned strictly in arrival order.
	NextEvent(ctx context.Context) (Event, error)

	// SecurityLevel returns the currently negotiated security level.
	SecurityLevel() (SecurityLevel, error)

	// SetBondable controls whether pairing on this link may create a bond.
	SetBondable(bondable bool) error

	// Notify pushes data as a notification of the value at handle.
	Notify(ctx context.Context, handle uint16, data []byte) error

	// ReadRSSI returns the remote device's RSSI. It fails once the link
	// is gone.
	ReadRSSI() (int8, error)

	// Disconnected returns a receiving channel, which is closed when the
	// connection disconnects.
	Disconnected() <-chan struct{}
}
