package bleperiph

import "fmt"

// Event is one entry of a connection's GATT event stream. The concrete
// types are WriteEvent, ReadEvent, PairingComplete, PairingFailed and
// Disconnected.
type Event interface {
	isEvent()
}

// WriteEvent is a central writing Value at Offset into the attribute at
// Handle.
type WriteEvent struct {
	Handle uint16
	Offset int
	Value  []byte
}

// ReadEvent is a central reading the attribute at Handle. The value is
// served by the attribute table.
type ReadEvent struct {
	Handle uint16
	Offset int
}

// PairingComplete reports the negotiated level. Bond is nil when the
// central did not request bonding.
type PairingComplete struct {
	Level SecurityLevel
	Bond  *BondInfo
}

// PairingFailed reports a failed pairing attempt; the link stays up.
type PairingFailed struct {
	Err error
}

// Disconnected is the terminal event of a connection.
type Disconnected struct {
	Reason DisconnectReason
}

func (WriteEvent) isEvent()      {}
func (ReadEvent) isEvent()       {}
func (PairingComplete) isEvent() {}
func (PairingFailed) isEvent()   {}
func (Disconnected) isEvent()    {}

// DisconnectReason is the HCI error code carried by a disconnection
// complete event [Vol 2, Part D, 1.3].
type DisconnectReason uint8

const (
	ReasonAuthenticationFailure  DisconnectReason = 0x05
	ReasonConnectionTimeout      DisconnectReason = 0x08
	ReasonRemoteUserTerminated   DisconnectReason = 0x13
	ReasonRemoteLowResources     DisconnectReason = 0x14
	ReasonRemotePowerOff         DisconnectReason = 0x15
	ReasonLocalHostTerminated    DisconnectReason = 0x16
	ReasonLLResponseTimeout      DisconnectReason = 0x22
	ReasonConnectionFailedToSync DisconnectReason = 0x3e
)

var disconnectReasonStrings = map[DisconnectReason]string{
	ReasonAuthenticationFailure:  "authentication failure",
	ReasonConnectionTimeout:      "connection timeout",
	ReasonRemoteUserTerminated:   "remote user terminated connection",
	ReasonRemoteLowResources:     "remote device terminated connection due to low resources",
	ReasonRemotePowerOff:         "remote device terminated connection due to power off",
	ReasonLocalHostTerminated:    "connection terminated by local host",
	ReasonLLResponseTimeout:      "LL response timeout",
	ReasonConnectionFailedToSync: "connection failed to be established",
}

func (r DisconnectReason) String() string {
	if s, ok := disconnectReasonStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("reason 0x%02x", uint8(r))
}
