package bleperiph

import (
	"context"
	"time"
)

// AdvType is the advertising PDU type [Vol 6, Part B, 2.3].
type AdvType uint8

const (
	AdvConnectableScannableUndirected AdvType = 0x00 // ADV_IND
	AdvConnectableDirected            AdvType = 0x01 // ADV_DIRECT_IND
	AdvScannableUndirected            AdvType = 0x02 // ADV_SCAN_IND
	AdvNonConnectableUndirected       AdvType = 0x03 // ADV_NONCONN_IND
)

// TxPower is a transmit power in dBm.
type TxPower int8

// AdvParams are the advertising parameters handed to the host.
type AdvParams struct {
	Type        AdvType
	IntervalMin time.Duration
	IntervalMax time.Duration
	TxPower     TxPower
}

// DefaultAdvParams returns connectable scannable undirected advertising
// every 100-200 ms at 0 dBm.
func DefaultAdvParams() AdvParams {
	return AdvParams{
		Type:        AdvConnectableScannableUndirected,
		IntervalMin: 100 * time.Millisecond,
		IntervalMax: 200 * time.Millisecond,
		TxPower:     0,
	}
}

// Host is the BLE host stack capability the engine consumes.
type Host interface {
	// Advertise starts advertising adData (and scanData as scan response).
	Advertise(ctx context.Context, adData, scanData []byte, params AdvParams) (Advertisement, error)
}

// Advertisement is a running advertising set.
type Advertisement interface {
	// Accept blocks until a central connects.
	Accept(ctx context.Context) (Link, error)

	// Stop stops advertising.
	Stop() error
}

// Link is an accepted link before the attribute server is attached.
type Link interface {
	RemoteAddr() Addr

	// AttachServer binds srv to the link and returns the usable connection.
	AttachServer(srv AttributeServer) (Conn, error)
}
