// Package notify pushes the notification service's values to the central.
package notify

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
	"github.com/rigado/bleperiph/service"
	"github.com/rigado/bleperiph/sliceops"
)

// MaxMessageLen is the message frame size. Shorter messages are zero
// padded.
const MaxMessageLen = service.MessageLen

var ErrMessageTooLong = errors.New("message too long")

// Error is a notification the link refused to send.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("notify %s: %s", e.Op, e.Err)
}

func (e *Error) Cause() error  { return e.Err }
func (e *Error) Unwrap() error { return e.Err }

// ValueSetter updates the attribute table so reads observe the last
// notified value.
type ValueSetter interface {
	SetValue(h uint16, v []byte) error
}

// Notifier sends on one connection.
type Notifier struct {
	conn  bleperiph.Conn
	table ValueSetter
	svc   *service.Notification
	log   bleperiph.Logger
}

// New returns a notifier for svc on conn. table may be nil.
func New(conn bleperiph.Conn, table ValueSetter, svc *service.Notification, log bleperiph.Logger) *Notifier {
	if log == nil {
		log = bleperiph.ComponentLogger("notify")
	}
	return &Notifier{conn: conn, table: table, svc: svc, log: log}
}

func (n *Notifier) send(ctx context.Context, op string, c *bleperiph.Characteristic, data []byte) error {
	if n.table != nil {
		if err := n.table.SetValue(c.ValueHandle, data); err != nil {
			n.log.Warnf("%s: can't update attribute value: %s", op, err)
		}
	}
	if err := n.conn.Notify(ctx, c.ValueHandle, data); err != nil {
		return &Error{Op: op, Err: err}
	}
	return nil
}

// SendMessage sends msg in a 128-byte frame. Longer messages are rejected
// before anything is sent.
func (n *Notifier) SendMessage(ctx context.Context, msg string) error {
	if len(msg) > MaxMessageLen {
		return errors.Wrapf(ErrMessageTooLong, "%d bytes, max %d", len(msg), MaxMessageLen)
	}
	frame := sliceops.PadTo([]byte(msg), MaxMessageLen)
	return n.send(ctx, "message", n.svc.Message, frame)
}

// SendCounter sends v as 4 bytes little-endian.
func (n *Notifier) SendCounter(ctx context.Context, v uint32) error {
	b := make([]byte, service.CounterLen)
	binary.LittleEndian.PutUint32(b, v)
	return n.send(ctx, "counter", n.svc.Counter, b)
}

// SendStatus sends the 1-byte status code.
func (n *Notifier) SendStatus(ctx context.Context, code uint8) error {
	return n.send(ctx, "status", n.svc.Status, []byte{code})
}

// SendStatusWithMessage sends the status code and then its message. The
// message is not sent when the status fails.
func (n *Notifier) SendStatusWithMessage(ctx context.Context, s service.Status) error {
	if err := n.SendStatus(ctx, uint8(s)); err != nil {
		return err
	}
	return n.SendMessage(ctx, s.Message())
}
