package bletest

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
)

// Notification is a value pushed to the central.
type Notification struct {
	Handle uint16
	Data   []byte
}

// Link is a scripted central. It implements both bleperiph.Link and
// bleperiph.Conn; events are queued with Send and delivered in order.
type Link struct {
	addr bleperiph.Addr

	mu            sync.Mutex
	events        []bleperiph.Event
	eventSig      chan struct{}
	disconnecting bool
	closed        bool
	done          chan struct{}

	level    bleperiph.SecurityLevel
	levelErr error

	bondable    bool
	bondableSet bool

	notes     []Notification
	noteSig   chan struct{}
	notifyErr error
	rssi      int8
	rssiErr   error

	srv       bleperiph.AttributeServer
	attached  chan struct{}
	attachErr error
}

// NewLink returns a connected, unencrypted link from addr.
func NewLink(addr bleperiph.Addr) *Link {
	return &Link{
		addr:     addr,
		eventSig: make(chan struct{}, 1),
		noteSig:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		attached: make(chan struct{}),
		rssi:     -60,
	}
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

func (l *Link) RemoteAddr() bleperiph.Addr { return l.addr }

// AttachServer records srv. It fails with the error set by FailAttach.
func (l *Link) AttachServer(srv bleperiph.AttributeServer) (bleperiph.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.attachErr != nil {
		return nil, l.attachErr
	}
	if l.srv != nil {
		return nil, errors.New("server already attached")
	}
	l.srv = srv
	close(l.attached)
	return l, nil
}

// Attached is closed once the attribute server is bound.
func (l *Link) Attached() <-chan struct{} { return l.attached }

// Server returns the attached attribute server.
func (l *Link) Server() bleperiph.AttributeServer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.srv
}

func (l *Link) FailAttach(err error) {
	l.mu.Lock()
	l.attachErr = err
	l.mu.Unlock()
}

// Send queues an event for the peripheral.
func (l *Link) Send(ev bleperiph.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	signal(l.eventSig)
}

// Write queues a write of value to the characteristic value handle h.
func (l *Link) Write(h uint16, value []byte) {
	l.Send(bleperiph.WriteEvent{Handle: h, Value: value})
}

// Pair queues a PairingComplete. The link takes on level when the event is
// consumed, so writes queued before it still see the old level. A non-nil
// bond is offered to the peripheral for storage.
func (l *Link) Pair(level bleperiph.SecurityLevel, bond *bleperiph.BondInfo) {
	l.Send(bleperiph.PairingComplete{Level: level, Bond: bond})
}

// Disconnect queues the terminal event. Once the peripheral has consumed
// it, operations on the link fail with bleperiph.ErrDisconnected.
func (l *Link) Disconnect(reason bleperiph.DisconnectReason) {
	l.mu.Lock()
	if l.disconnecting {
		l.mu.Unlock()
		return
	}
	l.disconnecting = true
	l.events = append(l.events, bleperiph.Disconnected{Reason: reason})
	l.mu.Unlock()
	signal(l.eventSig)
}

func (l *Link) NextEvent(ctx context.Context) (bleperiph.Event, error) {
	for {
		l.mu.Lock()
		if len(l.events) > 0 {
			ev := l.events[0]
			l.events = l.events[1:]
			switch e := ev.(type) {
			case bleperiph.PairingComplete:
				l.level = e.Level
			case bleperiph.Disconnected:
				l.closed = true
				close(l.done)
			}
			l.mu.Unlock()
			return ev, nil
		}
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil, bleperiph.ErrDisconnected
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.eventSig:
		}
	}
}

func (l *Link) SetSecurityLevel(level bleperiph.SecurityLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// FailSecurityLevel makes SecurityLevel return err.
func (l *Link) FailSecurityLevel(err error) {
	l.mu.Lock()
	l.levelErr = err
	l.mu.Unlock()
}

func (l *Link) SecurityLevel() (bleperiph.SecurityLevel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level, l.levelErr
}

func (l *Link) SetBondable(bondable bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return bleperiph.ErrDisconnected
	}
	l.bondable = bondable
	l.bondableSet = true
	return nil
}

// Bondable returns the last value passed to SetBondable and whether it
// was called at all.
func (l *Link) Bondable() (bondable, set bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bondable, l.bondableSet
}

func (l *Link) Notify(ctx context.Context, handle uint16, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return bleperiph.ErrDisconnected
	}
	if l.srv == nil {
		return bleperiph.ErrNotReady
	}
	if l.notifyErr != nil {
		return l.notifyErr
	}
	l.notes = append(l.notes, Notification{Handle: handle, Data: append([]byte(nil), data...)})
	signal(l.noteSig)
	return nil
}

// FailNotify makes every following Notify return err.
func (l *Link) FailNotify(err error) {
	l.mu.Lock()
	l.notifyErr = err
	l.mu.Unlock()
}

// Notifications returns everything notified so far.
func (l *Link) Notifications() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notification(nil), l.notes...)
}

// WaitNotifications blocks until at least n notifications were sent.
func (l *Link) WaitNotifications(n int, timeout time.Duration) ([]Notification, error) {
	deadline := time.After(timeout)
	for {
		if notes := l.Notifications(); len(notes) >= n {
			return notes, nil
		}
		select {
		case <-l.noteSig:
		case <-deadline:
			return l.Notifications(), errors.Errorf("timed out waiting for %d notifications", n)
		}
	}
}

func (l *Link) ReadRSSI() (int8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, bleperiph.ErrDisconnected
	}
	if l.rssiErr != nil {
		return 0, l.rssiErr
	}
	return l.rssi, nil
}

// FailRSSI makes every following ReadRSSI return err.
func (l *Link) FailRSSI(err error) {
	l.mu.Lock()
	l.rssiErr = err
	l.mu.Unlock()
}

func (l *Link) Disconnected() <-chan struct{} { return l.done }
