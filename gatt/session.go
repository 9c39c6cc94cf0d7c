package gatt

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
)

// BondStore persists credentials delivered by a completed pairing.
type BondStore interface {
	Upsert(info bleperiph.BondInfo) error
}

// Session consumes the event stream of one connection.
type Session struct {
	srv        *Server
	store      BondStore
	bondStored atomic.Bool
	log        bleperiph.Logger
}

// NewSession returns a session serving srv. bondStored is the flag carried
// over from previous connections.
func NewSession(srv *Server, store BondStore, bondStored bool, log bleperiph.Logger) *Session {
	if log == nil {
		log = bleperiph.ComponentLogger("gatt")
	}
	s := &Session{srv: srv, store: store, log: log}
	s.bondStored.Store(bondStored)
	return s
}

// BondStored reports whether a bond is known to be persisted. It is
// updated by every PairingComplete carrying a bond.
func (s *Session) BondStored() bool {
	return s.bondStored.Load()
}

// Run handles events in arrival order until the central disconnects or
// ctx is done.
func (s *Session) Run(ctx context.Context, conn bleperiph.Conn) (bleperiph.DisconnectReason, error) {
	log := s.log.ChildLogger(map[string]interface{}{"peer": conn.RemoteAddr().String()})
	for {
		ev, err := conn.NextEvent(ctx)
		if err != nil {
			return 0, errors.Wrap(err, "next event")
		}

		switch e := ev.(type) {
		case bleperiph.WriteEvent:
			s.handleWrite(log, conn, e)

		case bleperiph.ReadEvent:
			log.Debugf("read of handle 0x%04x at offset %d", e.Handle, e.Offset)

		case bleperiph.PairingComplete:
			log.Infof("pairing complete, security %s", e.Level)
			if e.Bond == nil {
				continue
			}
			if err := s.store.Upsert(*e.Bond); err != nil {
				log.Errorf("failed to store bond for %s: %s", e.Bond.Addr, err)
				s.bondStored.Store(false)
				continue
			}
			log.Infof("bond for %s stored", e.Bond.Addr)
			s.bondStored.Store(true)

		case bleperiph.PairingFailed:
			log.Warnf("pairing failed: %v", e.Err)

		case bleperiph.Disconnected:
			log.Infof("disconnected: %s", e.Reason)
			return e.Reason, nil

		default:
			log.Debugf("ignoring event %T", ev)
		}
	}
}

// handleWrite only lets writes through on an encrypted link.
func (s *Session) handleWrite(log bleperiph.Logger, conn bleperiph.Conn, e bleperiph.WriteEvent) {
	lvl, err := conn.SecurityLevel()
	if err != nil {
		log.Warnf("rejecting write to 0x%04x: can't read security level: %s", e.Handle, err)
		return
	}
	if !lvl.IsEncrypted() {
		log.Warnf("rejecting write to 0x%04x on unencrypted link", e.Handle)
		return
	}

	if err := s.srv.Accept(e); err != nil {
		log.Warnf("write to 0x%04x failed: %s", e.Handle, err)
		return
	}
	log.Debugf("accepted %d byte write to 0x%04x", len(e.Value), e.Handle)
}
