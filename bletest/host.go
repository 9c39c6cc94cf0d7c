// Package bletest provides a scripted host and central links for driving
// the peripheral without a radio.
package bletest

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
)

// Host is an in-memory bleperiph.Host. Links queued with Connect are
// handed out by the next Accept calls, in order.
type Host struct {
	mu         sync.Mutex
	links      chan *Link
	payloads   [][]byte
	responses  [][]byte
	params     []bleperiph.AdvParams
	bonds      []bleperiph.BondInfo
	advErr     error
	acceptErr  error
	advertised chan struct{}
	active     int
}

func NewHost() *Host {
	return &Host{
		links:      make(chan *Link, 64),
		advertised: make(chan struct{}, 64),
	}
}

// Connect queues l to be accepted.
func (h *Host) Connect(l *Link) {
	h.links <- l
}

// FailAdvertise makes the next Advertise call fail with err.
func (h *Host) FailAdvertise(err error) {
	h.mu.Lock()
	h.advErr = err
	h.mu.Unlock()
}

// FailAccept makes the next Accept call fail with err.
func (h *Host) FailAccept(err error) {
	h.mu.Lock()
	h.acceptErr = err
	h.mu.Unlock()
}

func (h *Host) Advertise(ctx context.Context, adData, scanData []byte, params bleperiph.AdvParams) (bleperiph.Advertisement, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer func() {
		select {
		case h.advertised <- struct{}{}:
		default:
		}
	}()

	h.payloads = append(h.payloads, append([]byte(nil), adData...))
	h.responses = append(h.responses, append([]byte(nil), scanData...))
	h.params = append(h.params, params)
	if err := h.advErr; err != nil {
		h.advErr = nil
		return nil, err
	}
	if h.active != 0 {
		return nil, errors.New("already advertising")
	}
	h.active++
	return &advertisement{h: h}, nil
}

// Advertised receives once per Advertise call.
func (h *Host) Advertised() <-chan struct{} { return h.advertised }

// Payloads returns the advertising data of every Advertise call.
func (h *Host) Payloads() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.payloads...)
}

// ScanResponses returns the scan response data of every Advertise call.
func (h *Host) ScanResponses() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.responses...)
}

// Params returns the parameters of every Advertise call.
func (h *Host) Params() []bleperiph.AdvParams {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bleperiph.AdvParams(nil), h.params...)
}

// AddBond implements bleperiph.BondLoader.
func (h *Host) AddBond(info bleperiph.BondInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bonds = append(h.bonds, info)
	return nil
}

// Bonds returns the bonds handed over with AddBond.
func (h *Host) Bonds() []bleperiph.BondInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bleperiph.BondInfo(nil), h.bonds...)
}

type advertisement struct {
	h       *Host
	stopped bool
}

func (a *advertisement) Accept(ctx context.Context) (bleperiph.Link, error) {
	a.h.mu.Lock()
	err := a.h.acceptErr
	a.h.acceptErr = nil
	a.h.mu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case l := <-a.h.links:
		return l, nil
	}
}

func (a *advertisement) Stop() error {
	a.h.mu.Lock()
	defer a.h.mu.Unlock()
	if a.stopped {
		return errors.New("not advertising")
	}
	a.stopped = true
	a.h.active--
	return nil
}
