package adv

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
)

// Advertiser runs the advertise, accept and attach steps of a cycle.
type Advertiser struct {
	Params bleperiph.AdvParams
	log    bleperiph.Logger
}

// NewAdvertiser returns an advertiser using the default parameters.
func NewAdvertiser(log bleperiph.Logger) *Advertiser {
	if log == nil {
		log = bleperiph.ComponentLogger("adv")
	}
	return &Advertiser{Params: bleperiph.DefaultAdvParams(), log: log}
}

// AdvertiseAndAccept advertises pkt with a scan response carrying the
// transmit power, blocks until a central connects and
// attaches srv to the link. Failures are returned wrapped with the step
// that failed and are not retried.
func (a *Advertiser) AdvertiseAndAccept(ctx context.Context, pkt *Packet, host bleperiph.Host, srv bleperiph.AttributeServer) (bleperiph.Conn, error) {
	a.log.Debugf("advertising %d bytes: % x", pkt.Len(), pkt.Bytes())

	sr, err := ScanResponse(a.Params)
	if err != nil {
		return nil, errors.Wrap(err, "scan response")
	}
	adv, err := host.Advertise(ctx, pkt.Bytes(), sr.Bytes(), a.Params)
	if err != nil {
		return nil, errors.Wrap(err, "advertise")
	}

	l, err := adv.Accept(ctx)
	if serr := adv.Stop(); serr != nil {
		a.log.Debugf("stop advertising: %s", serr)
	}
	if err != nil {
		return nil, errors.Wrap(err, "accept")
	}
	a.log.Infof("central %s connected", l.RemoteAddr())

	conn, err := l.AttachServer(srv)
	if err != nil {
		return nil, errors.Wrap(err, "attach server")
	}
	return conn, nil
}
