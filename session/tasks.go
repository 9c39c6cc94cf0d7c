package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
	"github.com/rigado/bleperiph/notify"
	"github.com/rigado/bleperiph/service"
)

// keepAlive reads the RSSI every interval so the host keeps polling the
// link. It ends when the read fails.
func keepAlive(conn bleperiph.Conn, interval time.Duration, log bleperiph.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}

			rssi, err := conn.ReadRSSI()
			if err != nil {
				return errors.Wrap(err, "read rssi")
			}
			log.Debugf("rssi %d dBm", rssi)
		}
	}
}

// periodic notifies the tick counter on every tick and, on every second
// tick starting with the first, the next status of the rotation with its
// message. Send failures are logged and the task keeps going.
func periodic(n *notify.Notifier, period time.Duration, log bleperiph.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		t := time.NewTicker(period)
		defer t.Stop()

		var tick uint32
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}

			if tick%2 == 0 {
				st := service.StatusAt(int(tick / 2))
				log.Infof("sending status %s", st)
				if err := n.SendStatusWithMessage(ctx, st); err != nil {
					log.Warnf("status notification failed: %s", err)
				}
			}
			tick++
			if err := n.SendCounter(ctx, tick); err != nil {
				log.Warnf("counter notification failed: %s", err)
			}
		}
	}
}
