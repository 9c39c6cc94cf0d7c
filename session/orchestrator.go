// Package session runs the peripheral's connection cycle: advertise, accept
// a central, serve it until the link goes away, advertise again.
package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
	"github.com/rigado/bleperiph/adv"
	"github.com/rigado/bleperiph/gatt"
	"github.com/rigado/bleperiph/notify"
	"github.com/rigado/bleperiph/service"
)

// ErrConfig ends Run: the peripheral can't advertise as configured.
var ErrConfig = errors.New("invalid configuration")

const (
	DefaultName         = "Tamagotchi"
	DefaultWelcome      = "Connected!"
	DefaultNotifyPeriod = 10 * time.Second
	DefaultKeepAlive    = 30 * time.Second
	DefaultRetryDelay   = time.Second
)

// BondStore is the part of the bonding store the orchestrator uses.
type BondStore interface {
	gatt.BondStore
	First() (*bleperiph.BondInfo, error)
}

// Orchestrator owns the host and the bond store for the lifetime of the
// peripheral.
type Orchestrator struct {
	host  bleperiph.Host
	store BondStore

	name          string
	advParams     bleperiph.AdvParams
	notifications bool
	notifyPeriod  time.Duration
	welcome       string
	keepAlive     time.Duration
	retryDelay    time.Duration
	log           bleperiph.Logger
}

// New returns an orchestrator with the default settings changed by opts.
func New(host bleperiph.Host, store BondStore, opts ...bleperiph.Option) (*Orchestrator, error) {
	o := &Orchestrator{
		host:         host,
		store:        store,
		name:         DefaultName,
		advParams:    bleperiph.DefaultAdvParams(),
		notifyPeriod: DefaultNotifyPeriod,
		welcome:      DefaultWelcome,
		keepAlive:    DefaultKeepAlive,
		retryDelay:   DefaultRetryDelay,
		log:          bleperiph.ComponentLogger("session"),
	}
	if err := o.Option(opts...); err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}
	return o, nil
}

// Option sets the options specified.
func (o *Orchestrator) Option(opts ...bleperiph.Option) error {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) SetName(name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	o.name = name
	return nil
}

func (o *Orchestrator) SetAdvParams(p bleperiph.AdvParams) error {
	if p.IntervalMin <= 0 || p.IntervalMax < p.IntervalMin {
		return errors.Errorf("invalid advertising interval %s-%s", p.IntervalMin, p.IntervalMax)
	}
	o.advParams = p
	return nil
}

func (o *Orchestrator) SetNotifications(enabled bool) error {
	o.notifications = enabled
	return nil
}

func (o *Orchestrator) SetNotifyPeriod(d time.Duration) error {
	if d <= 0 {
		return errors.Errorf("invalid notification period %s", d)
	}
	o.notifyPeriod = d
	return nil
}

func (o *Orchestrator) SetWelcome(msg string) error {
	if len(msg) > notify.MaxMessageLen {
		return errors.Wrap(notify.ErrMessageTooLong, "welcome message")
	}
	o.welcome = msg
	return nil
}

func (o *Orchestrator) SetKeepAlive(d time.Duration) error {
	if d <= 0 {
		return errors.Errorf("invalid keep-alive interval %s", d)
	}
	o.keepAlive = d
	return nil
}

func (o *Orchestrator) SetRetryDelay(d time.Duration) error {
	if d < 0 {
		return errors.Errorf("invalid retry delay %s", d)
	}
	o.retryDelay = d
	return nil
}

func (o *Orchestrator) SetLogger(l bleperiph.Logger) error {
	if l == nil {
		return errors.New("nil logger")
	}
	o.log = l
	return nil
}

// Run loops over connection cycles until ctx is done or the configuration
// turns out to be unusable.
func (o *Orchestrator) Run(ctx context.Context) error {
	bondStored := o.boot()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stored, err := o.cycle(ctx, bondStored)
		bondStored = stored
		switch {
		case err == nil:
			continue
		case errors.Cause(err) == ErrConfig:
			o.log.Errorf("giving up: %s", err)
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}

		o.log.Warnf("connection attempt failed, retrying in %s: %s", o.retryDelay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.retryDelay):
		}
	}
}

// boot reports whether a bond is already persisted and hands it to the
// host when the host can use it.
func (o *Orchestrator) boot() bool {
	b, err := o.store.First()
	if err != nil {
		o.log.Errorf("can't read bonds, starting without: %s", err)
		return false
	}
	if b == nil {
		o.log.Info("no bond stored")
		return false
	}

	o.log.Infof("found bond for %s (%s)", b.Addr, b.Security)
	if bl, ok := o.host.(bleperiph.BondLoader); ok {
		if err := bl.AddBond(*b); err != nil {
			o.log.Warnf("host refused bond for %s: %s", b.Addr, err)
		}
	}
	return true
}

// cycle serves one connection and returns the updated bond flag. The flag
// is read as soon as the race is decided; a bond the abandoned GATT task
// persists after that is only picked up at the next boot.
func (o *Orchestrator) cycle(ctx context.Context, bondStored bool) (bool, error) {
	pkt, err := adv.Build(o.name, service.AdvertisedUUIDs()...)
	if err != nil {
		return bondStored, errors.Wrapf(ErrConfig, "advertising payload for %q: %s", o.name, err)
	}

	set := service.NewSet(o.childLogger("service"))
	srv := gatt.NewServer(set.Profile())

	a := adv.NewAdvertiser(o.childLogger("adv"))
	a.Params = o.advParams
	conn, err := a.AdvertiseAndAccept(ctx, pkt, o.host, srv)
	if err != nil {
		return bondStored, err
	}

	log := o.log.ChildLogger(map[string]interface{}{"peer": conn.RemoteAddr().String()})
	if err := conn.SetBondable(!bondStored); err != nil {
		log.Warnf("can't set bondable: %s", err)
	}

	n := notify.New(conn, srv, set.Notification, o.childLogger("notify"))
	if o.welcome != "" {
		if err := n.SendMessage(ctx, o.welcome); err != nil {
			log.Warnf("welcome message failed: %s", err)
		}
	}

	sess := gatt.NewSession(srv, o.store, bondStored, o.childLogger("gatt"))
	tasks := []task{
		{name: "gatt", run: func(ctx context.Context) error {
			_, err := sess.Run(ctx, conn)
			return err
		}},
		{name: "keep-alive", run: keepAlive(conn, o.keepAlive, log)},
	}
	if o.notifications {
		tasks = append(tasks, task{name: "notifications", run: periodic(n, o.notifyPeriod, log)})
	}

	res := race(ctx, tasks...)
	if res.err != nil {
		log.Infof("connection ended by %s: %s", res.name, res.err)
	} else {
		log.Infof("connection ended by %s", res.name)
	}
	return sess.BondStored(), nil
}

func (o *Orchestrator) childLogger(component string) bleperiph.Logger {
	return o.log.ChildLogger(map[string]interface{}{"component": component})
}
