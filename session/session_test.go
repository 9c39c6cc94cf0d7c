package session

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
	"github.com/rigado/bleperiph/bletest"
	"github.com/rigado/bleperiph/bond"
	"github.com/rigado/bleperiph/flash"
	"github.com/rigado/bleperiph/kvlog"
	"github.com/rigado/bleperiph/service"
)

const waitTimeout = 2 * time.Second

func newTestStore() (*bond.Store, *flash.Mem) {
	f := flash.NewMem(8192, 4096, 4)
	return bond.Open(f, kvlog.Region{Start: 0, End: 8192}), f
}

func newLink(addr string) *bletest.Link {
	return bletest.NewLink(bleperiph.MustParseAddr(addr))
}

func testBond(addr string) bleperiph.BondInfo {
	b := bleperiph.BondInfo{Addr: bleperiph.MustParseAddr(addr), Security: bleperiph.Encrypted}
	b.LTK[0] = 0x42
	return b
}

type runner struct {
	cancel context.CancelFunc
	errc   chan error
}

func start(t *testing.T, o *Orchestrator) *runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{cancel: cancel, errc: make(chan error, 1)}
	go func() { r.errc <- o.Run(ctx) }()
	return r
}

func (r *runner) stop(t *testing.T) {
	r.cancel()
	select {
	case err := <-r.errc:
		if errors.Cause(err) != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("run did not return after cancel")
	}
}

// welcomed waits for the welcome message, which is sent right after the
// bondable flag is set.
func welcomed(t *testing.T, l *bletest.Link) {
	if _, err := l.WaitNotifications(1, waitTimeout); err != nil {
		t.Fatalf("no welcome message: %s", err)
	}
}

func bondable(t *testing.T, l *bletest.Link) bool {
	b, set := l.Bondable()
	if !set {
		t.Fatalf("bondable flag was never set")
	}
	return b
}

func TestFirstBootBondsOnce(t *testing.T) {
	store, _ := newTestStore()
	h := bletest.NewHost()

	first := newLink("11:22:33:44:55:66")
	b := testBond("11:22:33:44:55:66")
	first.Pair(bleperiph.Encrypted, &b)
	first.Disconnect(bleperiph.ReasonRemoteUserTerminated)
	second := newLink("11:22:33:44:55:66")
	h.Connect(first)
	h.Connect(second)

	o, err := New(h, store)
	if err != nil {
		t.Fatalf("new: %s", err)
	}
	r := start(t, o)

	welcomed(t, second)
	if !bondable(t, first) {
		t.Fatalf("first connection after an empty boot must be bondable")
	}
	if bondable(t, second) {
		t.Fatalf("connection after a stored bond must not be bondable")
	}
	r.stop(t)

	got, err := store.Lookup(b.Addr)
	if err != nil || got == nil || *got != b {
		t.Fatalf("expected bond %+v stored, got %+v, %v", b, got, err)
	}
}

func TestBootWithStoredBond(t *testing.T) {
	store, _ := newTestStore()
	b := testBond("0A:0B:0C:0D:0E:0F")
	if err := store.Upsert(b); err != nil {
		t.Fatal(err)
	}

	h := bletest.NewHost()
	l := newLink("0A:0B:0C:0D:0E:0F")
	h.Connect(l)

	o, _ := New(h, store)
	r := start(t, o)
	welcomed(t, l)
	if bondable(t, l) {
		t.Fatalf("expected not bondable with a stored bond")
	}
	r.stop(t)

	bonds := h.Bonds()
	if len(bonds) != 1 || bonds[0] != b {
		t.Fatalf("expected stored bond to be loaded into the host, got %+v", bonds)
	}
}

func TestBootWithCorruptedStore(t *testing.T) {
	store, f := newTestStore()
	if err := store.Upsert(testBond("0A:0B:0C:0D:0E:0F")); err != nil {
		t.Fatal(err)
	}
	if err := f.Corrupt(0, []byte{0xba, 0xd0}); err != nil {
		t.Fatal(err)
	}

	h := bletest.NewHost()
	l := newLink("0A:0B:0C:0D:0E:0F")
	h.Connect(l)

	o, _ := New(h, store)
	r := start(t, o)
	welcomed(t, l)
	if !bondable(t, l) {
		t.Fatalf("corrupted store must read as no bond")
	}
	r.stop(t)
}

func TestBootWithUnreadableStore(t *testing.T) {
	store, f := newTestStore()
	f.FailReads = errors.New("bus error")

	h := bletest.NewHost()
	l := newLink("0A:0B:0C:0D:0E:0F")
	h.Connect(l)

	o, _ := New(h, store)
	r := start(t, o)
	welcomed(t, l)
	if !bondable(t, l) {
		t.Fatalf("unreadable store must read as no bond")
	}
	r.stop(t)
}

func TestStatusRotation(t *testing.T) {
	store, _ := newTestStore()
	h := bletest.NewHost()
	l := newLink("11:22:33:44:55:66")
	h.Connect(l)

	o, err := New(h, store,
		bleperiph.OptNotifications(true),
		bleperiph.OptNotifyPeriod(2*time.Millisecond),
		bleperiph.OptWelcome(""),
	)
	if err != nil {
		t.Fatalf("new: %s", err)
	}
	r := start(t, o)

	<-l.Attached()
	p := l.Server().Profile()
	statusH := p.Find(service.NotificationUUID, service.StatusUUID).ValueHandle
	messageH := p.Find(service.NotificationUUID, service.MessageUUID).ValueHandle

	exp := []service.Status{0, 1, 2, 3, 4, 5, 0, 1}
	var seq []bletest.Notification
	deadline := time.Now().Add(waitTimeout)
	for {
		seq = seq[:0]
		for _, n := range l.Notifications() {
			if n.Handle == statusH || n.Handle == messageH {
				seq = append(seq, n)
			}
		}
		if len(seq) >= 2*len(exp) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d status notifications", len(seq))
		}
		time.Sleep(5 * time.Millisecond)
	}
	l.Disconnect(bleperiph.ReasonRemoteUserTerminated)
	r.stop(t)

	for i, st := range exp {
		sn, mn := seq[2*i], seq[2*i+1]
		if sn.Handle != statusH || !bytes.Equal(sn.Data, []byte{byte(st)}) {
			t.Fatalf("position %d: expected status %d, got %+v", i, st, sn)
		}
		if mn.Handle != messageH || !bytes.HasPrefix(mn.Data, []byte(st.Message())) || len(mn.Data) != 128 {
			t.Fatalf("position %d: expected message %q, got %q", i, st.Message(), mn.Data)
		}
	}
}

func TestPayloadTooLargeIsFatal(t *testing.T) {
	store, _ := newTestStore()
	h := bletest.NewHost()

	o, err := New(h, store, bleperiph.OptName(strings.Repeat("x", 21)))
	if err != nil {
		t.Fatalf("new: %s", err)
	}

	err = o.Run(context.Background())
	if errors.Cause(err) != ErrConfig {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if len(h.Payloads()) != 0 {
		t.Fatalf("nothing should have been advertised")
	}
}

func TestLinkFailuresAreRetried(t *testing.T) {
	store, _ := newTestStore()
	h := bletest.NewHost()
	h.FailAdvertise(errors.New("controller busy"))

	bad := newLink("11:22:33:44:55:66")
	bad.FailAttach(errors.New("att mtu exchange"))
	good := newLink("11:22:33:44:55:66")
	h.Connect(bad)
	h.Connect(good)

	o, _ := New(h, store, bleperiph.OptRetryDelay(time.Millisecond))
	r := start(t, o)
	welcomed(t, good)
	r.stop(t)

	if n := len(h.Payloads()); n != 3 {
		t.Fatalf("expected 3 advertising attempts, got %d", n)
	}
}

func TestKeepAliveEndsConnection(t *testing.T) {
	store, _ := newTestStore()
	h := bletest.NewHost()
	l := newLink("11:22:33:44:55:66")
	l.FailRSSI(bleperiph.ErrDisconnected)
	h.Connect(l)

	o, _ := New(h, store, bleperiph.OptKeepAlive(2*time.Millisecond))
	r := start(t, o)

	for i := 0; i < 2; i++ {
		select {
		case <-h.Advertised():
		case <-time.After(waitTimeout):
			t.Fatalf("expected advertising to restart after the keep-alive failed")
		}
	}
	r.stop(t)
}

func TestOptionsValidated(t *testing.T) {
	store, _ := newTestStore()
	h := bletest.NewHost()

	bad := []bleperiph.Option{
		bleperiph.OptName(""),
		bleperiph.OptNotifyPeriod(0),
		bleperiph.OptKeepAlive(-time.Second),
		bleperiph.OptWelcome(strings.Repeat("w", 129)),
		bleperiph.OptAdvParams(bleperiph.AdvParams{IntervalMin: time.Second, IntervalMax: time.Millisecond}),
	}
	for i, opt := range bad {
		if _, err := New(h, store, opt); err == nil {
			t.Fatalf("option %d: expected error", i)
		}
	}
}

func TestRaceFirstFinisherWins(t *testing.T) {
	stopped := make(chan struct{})
	res := race(context.Background(),
		task{name: "slow", run: func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return ctx.Err()
		}},
		task{name: "fast", run: func(ctx context.Context) error {
			return errors.New("done")
		}},
	)
	if res.name != "fast" {
		t.Fatalf("expected fast to win, got %s", res.name)
	}
	select {
	case <-stopped:
	case <-time.After(waitTimeout):
		t.Fatalf("loser was not cancelled")
	}
}
