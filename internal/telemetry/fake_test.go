package telemetry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/types"
	"go.uber.org/zap"
)

type call struct {
	op      string
	topic   string
	payload string
}

// fakeBroker records every request. Acks are delivered immediately unless
// hold is set, in which case they queue until flush.
type fakeBroker struct {
	connected bool
	hold      bool
	failSub   map[string]error
	failPub   error
	calls     []call
	queued    []func()
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{connected: true, failSub: make(map[string]error)}
}

func (b *fakeBroker) Connected() bool { return b.connected }

func (b *fakeBroker) ack(fn func()) {
	if b.hold {
		b.queued = append(b.queued, fn)
		return
	}
	fn()
}

func (b *fakeBroker) flush() {
	q := b.queued
	b.queued = nil
	for _, fn := range q {
		fn()
	}
}

func (b *fakeBroker) Subscribe(t string, done func(error)) {
	b.calls = append(b.calls, call{op: "sub", topic: t})
	err := b.failSub[t]
	b.ack(func() { done(err) })
}

func (b *fakeBroker) Unsubscribe(t string, done func(error)) {
	b.calls = append(b.calls, call{op: "unsub", topic: t})
	b.ack(func() { done(nil) })
}

func (b *fakeBroker) Publish(t string, payload []byte, done func(error)) {
	b.calls = append(b.calls, call{op: "pub", topic: t, payload: string(payload)})
	err := b.failPub
	b.ack(func() { done(err) })
}

func (b *fakeBroker) ops(op string) []call {
	var out []call
	for _, c := range b.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

var errBroker = errors.New("broker said no")

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

type harness struct {
	view   *View
	broker *fakeBroker
	events []Event
	timers []*fakeTimer
	now    time.Time
	ids    int
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		broker: newFakeBroker(),
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if cfg.PondID == 0 {
		cfg.PondID = 7
	}
	h.view = NewView(cfg, h.broker, zap.NewNop(), Hooks{
		Now: func() time.Time {
			h.now = h.now.Add(time.Second)
			return h.now
		},
		NewID: func() string {
			h.ids++
			return fmt.Sprintf("n%d", h.ids)
		},
		AfterFunc: func(d time.Duration, fn func()) func() bool {
			ft := &fakeTimer{d: d, fn: fn}
			h.timers = append(h.timers, ft)
			return func() bool {
				was := !ft.stopped
				ft.stopped = true
				return was
			}
		},
		Observer: func(e Event) { h.events = append(h.events, e) },
	})
	return h
}

// mounted connects the view and loads pond 7.
func mounted(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := newHarness(t, cfg)
	h.view.ConnectionChanged(true, nil)
	h.view.SetPond(pond7())
	return h
}

func (h *harness) eventsOf(typ EventType) []Event {
	var out []Event
	for _, e := range h.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// pond7 has a temperature sensor 3, a nitrate sensor 4, a heater 5 and a
// cooler 2.
func pond7() *types.Pond {
	return &types.Pond{
		ID:     7,
		Nombre: "North",
		Sensores: []types.Device{
			{ID: 3, Tipo: "temperatura"},
			{ID: 4, Tipo: "nitrato"},
		},
		Actuadores: []types.Device{
			{ID: 5, Tipo: "calentador", Estado: "OFF"},
			{ID: 2, Tipo: "enfriador", Estado: "ON"},
		},
	}
}

func mustActuator(t *testing.T, v *View, kind device.Kind) ActuatorSnapshot {
	t.Helper()
	a, ok := v.Actuator(kind)
	if !ok {
		t.Fatalf("no %s in view", kind)
	}
	return a
}
