package synchronizer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/aquanest/internal/apiclient"
	"github.com/KevinKickass/aquanest/internal/auth"
	"github.com/KevinKickass/aquanest/internal/broker"
	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/telemetry"
	"github.com/KevinKickass/aquanest/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	h broker.Handlers

	mu           sync.Mutex
	connected    bool
	subs         []string
	unsubs       []string
	pubs         []string
	disconnected bool
}

func (c *fakeConn) Connect() {
	go func() {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		c.h.OnState(broker.StateConnected, nil)
	}()
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func (c *fakeConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) Subscribe(t string, done func(error)) {
	c.mu.Lock()
	c.subs = append(c.subs, t)
	c.mu.Unlock()
	go done(nil)
}

func (c *fakeConn) Unsubscribe(t string, done func(error)) {
	c.mu.Lock()
	c.unsubs = append(c.unsubs, t)
	c.mu.Unlock()
	go done(nil)
}

func (c *fakeConn) Publish(t string, payload []byte, done func(error)) {
	c.mu.Lock()
	c.pubs = append(c.pubs, t+"="+string(payload))
	c.mu.Unlock()
	go done(nil)
}

func (c *fakeConn) counts() (subs, unsubs, pubs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs), len(c.unsubs), len(c.pubs)
}

type fakeBackend struct {
	pond    *types.Pond
	pondErr error
	alerts  []types.Alert
	logs    []types.LogEntry
	logsErr error
	// gate, when set, holds GetPond until closed.
	gate chan struct{}
}

func (b *fakeBackend) GetPond(ctx context.Context, _ *auth.Session, _ int) (*types.Pond, error) {
	if b.gate != nil {
		<-b.gate
	}
	return b.pond, b.pondErr
}

func (b *fakeBackend) ListAlerts(context.Context, *auth.Session) ([]types.Alert, error) {
	return b.alerts, nil
}

func (b *fakeBackend) ListLogs(context.Context, *auth.Session) ([]types.LogEntry, error) {
	return b.logs, b.logsErr
}

func testPond() *types.Pond {
	return &types.Pond{
		ID:         7,
		Nombre:     "North",
		Sensores:   []types.Device{{ID: 3, Tipo: "temperatura"}},
		Actuadores: []types.Device{{ID: 5, Tipo: "calentador", Estado: "OFF"}},
	}
}

type eventSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (s *eventSink) observe(e telemetry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) count(typ telemetry.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func newTestSync(t *testing.T, backend *fakeBackend) (*Synchronizer, *fakeConn, *eventSink) {
	t.Helper()
	conn := &fakeConn{}
	sink := &eventSink{}
	s := New(Config{PondID: 7, Namespace: "aquanest"}, &auth.Session{Token: "tok"}, backend,
		func(h broker.Handlers) Connection {
			conn.h = h
			return conn
		}, sink.observe, zap.NewNop())
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, conn, sink
}

func snapshot(t *testing.T, s *Synchronizer) telemetry.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	return snap
}

func waitSubscribed(t *testing.T, s *Synchronizer, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(snapshot(t, s).Subscriptions) == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMountLoadsAndSubscribes(t *testing.T) {
	backend := &fakeBackend{
		pond: testPond(),
		alerts: []types.Alert{
			{ID: 1, Timestamp: time.Now(), Mensaje: "warm", Sensor: &types.DeviceRef{ID: 3}},
		},
	}
	s, _, sink := newTestSync(t, backend)
	s.Start()

	// sensor, heater response, alerts, heartbeats
	waitSubscribed(t, s, 4)
	require.Eventually(t, func() bool {
		return len(snapshot(t, s).Notifications) == 1
	}, 2*time.Second, 5*time.Millisecond)

	snap := snapshot(t, s)
	assert.True(t, snap.Loaded)
	assert.True(t, snap.Connected)
	assert.Equal(t, "North", snap.PondName)
	assert.Positive(t, sink.count(telemetry.EventRoster))
}

func TestMessagesFlowThroughLoop(t *testing.T) {
	s, conn, sink := newTestSync(t, &fakeBackend{pond: testPond()})
	s.Start()
	waitSubscribed(t, s, 4)

	conn.h.OnMessage("aquanest/E7/ST3/data/raw", []byte("24.5"))
	conn.h.OnMessage("aquanest/E7/ST3/data/raw", []byte("garbage"))

	require.Eventually(t, func() bool {
		snap := snapshot(t, s)
		return len(snap.Series) == 1 && len(snap.Series[0].Points) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sink.count(telemetry.EventSample))
}

func TestSnapshotToRunsBetweenEvents(t *testing.T) {
	s, conn, sink := newTestSync(t, &fakeBackend{pond: testPond()})
	s.Start()
	waitSubscribed(t, s, 4)

	var got telemetry.Snapshot
	conn.h.OnMessage("aquanest/E7/ST3/data/raw", []byte("24.5"))
	require.NoError(t, s.SnapshotTo(context.Background(), func(snap telemetry.Snapshot) {
		got = snap
		sink.observe(telemetry.Event{Type: "snapshot"})
	}))
	conn.h.OnMessage("aquanest/E7/ST3/data/raw", []byte("25.0"))
	require.Eventually(t, func() bool { return sink.count(telemetry.EventSample) == 2 }, 2*time.Second, 5*time.Millisecond)

	require.Len(t, got.Series, 1)
	assert.Len(t, got.Series[0].Points, 1)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	var order []telemetry.EventType
	for _, e := range sink.events {
		if e.Type == telemetry.EventSample || e.Type == "snapshot" {
			order = append(order, e.Type)
		}
	}
	assert.Equal(t, []telemetry.EventType{telemetry.EventSample, "snapshot", telemetry.EventSample}, order)
}

func TestToggleThroughLoop(t *testing.T) {
	s, conn, _ := newTestSync(t, &fakeBackend{pond: testPond()})
	s.Start()
	waitSubscribed(t, s, 4)

	a, err := s.Toggle(context.Background(), device.KindHeater)
	require.NoError(t, err)
	assert.Equal(t, telemetry.StatePending, a.State)

	_, err = s.Toggle(context.Background(), device.KindHeater)
	assert.ErrorIs(t, err, telemetry.ErrCommandPending)

	_, err = s.Toggle(context.Background(), device.KindCooler)
	assert.ErrorIs(t, err, telemetry.ErrUnknownActuator)

	_, _, pubs := conn.counts()
	assert.Equal(t, 1, pubs)

	conn.h.OnMessage("aquanest/E7/CAL5/response", []byte("ON"))
	require.Eventually(t, func() bool {
		snap := snapshot(t, s)
		return len(snap.Actuators) == 1 && snap.Actuators[0].State == telemetry.StateOn
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLoadErrorIsSurfaced(t *testing.T) {
	s, _, _ := newTestSync(t, &fakeBackend{pondErr: apiclient.ErrUnauthenticated})
	s.Start()

	require.Eventually(t, func() bool {
		return snapshot(t, s).Banner.Load == "not authenticated"
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, snapshot(t, s).Loaded)
}

func TestHistoryErrorIsSurfaced(t *testing.T) {
	s, _, _ := newTestSync(t, &fakeBackend{
		pond:    testPond(),
		logsErr: &apiclient.StatusError{Status: 500},
	})
	s.Start()

	require.Eventually(t, func() bool {
		return snapshot(t, s).Banner.History == "server error: 500"
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, snapshot(t, s).Loaded)
}

func TestDisconnectClearsSubscriptions(t *testing.T) {
	s, conn, _ := newTestSync(t, &fakeBackend{pond: testPond()})
	s.Start()
	waitSubscribed(t, s, 4)

	conn.mu.Lock()
	conn.connected = false
	conn.mu.Unlock()
	conn.h.OnState(broker.StateDisconnected, errors.New("connection lost"))

	require.Eventually(t, func() bool {
		snap := snapshot(t, s)
		return !snap.Connected && len(snap.Subscriptions) == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, snapshot(t, s).Banner.Connection, "connection lost")

	conn.Connect()
	waitSubscribed(t, s, 4)
	subs, _, _ := conn.counts()
	assert.Equal(t, 8, subs)
}

func TestCloseTearsDown(t *testing.T) {
	s, conn, _ := newTestSync(t, &fakeBackend{pond: testPond()})
	s.Start()
	waitSubscribed(t, s, 4)

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	_, unsubs, _ := conn.counts()
	assert.Equal(t, 4, unsubs)
	conn.mu.Lock()
	assert.True(t, conn.disconnected)
	conn.mu.Unlock()

	select {
	case <-s.Done():
	default:
		t.Fatal("loop still running")
	}

	_, err := s.Snapshot(context.Background())
	assert.ErrorIs(t, err, telemetry.ErrClosed)
	_, err = s.Toggle(context.Background(), device.KindHeater)
	assert.ErrorIs(t, err, telemetry.ErrClosed)
}

func TestLateLoadAfterCloseIsIgnored(t *testing.T) {
	backend := &fakeBackend{pond: testPond(), gate: make(chan struct{})}
	s, conn, _ := newTestSync(t, backend)
	s.Start()

	require.NoError(t, s.Close(context.Background()))
	close(backend.gate)

	// Give the loader a chance to run; nothing may subscribe.
	time.Sleep(20 * time.Millisecond)
	subs, _, _ := conn.counts()
	assert.Zero(t, subs)
}

func TestPanickingEventDoesNotStopLoop(t *testing.T) {
	s, _, _ := newTestSync(t, &fakeBackend{pond: testPond()})

	require.True(t, s.post(func() { panic("boom") }))
	snap := snapshot(t, s)
	assert.Equal(t, 7, snap.PondID)
}

func TestCallHonoursContext(t *testing.T) {
	s, _, _ := newTestSync(t, &fakeBackend{pond: testPond()})

	block := make(chan struct{})
	require.True(t, s.post(func() { <-block }))
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Snapshot(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
