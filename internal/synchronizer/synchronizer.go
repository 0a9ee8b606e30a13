package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/aquanest/internal/apiclient"
	"github.com/KevinKickass/aquanest/internal/auth"
	"github.com/KevinKickass/aquanest/internal/broker"
	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/telemetry"
	"github.com/KevinKickass/aquanest/internal/types"
	"go.uber.org/zap"
)

// eventBuffer bounds the queue between broker goroutines and the loop.
const eventBuffer = 256

// Backend is the part of the REST client a synchronizer needs.
type Backend interface {
	GetPond(ctx context.Context, s *auth.Session, id int) (*types.Pond, error)
	ListAlerts(ctx context.Context, s *auth.Session) ([]types.Alert, error)
	ListLogs(ctx context.Context, s *auth.Session) ([]types.LogEntry, error)
}

// Connection is a broker connection owned by one synchronizer.
type Connection interface {
	telemetry.Broker
	Connect()
	Disconnect()
}

// Dialer creates an unconnected Connection reporting to h.
type Dialer func(h broker.Handlers) Connection

type Config struct {
	PondID           int
	Namespace        string
	MaxDataPoints    int
	MaxNotifications int
	CommandTimeout   time.Duration
	Catalog          *device.Catalog
}

// Synchronizer keeps one pond view in sync with the broker and the REST
// backend. All view state is owned by a single event loop goroutine;
// broker callbacks, REST results, timers and API calls are queued to it.
type Synchronizer struct {
	pondID  int
	session *auth.Session
	backend Backend
	conn    Connection
	view    *telemetry.View
	logger  *zap.Logger

	events chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
}

// New builds a synchronizer and starts its event loop. observer receives every view event on the
// loop goroutine and must not block.
func New(cfg Config, session *auth.Session, backend Backend, dial Dialer, observer func(telemetry.Event), logger *zap.Logger) *Synchronizer {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Synchronizer{
		pondID:  cfg.PondID,
		session: session,
		backend: backend,
		logger:  logger.With(zap.Int("pond_id", cfg.PondID)),
		events:  make(chan func(), eventBuffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	s.conn = dial(broker.Handlers{
		OnState:   s.onState,
		OnMessage: s.onMessage,
	})
	s.view = telemetry.NewView(telemetry.Config{
		PondID:           cfg.PondID,
		Namespace:        cfg.Namespace,
		MaxDataPoints:    cfg.MaxDataPoints,
		MaxNotifications: cfg.MaxNotifications,
		CommandTimeout:   cfg.CommandTimeout,
		Catalog:          cfg.Catalog,
	}, s.conn, s.logger, telemetry.Hooks{
		Post:     func(fn func()) { s.post(fn) },
		Observer: observer,
	})

	go s.run()
	return s
}

func (s *Synchronizer) PondID() int { return s.pondID }

// Start dials the broker and loads the pond.
func (s *Synchronizer) Start() {
	s.startOnce.Do(func() {
		s.conn.Connect()
		go s.load()
	})
}

func (s *Synchronizer) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.events:
			s.exec(fn)
		case <-s.ctx.Done():
			return
		}
	}
}

// exec runs one event. A panic drops the event, not the view.
func (s *Synchronizer) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Event handler panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// post queues fn for the loop. It reports false once the synchronizer is
// closed.
func (s *Synchronizer) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// call runs fn on the loop and waits for it.
func (s *Synchronizer) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.post(func() {
		defer close(finished)
		fn()
	}) {
		return telemetry.ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return telemetry.ErrClosed
	}
}

func (s *Synchronizer) onState(state broker.ConnState, err error) {
	switch state {
	case broker.StateConnected:
		s.post(func() { s.view.ConnectionChanged(true, nil) })
	case broker.StateDisconnected:
		s.post(func() { s.view.ConnectionChanged(false, err) })
	}
}

func (s *Synchronizer) onMessage(topic string, payload []byte) {
	s.post(func() { s.view.HandleMessage(topic, payload) })
}

// load fetches the pond, then the historical alerts and logs. Results that
// arrive after Close are dropped by the view's liveness check.
func (s *Synchronizer) load() {
	pond, err := s.backend.GetPond(s.ctx, s.session, s.pondID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn("Failed to load pond", zap.Error(err))
		s.post(func() { s.view.SetLoadError(apiclient.Describe(err)) })
		return
	}
	s.post(func() {
		s.view.SetLoadError("")
		s.view.SetPond(pond)
	})

	alerts, err := s.backend.ListAlerts(s.ctx, s.session)
	if err != nil {
		s.historyFailed(err)
		return
	}
	logs, err := s.backend.ListLogs(s.ctx, s.session)
	if err != nil {
		s.historyFailed(err)
		return
	}
	s.post(func() {
		s.view.SetHistoryError("")
		s.view.SetHistory(alerts, logs)
	})
}

func (s *Synchronizer) historyFailed(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Warn("Failed to load alert history", zap.Error(err))
	s.post(func() { s.view.SetHistoryError(apiclient.Describe(err)) })
}

// Reload fetches the pond again and reconciles against the new roster.
func (s *Synchronizer) Reload(ctx context.Context) error {
	pond, err := s.backend.GetPond(ctx, s.session, s.pondID)
	if err != nil {
		desc := apiclient.Describe(err)
		s.post(func() { s.view.SetLoadError(desc) })
		return err
	}
	return s.call(ctx, func() {
		s.view.SetLoadError("")
		s.view.SetPond(pond)
	})
}

func (s *Synchronizer) Snapshot(ctx context.Context) (telemetry.Snapshot, error) {
	var snap telemetry.Snapshot
	err := s.call(ctx, func() { snap = s.view.Snapshot() })
	return snap, err
}

// SnapshotTo hands a snapshot to deliver on the loop goroutine, the same
// goroutine that emits view events. Whatever deliver enqueues is therefore
// ordered after every event the snapshot already contains and before
// every later one.
func (s *Synchronizer) SnapshotTo(ctx context.Context, deliver func(telemetry.Snapshot)) error {
	return s.call(ctx, func() { deliver(s.view.Snapshot()) })
}

// Toggle switches the actuator of kind. See telemetry.View.Toggle.
func (s *Synchronizer) Toggle(ctx context.Context, kind device.Kind) (telemetry.ActuatorSnapshot, error) {
	var (
		snap      telemetry.ActuatorSnapshot
		toggleErr error
	)
	err := s.call(ctx, func() {
		toggleErr = s.view.Toggle(kind)
		snap, _ = s.view.Actuator(kind)
	})
	if err != nil {
		return snap, err
	}
	return snap, toggleErr
}

// Close tears the view down, closes the broker connection and stops the
// loop. It is safe to call more than once.
func (s *Synchronizer) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if callErr := s.call(ctx, s.view.Teardown); callErr != nil {
			err = fmt.Errorf("teardown: %w", callErr)
		}
		s.conn.Disconnect()
		s.cancel()
		<-s.done
		s.logger.Info("Synchronizer closed")
	})
	return err
}

// Done is closed once the loop has stopped.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}
