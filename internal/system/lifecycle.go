package system

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/KevinKickass/aquanest/internal/api/rest"
	"github.com/KevinKickass/aquanest/internal/api/websocket"
	"github.com/KevinKickass/aquanest/internal/apiclient"
	"github.com/KevinKickass/aquanest/internal/auth"
	"github.com/KevinKickass/aquanest/internal/broker"
	"github.com/KevinKickass/aquanest/internal/config"
	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/interfaces"
	"github.com/KevinKickass/aquanest/internal/metrics"
	"github.com/KevinKickass/aquanest/internal/synchronizer"
	"github.com/KevinKickass/aquanest/internal/telemetry"
	"github.com/KevinKickass/aquanest/internal/views"
	"go.uber.org/zap"
)

// LifecycleManager owns every long-lived component of the gateway.
type LifecycleManager struct {
	config  *config.Config
	catalog *device.Catalog
	api     *apiclient.Client
	logger  *zap.Logger

	// notifierConn is shared by every request that deletes a pond.
	notifierConn *broker.Client
	notifier     *broker.Notifier

	wsHub      *websocket.Hub
	views      *views.Manager
	metrics    *metrics.Metrics
	restServer *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    error

	shutdownOnce sync.Once
	shutdownChan chan struct{}
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	api, err := apiclient.New(cfg.API, logger.Named("apiclient"))
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	lm := &LifecycleManager{
		config:       cfg,
		catalog:      device.DefaultCatalog(),
		api:          api,
		logger:       logger,
		wsHub:        websocket.NewHub(logger.Named("websocket")),
		metrics:      metrics.New("aquanest"),
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}

	lm.notifierConn = broker.NewClient(cfg.Broker, logger.Named("notifier"), broker.Handlers{})
	lm.notifier = broker.NewNotifier(lm.notifierConn, cfg.Broker.Namespace, logger.Named("notifier"))

	lm.views = views.NewManager(lm.newSynchronizer, lm.wsHub, cfg.Telemetry.MaxViews, logger.Named("views"))
	lm.wsHub.SetCommandHandler(lm.views)
	lm.registerGauges()

	lm.restServer = rest.NewServer(cfg.Server, rest.Deps{
		Lifecycle: lm,
		Backend:   api,
		Views:     lm.views,
		Notifier:  lm.notifier,
		Catalog:   lm.catalog,
		Hub:       lm.wsHub,
		Metrics:   lm.metrics,
	}, logger.Named("rest"))

	return lm, nil
}

// newSynchronizer gives every mounted view its own broker connection.
func (lm *LifecycleManager) newSynchronizer(pondID int, session *auth.Session, observer func(telemetry.Event)) views.Synchronizer {
	return synchronizer.New(synchronizer.Config{
		PondID:           pondID,
		Namespace:        lm.config.Broker.Namespace,
		MaxDataPoints:    lm.config.Telemetry.MaxDataPoints,
		MaxNotifications: lm.config.Telemetry.MaxNotifications,
		CommandTimeout:   lm.config.Telemetry.CommandTimeout,
		Catalog:          lm.catalog,
	}, session, lm.api, lm.dial, func(e telemetry.Event) {
		lm.metrics.Event(string(e.Type))
		observer(e)
	}, lm.logger.Named("synchronizer"))
}

func (lm *LifecycleManager) registerGauges() {
	lm.metrics.GaugeFunc("mounted_views", "Currently mounted pond views.", func() float64 {
		return float64(lm.views.Count())
	})
	lm.metrics.GaugeFunc("live_clients", "Connected websocket clients.", func() float64 {
		return float64(lm.wsHub.ClientCount())
	})
	lm.metrics.GaugeFunc("notifier_connected", "1 when the shared broker connection is up.", func() float64 {
		if lm.notifier.Connected() {
			return 1
		}
		return 0
	})
}

func (lm *LifecycleManager) dial(h broker.Handlers) synchronizer.Connection {
	return broker.NewClient(lm.config.Broker, lm.logger.Named("broker"), h)
}

// Start starts the entire gateway
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting aquanest telemetry gateway")

	go lm.wsHub.Run()
	lm.notifierConn.Connect()

	if err := lm.restServer.Start(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("broker", lm.config.Broker.URL),
		zap.String("api", lm.config.API.BaseURL))

	return nil
}

// Shutdown gracefully shuts down the gateway
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		wasRunning := lm.State() == StateRunning
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx, wasRunning)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context, running bool) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// 1. Stop accepting requests
	if running {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 2. Unmount every view (unsubscribe, disconnect)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := lm.views.StopAll(ctx); err != nil {
			errChan <- fmt.Errorf("view shutdown failed: %w", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		select {
		case err = <-errChan:
		default:
		}
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	lm.wsHub.Stop()
	if running {
		lm.notifierConn.Disconnect()
	}

	if err == nil {
		lm.logger.Info("Graceful shutdown completed")
	}
	return err
}

// Done is closed once Shutdown finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) setState(to SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, to); err != nil {
		lm.logger.Warn("Ignoring system state change", zap.Error(err))
		return
	}
	lm.currentState = to
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))

	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = StateError
	lm.lastError = err
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	status := interfaces.SystemStatus{
		State:            lm.State().String(),
		BrokerConnected:  lm.notifier.Connected(),
		MountedViews:     lm.views.Count(),
		ConnectedClients: lm.wsHub.ClientCount(),
	}

	lm.stateMu.RLock()
	if lm.lastError != nil {
		status.Error = lm.lastError.Error()
	}
	lm.stateMu.RUnlock()

	return status
}

// Handler exposes the HTTP routes, e.g. for tests.
func (lm *LifecycleManager) Handler() http.Handler {
	return lm.restServer.Handler()
}
