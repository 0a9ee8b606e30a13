package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/KevinKickass/aquanest/internal/api/websocket"
	"github.com/KevinKickass/aquanest/internal/apiclient"
	"github.com/KevinKickass/aquanest/internal/auth"
	"github.com/KevinKickass/aquanest/internal/config"
	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/interfaces"
	"github.com/KevinKickass/aquanest/internal/metrics"
	"github.com/KevinKickass/aquanest/internal/types"
	"github.com/KevinKickass/aquanest/internal/views"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backend is the part of the REST backend client the gateway proxies.
type Backend interface {
	Login(ctx context.Context, creds types.Credentials) (*apiclient.LoginResult, error)
	Register(ctx context.Context, r types.Registration) error
	ListPonds(ctx context.Context, s *auth.Session) ([]types.Pond, error)
	GetPond(ctx context.Context, s *auth.Session, id int) (*types.Pond, error)
	CreatePond(ctx context.Context, s *auth.Session, p types.NewPond) (*types.Pond, error)
	DeletePond(ctx context.Context, s *auth.Session, id int) error
	ListSpecies(ctx context.Context, s *auth.Session) ([]types.Species, error)
	CreateSpecies(ctx context.Context, s *auth.Session, sp types.NewSpecies) (*types.Species, error)
	GetProfile(ctx context.Context, s *auth.Session) (*types.Profile, error)
	UpdateProfile(ctx context.Context, s *auth.Session, u types.ProfileUpdate) (*types.Profile, error)
	DailyHistory(ctx context.Context, s *auth.Session, pondID int, catalog *device.Catalog) ([]apiclient.DayHistory, error)
}

// Views is the registry of mounted pond views.
type Views interface {
	Mount(pondID int, session *auth.Session) (*views.View, error)
	Get(id uuid.UUID, owner string) (*views.View, error)
	Unmount(ctx context.Context, id uuid.UUID, owner string) error
	UnmountPond(ctx context.Context, pondID int) int
	List(owner string) []*views.View
}

// PondNotifier announces pond deletions to other dashboards.
type PondNotifier interface {
	PondDeleted(pondID int)
}

type Server struct {
	router   *gin.Engine
	lm       interfaces.LifecycleManager
	backend  Backend
	views    Views
	notifier PondNotifier
	catalog  *device.Catalog
	wsHub    *websocket.Hub
	metrics  *metrics.Metrics
	logger   *zap.Logger
	server   *http.Server
	now      func() time.Time
}

type Deps struct {
	Lifecycle interfaces.LifecycleManager
	Backend   Backend
	Views     Views
	Notifier  PondNotifier
	Catalog   *device.Catalog
	Hub       *websocket.Hub
	// Metrics is optional.
	Metrics *metrics.Metrics
}

func NewServer(cfg config.ServerConfig, deps Deps, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:   gin.New(),
		lm:       deps.Lifecycle,
		backend:  deps.Backend,
		views:    deps.Views,
		notifier: deps.Notifier,
		catalog:  deps.Catalog,
		wsHub:    deps.Hub,
		metrics:  deps.Metrics,
		logger:   logger,
		now:      time.Now,
	}
	if s.catalog == nil {
		s.catalog = device.DefaultCatalog()
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware())
	}

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		authPublic := v1.Group("/auth")
		{
			authPublic.POST("/login", s.login)
			authPublic.POST("/register", s.register)
		}

		protected := v1.Group("")
		protected.Use(auth.Middleware(s.now))
		{
			protected.GET("/system/status", s.getSystemStatus)
			protected.GET("/species", s.listSpecies)
			protected.POST("/species", s.createSpecies)
			protected.GET("/me", s.getProfile)
			protected.PATCH("/me", s.updateProfile)

			ponds := protected.Group("/ponds")
			{
				ponds.GET("", s.listPonds)
				ponds.POST("", s.createPond)
				ponds.GET("/:id", s.getPond)
				ponds.DELETE("/:id", s.deletePond)
				ponds.GET("/:id/history", s.getPondHistory)
				ponds.POST("/:id/views", s.mountView)
			}

			v := protected.Group("/views")
			{
				v.GET("", s.listViews)
				v.GET("/:id", s.getView)
				v.DELETE("/:id", s.unmountView)
				v.POST("/:id/reload", s.reloadView)
				v.POST("/:id/actuators/:kind/toggle", s.toggleActuator)
				v.GET("/:id/live", s.wsLiveConnection)
			}
		}
	}
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": s.now().Unix(),
	})
}

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	if s.lm == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeUnavailable, "lifecycle not available", nil))
		return
	}
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}
