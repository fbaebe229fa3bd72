package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shoppulse/shoppulse/internal/config"
	eventdomain "github.com/shoppulse/shoppulse/internal/eventlog/domain"
	"github.com/shoppulse/shoppulse/internal/rollup"
	snapshotdomain "github.com/shoppulse/shoppulse/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config       config.Config
	Log          *zap.Logger
	Events       eventdomain.Repository
	Snapshots    snapshotdomain.Service
	Orchestrator *rollup.Orchestrator
}

type Server struct {
	cfg          config.Config
	log          *zap.Logger
	events       eventdomain.Repository
	snapshots    snapshotdomain.Service
	orchestrator *rollup.Orchestrator
}

func New(p Params) *Server {
	return &Server{
		cfg:          p.Config,
		log:          p.Log.Named("http"),
		events:       p.Events,
		snapshots:    p.Snapshots,
		orchestrator: p.Orchestrator,
	}
}

// Engine builds the gin router with all routes registered.
func (s *Server) Engine() *gin.Engine {
	if s.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	{
		v1.POST("/events", s.appendEvent)
		v1.POST("/snapshots/reconcile", s.reconcileSnapshot)
		v1.POST("/snapshots/rollup", s.runRollup)
		v1.GET("/snapshots/:entity_type", s.getSnapshot)
	}
	return engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func registerHooks(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.Engine(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				s.log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)
