// internal/web/server.go
package web

import (
    "context"
    "errors"
    "net/http"
    "sync"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/sirupsen/logrus"

    "github.com/ychcqshan/terminal-monitor/internal/config"
    "github.com/ychcqshan/terminal-monitor/internal/database"
    "github.com/ychcqshan/terminal-monitor/internal/engine"
    "github.com/ychcqshan/terminal-monitor/internal/metrics"
)

type Server struct {
    config  *config.Config
    store   database.Store
    engine  *engine.Engine
    metrics *metrics.Collector
    router  *gin.Engine
    server  *http.Server

    wsMu      sync.Mutex
    wsClients map[*WSClient]bool
}

func NewServer(cfg *config.Config, store database.Store, eng *engine.Engine, metricsCollector *metrics.Collector) *Server {
    if cfg.Logging.Level != "debug" {
        gin.SetMode(gin.ReleaseMode)
    }

    router := gin.New()
    router.Use(gin.Logger())
    router.Use(gin.Recovery())
    router.Use(corsMiddleware())

    server := &Server{
        config:    cfg,
        store:     store,
        engine:    eng,
        metrics:   metricsCollector,
        router:    router,
        wsClients: make(map[*WSClient]bool),
    }

    server.setupRoutes()

    // Alert events fan out to connected websocket clients.
    eng.Alerts().Subscribe(func(event engine.AlertEvent) {
        server.broadcast(WSMessage{Type: "alert_" + event.Type, Data: event.Alert})
    })

    return server
}

func (s *Server) Start(ctx context.Context) error {
    s.server = &http.Server{
        Addr:         s.config.Server.Port,
        Handler:      s.router,
        ReadTimeout:  s.config.Server.ReadTimeout,
        WriteTimeout: s.config.Server.WriteTimeout,
    }

    logrus.WithField("port", s.config.Server.Port).Info("Starting web server")

    go s.updateMetricsRoutine(ctx)

    go func() {
        if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            logrus.WithError(err).Fatal("Failed to start server")
        }
    }()

    return nil
}

func (s *Server) Stop(ctx context.Context) error {
    if s.server != nil {
        return s.server.Shutdown(ctx)
    }
    return nil
}

func (s *Server) setupRoutes() {
    api := s.router.Group("/api")
    {
        // Rule routes register before /alerts/:id so "rules" is not
        // swallowed by the id parameter.
        api.GET("/alerts/rules", s.getRules)
        api.GET("/alerts/rules/enabled", s.getEnabledRules)
        api.GET("/alerts/rules/type/:type", s.getRulesByType)
        api.POST("/alerts/rules", s.createRule)
        api.PUT("/alerts/rules/:id/toggle", s.toggleRule)
        api.DELETE("/alerts/rules/:id", s.deleteRule)

        api.GET("/alerts", s.getAlerts)
        api.GET("/alerts/status/:status", s.getAlertsByStatus)
        api.GET("/alerts/agent/:agentId", s.getAlertsByAgent)
        api.GET("/alerts/agent/:agentId/status/:status", s.getAlertsByAgentAndStatus)
        api.GET("/alerts/recent", s.getRecentAlerts)
        api.GET("/alerts/stats", s.getAlertStats)
        api.GET("/alerts/:id", s.getAlert)
        api.POST("/alerts/:id/acknowledge", s.acknowledgeAlert)
        api.POST("/alerts/:id/resolve", s.resolveAlert)
        api.POST("/alerts/:id/ignore", s.ignoreAlert)

        api.GET("/baselines/:agentId", s.getBaselines)
        api.GET("/baselines/:agentId/:type", s.getBaseline)
        api.GET("/baselines/:agentId/:type/snapshots", s.getSnapshots)
        api.GET("/baselines/:agentId/:type/items", s.getBaselineItems)
        api.GET("/baselines/:agentId/:type/compare", s.compareBaseline)
        api.POST("/baselines/:agentId/:type/quick-learn", s.startQuickLearn)
        api.POST("/baselines/:agentId/:type/standard-learn", s.startStandardLearn)
        api.POST("/baselines/:agentId/:type/custom-learn", s.startCustomLearn)
        api.POST("/baselines/:agentId/:type/import", s.importBaseline)
        api.POST("/baselines/:agentId/:type/copy", s.copyBaseline)
        api.POST("/baselines/:agentId/:type/manual", s.createManualBaseline)
        api.POST("/baselines/:agentId/:type/complete-learn", s.completeLearn)
        api.POST("/baselines/:agentId/:type/cancel-learn", s.cancelLearn)
        api.DELETE("/baselines/:agentId/:type", s.deleteBaseline)

        api.GET("/agents", s.getAgents)
        api.GET("/agents/:id", s.getAgent)
        api.DELETE("/agents/:id", s.deleteAgent)
        api.POST("/agents/:id/report", s.submitReport)

        api.GET("/health", s.healthCheck)
    }

    s.router.GET("/health", s.healthCheck)
    s.router.GET("/ws", s.handleWebSocket)

    if s.config.Prometheus.Enabled {
        s.router.GET(s.config.Prometheus.MetricsPath, gin.WrapH(promhttp.Handler()))
    }
}

func (s *Server) healthCheck(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{
        "status":    "healthy",
        "timestamp": time.Now(),
        "version":   "1.0.0",
    })
}

// respondError maps the engine error taxonomy onto HTTP status codes.
func respondError(c *gin.Context, err error) {
    switch {
    case errors.Is(err, database.ErrNotFound):
        c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
    case errors.Is(err, engine.ErrConflict):
        c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
    case errors.Is(err, engine.ErrInvalidArgument):
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    case errors.Is(err, engine.ErrInvalidState):
        c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
    default:
        logrus.WithError(err).Error("Request failed")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
    }
}

func (s *Server) updateMetricsRoutine(ctx context.Context) {
    ticker := time.NewTicker(30 * time.Second)
    defer ticker.Stop()

    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            s.metrics.UpdateSystemMetrics(ctx)
        }
    }
}

func corsMiddleware() gin.HandlerFunc {
    return func(c *gin.Context) {
        c.Header("Access-Control-Allow-Origin", "*")
        c.Header("Access-Control-Allow-Credentials", "true")
        c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
        c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

        if c.Request.Method == "OPTIONS" {
            c.AbortWithStatus(204)
            return
        }

        c.Next()
    }
}
