// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"device-session/internal/config"
	"device-session/internal/discovery"
	"device-session/internal/handler"
	"device-session/internal/metrics"
	"device-session/internal/middleware"
	"device-session/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config    *config.Config
	logger    *zap.Logger
	session   handler.SessionService
	scanners  *discovery.ScannerManager
	collector *metrics.Collector

	wsHandler     *handler.WebSocketHandler
	unsubscribeWS func()
}

// NewRouter creates a new router instance. collector may be nil when metrics are disabled.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	session handler.SessionService,
	scanners *discovery.ScannerManager,
	collector *metrics.Collector,
) *Router {
	return &Router{
		config:    config,
		logger:    logger,
		session:   session,
		scanners:  scanners,
		collector: collector,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if !r.config.IsDebugEnabled() {
		gin.SetMode(gin.TestMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// Close stops streaming session events and disconnects WebSocket clients
func (r *Router) Close() {
	if r.unsubscribeWS != nil {
		r.unsubscribeWS()
		r.unsubscribeWS = nil
	}
	if r.wsHandler != nil {
		r.wsHandler.Close()
	}
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger, "/live", "/ready", r.config.Metrics.Path))

	if r.collector != nil {
		router.Use(middleware.MetricsMiddleware(r.collector))
	}

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.session, r.config, r.logger)
	sessionHandler := handler.NewSessionHandler(r.session, r.logger)
	commandHandler := handler.NewCommandHandler(r.session, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.scanners, r.logger)

	r.wsHandler = handler.NewWebSocketHandler(r.session, r.config.Security.AllowedOrigins, r.logger)
	r.unsubscribeWS = r.session.Subscribe(r.wsHandler)

	healthHandler.RegisterRoutes(&router.RouterGroup)

	apiV1 := router.Group("/api/v1")
	sessionHandler.RegisterRoutes(apiV1)
	commandHandler.RegisterRoutes(apiV1)
	discoveryHandler.RegisterRoutes(apiV1)

	r.wsHandler.RegisterRoutes(router.Group("/ws"))

	if r.collector != nil && r.config.Metrics.Enabled {
		router.GET(r.config.Metrics.Path, gin.WrapH(r.collector.Handler()))
	}

	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
