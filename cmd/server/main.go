// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "device-session/docs"
	"device-session/internal/config"
	"device-session/internal/discovery"
	serialscan "device-session/internal/discovery/serial"
	tcpscan "device-session/internal/discovery/tcp"
	usbscan "device-session/internal/discovery/usb"
	"device-session/internal/metrics"
	"device-session/internal/model"
	"device-session/internal/protocol"
	"device-session/internal/routes"
	"device-session/internal/session"
	"device-session/internal/sink"
	"device-session/internal/utils"
)

const (
	scanTimeout     = 3 * time.Second
	connectTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server
	router *routes.Router

	session   *session.Session
	scanners  *discovery.ScannerManager
	collector *metrics.Collector
	publisher *sink.RedisPublisher

	unsubscribe []func()
}

// @title Device Session API
// @version 1.0.0
// @description Control and event stream API for an ESP32 device session over serial, USB or TCP

// @contact.name Device Session API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8084
// @BasePath /api/v1
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "device-session")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	app.initializeDiscovery()

	if err := app.initializeSession(); err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	app.initializeObservers()

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDiscovery registers the port scanners
func (app *Application) initializeDiscovery() {
	app.scanners = discovery.NewScannerManager(app.logger)
	app.scanners.RegisterScanner(serialscan.NewScanner(app.logger))
	app.scanners.RegisterScanner(usbscan.NewScanner(app.logger, scanTimeout))

	tcp := app.config.Transport.TCP
	app.scanners.RegisterScanner(tcpscan.NewScanner(app.logger, []string{tcpscan.Target(tcp.Host, tcp.Port)}, scanTimeout))
}

// initializeSession creates the transport factory and the device session
func (app *Application) initializeSession() error {
	transportType, err := model.ParseTransportType(app.config.Transport.Type)
	if err != nil {
		return err
	}

	var resolver protocol.PortResolver
	if transportType == model.TransportTypeSerial && app.config.Serial.Port == protocol.AutoPort {
		resolver = serialscan.NewScanner(app.logger).ResolvePort
	}

	factory, err := protocol.NewFactory(factoryConfig(app.config, transportType), resolver, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create transport factory: %w", err)
	}

	sessionConfig := buildSessionConfig(app.config.Session)
	if err := sessionConfig.Validate(); err != nil {
		return err
	}

	app.session = session.New(sessionConfig, factory, app.logger)

	kind, address := factory.Describe()
	app.logger.Info("Device session initialized",
		zap.String("session_id", app.session.ID()),
		zap.String("transport", string(kind)),
		zap.String("address", address),
	)
	return nil
}

// initializeObservers subscribes the metrics collector and the Redis sink
func (app *Application) initializeObservers() {
	if app.config.Metrics.Enabled {
		app.collector = metrics.NewCollector()
		app.unsubscribe = append(app.unsubscribe, app.session.Subscribe(app.collector))
	}

	if app.config.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		publisher, err := sink.NewRedisPublisher(ctx, app.config.Redis, app.logger)
		if err != nil {
			app.logger.Warn("Redis event sink disabled", zap.Error(err))
			return
		}
		app.publisher = publisher
		app.unsubscribe = append(app.unsubscribe, app.session.Subscribe(publisher))
	}
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	app.router = routes.NewRouter(
		app.config,
		app.logger,
		app.session,
		app.scanners,
		app.collector,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      app.router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)

	return nil
}

// factoryConfig maps the file configuration onto the transport factory
func factoryConfig(cfg *config.Config, transportType model.TransportType) protocol.FactoryConfig {
	usb := cfg.Transport.USB
	tcp := cfg.Transport.TCP

	return protocol.FactoryConfig{
		Type: transportType,
		Serial: protocol.SerialConfig{
			Port:        cfg.Serial.Port,
			BaudRate:    cfg.Serial.BaudRate,
			DataBits:    cfg.Serial.DataBits,
			StopBits:    cfg.Serial.StopBits,
			Parity:      cfg.Serial.Parity,
			ReadTimeout: cfg.Serial.ReadTimeout,
		},
		USB: protocol.USBConfig{
			VendorID:     usb.VendorID,
			ProductID:    usb.ProductID,
			SerialNumber: usb.SerialNumber,
			Config:       usb.Config,
			Interface:    usb.Interface,
			InEndpoint:   usb.InEndpoint,
			OutEndpoint:  usb.OutEndpoint,
			Timeout:      usb.Timeout,
		},
		TCP: protocol.TCPConfig{
			Host:         tcp.Host,
			Port:         tcp.Port,
			DialTimeout:  tcp.DialTimeout,
			ReadTimeout:  tcp.ReadTimeout,
			WriteTimeout: tcp.WriteTimeout,
			KeepAlive:    tcp.KeepAlive,
		},
	}
}

// buildSessionConfig overlays the file configuration on the session defaults
func buildSessionConfig(c config.SessionConfig) session.Config {
	cfg := session.DefaultConfig()

	cfg.MaxRetryAttempts = c.MaxRetryAttempts
	cfg.RetryDelay = c.RetryDelay
	cfg.AutoReconnect = c.AutoReconnect
	cfg.ProbeInterval = c.ProbeInterval
	cfg.PollInterval = c.PollInterval
	cfg.MaxLineLength = c.MaxLineLength
	cfg.AutoLoadConfig = c.AutoLoadConfig
	cfg.AutoLoadDelay = c.AutoLoadDelay
	if len(c.PollCommands) > 0 {
		cfg.PollCommands = c.PollCommands
	}
	if c.ReadBufferSize > 0 {
		cfg.ReadBufferSize = c.ReadBufferSize
	}

	return cfg
}

// Start serves HTTP, optionally connects the session and blocks until a shutdown signal
func (app *Application) Start() error {
	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if app.config.Session.ConnectOnStart {
		go app.connectOnStart()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		app.shutdown("shutdown signal received")
		return nil
	case err := <-serverErr:
		app.shutdown("http server failed")
		return err
	}
}

func (app *Application) connectOnStart() {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	state := app.session.Connect(ctx)
	app.logger.Info("Initial connect finished", zap.String("state", state.String()))
}

// shutdown performs graceful shutdown
func (app *Application) shutdown(reason string) {
	serviceLogger := utils.NewServiceLogger(app.logger, "device-session")
	serviceLogger.LogServiceStop(reason)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	app.router.Close()
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if err := app.session.Close(); err != nil {
		app.logger.Error("Session close error", zap.Error(err))
	} else {
		app.logger.Info("Device session closed")
	}

	for _, unsubscribe := range app.unsubscribe {
		unsubscribe()
	}

	if app.publisher != nil {
		if err := app.publisher.Close(); err != nil {
			app.logger.Error("Redis close error", zap.Error(err))
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
