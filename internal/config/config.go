// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	App       AppConfig       `mapstructure:"app"`
	Security  SecurityConfig  `mapstructure:"security"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Transport TransportConfig `mapstructure:"transport"`
	Session   SessionConfig   `mapstructure:"session"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SerialConfig configures the serial link. Port may be "auto".
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	StopBits    int           `mapstructure:"stop_bits"`
	Parity      string        `mapstructure:"parity"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// TransportConfig selects the transport and configures the non-serial ones
type TransportConfig struct {
	Type string             `mapstructure:"type"`
	USB  USBTransportConfig `mapstructure:"usb"`
	TCP  TCPTransportConfig `mapstructure:"tcp"`
}

// USBTransportConfig represents USB CDC configuration
type USBTransportConfig struct {
	VendorID     string        `mapstructure:"vendor_id"`
	ProductID    string        `mapstructure:"product_id"`
	SerialNumber string        `mapstructure:"serial_number"`
	Config       int           `mapstructure:"config"`
	Interface    int           `mapstructure:"interface"`
	InEndpoint   int           `mapstructure:"in_endpoint"`
	OutEndpoint  int           `mapstructure:"out_endpoint"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// TCPTransportConfig represents a TCP serial bridge
type TCPTransportConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeepAlive    bool          `mapstructure:"keep_alive"`
}

// SessionConfig represents connection lifecycle and health timing
type SessionConfig struct {
	MaxRetryAttempts int           `mapstructure:"max_retry_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	AutoReconnect    bool          `mapstructure:"auto_reconnect"`
	ProbeInterval    time.Duration `mapstructure:"probe_interval"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	PollCommands     []string      `mapstructure:"poll_commands"`
	MaxLineLength    int           `mapstructure:"max_line_length"`
	ReadBufferSize   int           `mapstructure:"read_buffer_size"`
	AutoLoadConfig   bool          `mapstructure:"auto_load_config"`
	AutoLoadDelay    time.Duration `mapstructure:"auto_load_delay"`
	ConnectOnStart   bool          `mapstructure:"connect_on_start"`
}

// RedisConfig represents the optional event sink
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// MetricsConfig represents the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from config.yaml and DEVICE_SESSION_* environment
// variables. A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/device-session")

	return load(v)
}

// LoadFile loads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Environment variable support
	v.SetEnvPrefix("DEVICE_SESSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// App defaults
	v.SetDefault("app.name", "device-session")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("security.allowed_origins", []string{"*"})

	// Serial defaults
	v.SetDefault("serial.port", "auto")
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "none")
	v.SetDefault("serial.read_timeout", "100ms")

	// Transport defaults
	v.SetDefault("transport.type", "serial")
	v.SetDefault("transport.usb.vendor_id", "10c4")
	v.SetDefault("transport.usb.product_id", "ea60")
	v.SetDefault("transport.usb.in_endpoint", 1)
	v.SetDefault("transport.usb.out_endpoint", 1)
	v.SetDefault("transport.usb.timeout", "5s")
	v.SetDefault("transport.tcp.host", "localhost")
	v.SetDefault("transport.tcp.port", 3333)
	v.SetDefault("transport.tcp.dial_timeout", "10s")
	v.SetDefault("transport.tcp.write_timeout", "5s")
	v.SetDefault("transport.tcp.keep_alive", true)

	// Session defaults
	v.SetDefault("session.max_retry_attempts", 3)
	v.SetDefault("session.retry_delay", "2s")
	v.SetDefault("session.auto_reconnect", false)
	v.SetDefault("session.probe_interval", "5s")
	v.SetDefault("session.poll_interval", "2s")
	v.SetDefault("session.poll_commands", []string{"NETWORK_STATUS", "NETWORK_STATS", "IO_STATUS", "DEVICE_DATA"})
	v.SetDefault("session.max_line_length", 4096)
	v.SetDefault("session.read_buffer_size", 1024)
	v.SetDefault("session.auto_load_config", true)
	v.SetDefault("session.auto_load_delay", "2s")
	v.SetDefault("session.connect_on_start", true)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "device-session:events")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !slices.Contains(validEnvs, c.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !slices.Contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	validTypes := []string{"serial", "usb", "tcp"}
	if !slices.Contains(validTypes, strings.ToLower(c.Transport.Type)) {
		return fmt.Errorf("transport.type must be one of: %v", validTypes)
	}

	if c.Transport.Type == "serial" && c.Serial.Port == "" {
		return fmt.Errorf("serial.port is required")
	}

	if c.Session.MaxRetryAttempts < 1 {
		return fmt.Errorf("session.max_retry_attempts must be at least 1")
	}
	if c.Session.RetryDelay <= 0 {
		return fmt.Errorf("session.retry_delay must be positive")
	}
	if c.Session.ProbeInterval <= 0 || c.Session.PollInterval <= 0 {
		return fmt.Errorf("session.probe_interval and session.poll_interval must be positive")
	}
	if c.Session.MaxLineLength <= 0 || c.Session.ReadBufferSize <= 0 {
		return fmt.Errorf("session.max_line_length and session.read_buffer_size must be positive")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	return nil
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
