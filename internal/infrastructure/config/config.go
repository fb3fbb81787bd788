package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Actuator transports.
const (
	TransportGPIO = "gpio"
	TransportMQTT = "mqtt"
	TransportNoop = "noop"
)

// Gate initial state policies.
const (
	InitialStateClosed  = "closed"
	InitialStateRestore = "restore"
)

// Config is the root configuration structure for Gray Logic Gate.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Actuator  ActuatorConfig  `yaml:"actuator"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Gate      GateConfig      `yaml:"gate"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// DevMode swaps the hardware driver for a no-op one. Never enable on a real gate.
	DevMode bool `yaml:"dev_mode"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Panel    PanelConfig      `yaml:"panel"`
}

// PanelConfig controls the built-in control page served at "/".
type PanelConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir serves the page from disk instead of the embedded copy.
	Dir string `yaml:"dir"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
// Write must exceed the relay dwell or toggle responses are cut off.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	SeedAdmin SeedAdminConfig `yaml:"seed_admin"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// RateLimitConfig throttles login attempts per client address.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// SeedAdminConfig describes the admin account created on first boot when the
// credential store is empty. An empty password means one is generated and logged.
type SeedAdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ActuatorConfig selects and configures the relay driver.
type ActuatorConfig struct {
	Transport string             `yaml:"transport"`
	GPIO      GPIOActuatorConfig `yaml:"gpio"`
	MQTT      MQTTActuatorConfig `yaml:"mqtt"`
}

// GPIOActuatorConfig configures the direct relay output.
type GPIOActuatorConfig struct {
	// Pin is the periph.io pin name, e.g. "GPIO17".
	Pin string `yaml:"pin"`

	// ActiveLow drives the line low to energise the relay. Most opto-isolated
	// relay boards are wired this way.
	ActiveLow bool `yaml:"active_low"`
}

// MQTTActuatorConfig configures the smart-plug command.
type MQTTActuatorConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     int    `yaml:"qos"`

	// AvailabilityTopic is the plug's retained LWT topic ("Online"/"Offline").
	// Empty disables availability tracking.
	AvailabilityTopic string `yaml:"availability_topic"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// GateConfig contains gate state machine settings.
type GateConfig struct {
	// Name labels telemetry and audit entries.
	Name string `yaml:"name"`

	// InitialState decides the logical state at boot: "closed" assumes the
	// gate is shut, "restore" reloads the last committed state. Neither is
	// sensed; see the gate package documentation.
	InitialState string `yaml:"initial_state"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern GRAYGATE_SECTION_KEY,
// for example GRAYGATE_DATABASE_PATH or GRAYGATE_JWT_SECRET.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults. The JWT secret is left
// empty on purpose: it must come from the file or GRAYGATE_JWT_SECRET.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "gate-001",
			Name: "Gray Logic Gate",
		},
		Database: DatabaseConfig{
			Path:        "./data/graygate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Panel: PanelConfig{
				Enabled: true,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 10,
				Burst:             5,
			},
			SeedAdmin: SeedAdminConfig{
				Username: "admin",
			},
		},
		Actuator: ActuatorConfig{
			Transport: TransportGPIO,
			GPIO: GPIOActuatorConfig{
				Pin:       "GPIO17",
				ActiveLow: true,
			},
			MQTT: MQTTActuatorConfig{
				Topic:             "cmnd/gate/POWER",
				Payload:           "TOGGLE",
				QoS:               1,
				AvailabilityTopic: "tele/gate/LWT",
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graygate",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Gate: GateConfig{
			Name:         "main",
			InitialState: InitialStateClosed,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	strOverrides := map[string]*string{
		"GRAYGATE_DATABASE_PATH":      &cfg.Database.Path,
		"GRAYGATE_API_HOST":           &cfg.API.Host,
		"GRAYGATE_JWT_SECRET":         &cfg.Security.JWT.Secret,
		"GRAYGATE_ADMIN_PASSWORD":     &cfg.Security.SeedAdmin.Password,
		"GRAYGATE_ACTUATOR_TRANSPORT": &cfg.Actuator.Transport,
		"GRAYGATE_GPIO_PIN":           &cfg.Actuator.GPIO.Pin,
		"GRAYGATE_MQTT_HOST":          &cfg.MQTT.Broker.Host,
		"GRAYGATE_MQTT_USERNAME":      &cfg.MQTT.Auth.Username,
		"GRAYGATE_MQTT_PASSWORD":      &cfg.MQTT.Auth.Password,
		"GRAYGATE_MQTT_TOPIC":         &cfg.Actuator.MQTT.Topic,
		"GRAYGATE_INFLUXDB_TOKEN":     &cfg.InfluxDB.Token,
	}
	for key, dst := range strOverrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("GRAYGATE_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRAYGATE_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	return nil
}

// minJWTSecretLength guards against forgeable tokens. The tokens open a
// physical gate, so a short secret is a configuration error, not a warning.
const minJWTSecretLength = 32

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GRAYGATE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be positive when enabled")
	}

	errs = append(errs, c.validateActuator()...)

	switch c.Gate.InitialState {
	case InitialStateClosed, InitialStateRestore:
	default:
		errs = append(errs, "gate.initial_state must be \"closed\" or \"restore\"")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateActuator() []string {
	var errs []string

	switch c.Actuator.Transport {
	case TransportGPIO:
		if c.Actuator.GPIO.Pin == "" {
			errs = append(errs, "actuator.gpio.pin is required for the gpio transport")
		}
	case TransportMQTT:
		if c.Actuator.MQTT.Topic == "" {
			errs = append(errs, "actuator.mqtt.topic is required for the mqtt transport")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required for the mqtt transport")
		}
		if c.Actuator.MQTT.QoS < 0 || c.Actuator.MQTT.QoS > 2 {
			errs = append(errs, "actuator.mqtt.qos must be 0, 1, or 2")
		}
	case TransportNoop:
		if !c.DevMode {
			errs = append(errs, "actuator.transport noop requires dev_mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("actuator.transport %q is not one of gpio, mqtt, noop", c.Actuator.Transport))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	return errs
}

// UsesMQTT reports whether a broker connection is needed at startup.
func (c *Config) UsesMQTT() bool {
	return c.Actuator.Transport == TransportMQTT
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
