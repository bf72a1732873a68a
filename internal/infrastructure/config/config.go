package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Latch Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Relay     RelayConfig     `yaml:"relay"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// RelayConfig identifies the door relay and sets its timing policy.
type RelayConfig struct {
	// DeviceID is the relay's identifier as provisioned on the gateway.
	DeviceID string `yaml:"device_id"`

	// Key is the pre-shared local key. Always override in production:
	// LATCH_RELAY_KEY.
	Key string `yaml:"key"`

	// Host is the gateway's LAN address.
	Host string `yaml:"host"`

	// Port is the gateway's TCP port. Default: 6668
	Port int `yaml:"port"`

	// Version is the gateway protocol version. Default: "3.3"
	Version string `yaml:"version"`

	// UnlockDurationMS is the window before the auto-lock fires.
	// Default: 3000
	UnlockDurationMS int `yaml:"unlock_duration_ms"`

	// RetryDelaySeconds is the fixed delay between reconnect attempts.
	// Default: 5
	RetryDelaySeconds int `yaml:"retry_delay_seconds"`

	// CommandTimeoutSeconds caps a single device command. Default: 10
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds"`

	// ConnectTimeoutSeconds caps dial plus handshake. Default: 10
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`

	// HeartbeatSeconds is the keepalive ping cadence. Default: 10
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`

	// SettleDelayMS is the pause after an identity rebind before the
	// session is rebuilt. Default: 1000
	SettleDelayMS int `yaml:"settle_delay_ms"`

	// ReadTimeoutSeconds is the session read deadline; it bounds how
	// long the gateway may stay silent between frames. Default: 30
	ReadTimeoutSeconds int `yaml:"read_timeout_seconds"`

	// WriteTimeoutSeconds is the session write deadline. Default: 5
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (in seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB time-series database settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig        `yaml:"jwt"`
	Operators []OperatorConfig `yaml:"operators"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// OperatorConfig is one API principal allowed to request tokens.
// KeyHash is an argon2id PHC string produced by `latchd -hash-key`.
type OperatorConfig struct {
	Subject string `yaml:"subject"`
	Role    string `yaml:"role"`
	KeyHash string `yaml:"key_hash"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LATCH_SECTION_KEY
// For example: LATCH_RELAY_KEY, LATCH_JWT_SECRET
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			Port:                  6668,
			Version:               "3.3",
			UnlockDurationMS:      3000,
			RetryDelaySeconds:     5,
			CommandTimeoutSeconds: 10,
			ConnectTimeoutSeconds: 10,
			HeartbeatSeconds:      10,
			SettleDelayMS:         1000,
			ReadTimeoutSeconds:    30,
			WriteTimeoutSeconds:   5,
		},
		Database: DatabaseConfig{
			Path:        "./data/latch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "latch-core",
			},
			QoS:         1,
			TopicPrefix: "latch",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0, // 0 = infinite
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
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
				AccessTokenTTL: 15,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 100,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LATCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Relay
	if v := os.Getenv("LATCH_RELAY_DEVICE_ID"); v != "" {
		cfg.Relay.DeviceID = v
	}
	if v := os.Getenv("LATCH_RELAY_KEY"); v != "" {
		cfg.Relay.Key = v
	}
	if v := os.Getenv("LATCH_RELAY_HOST"); v != "" {
		cfg.Relay.Host = v
	}

	// Database
	if v := os.Getenv("LATCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LATCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LATCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LATCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("LATCH_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("LATCH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("LATCH_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Relay validation. The pre-shared key gates physical access to a
	// door, so a missing or truncated key is a hard error.
	const minRelayKeyLength = 16
	if c.Relay.DeviceID == "" {
		errs = append(errs, "relay.device_id is required")
	}
	if c.Relay.Key == "" {
		errs = append(errs, "relay.key is required (set LATCH_RELAY_KEY environment variable)")
	} else if len(c.Relay.Key) < minRelayKeyLength {
		errs = append(errs, "relay.key must be at least 16 characters")
	}
	if c.Relay.Host == "" {
		errs = append(errs, "relay.host is required")
	}
	if c.Relay.Port < 1 || c.Relay.Port > 65535 {
		errs = append(errs, "relay.port must be between 1 and 65535")
	}
	if c.Relay.UnlockDurationMS < 1 {
		errs = append(errs, "relay.unlock_duration_ms must be positive")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Security validation - JWT secret is REQUIRED
	// This service commands a physical door. Empty or weak secrets would
	// let an attacker forge tokens and open it.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set LATCH_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	// Operator validation
	for i, op := range c.Security.Operators {
		if op.Subject == "" {
			errs = append(errs, fmt.Sprintf("security.operators[%d].subject is required", i))
		}
		if op.KeyHash == "" {
			errs = append(errs, fmt.Sprintf("security.operators[%d].key_hash is required", i))
		}
		switch op.Role {
		case "", "operator", "admin":
		default:
			errs = append(errs, fmt.Sprintf("security.operators[%d].role must be operator or admin", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Addr returns the gateway address in host:port form.
func (r RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// GetUnlockDuration returns the auto-lock window as a Duration.
func (r RelayConfig) GetUnlockDuration() time.Duration {
	return time.Duration(r.UnlockDurationMS) * time.Millisecond
}

// GetRetryDelay returns the reconnect delay as a Duration.
func (r RelayConfig) GetRetryDelay() time.Duration {
	return time.Duration(r.RetryDelaySeconds) * time.Second
}

// GetCommandTimeout returns the device command ceiling as a Duration.
func (r RelayConfig) GetCommandTimeout() time.Duration {
	return time.Duration(r.CommandTimeoutSeconds) * time.Second
}

// GetConnectTimeout returns the dial plus handshake ceiling as a Duration.
func (r RelayConfig) GetConnectTimeout() time.Duration {
	return time.Duration(r.ConnectTimeoutSeconds) * time.Second
}

// GetHeartbeatInterval returns the keepalive cadence as a Duration.
func (r RelayConfig) GetHeartbeatInterval() time.Duration {
	return time.Duration(r.HeartbeatSeconds) * time.Second
}

// GetSettleDelay returns the post-rebind pause as a Duration.
func (r RelayConfig) GetSettleDelay() time.Duration {
	return time.Duration(r.SettleDelayMS) * time.Millisecond
}

// GetReadTimeout returns the session read deadline as a Duration.
func (r RelayConfig) GetReadTimeout() time.Duration {
	return time.Duration(r.ReadTimeoutSeconds) * time.Second
}

// GetWriteTimeout returns the session write deadline as a Duration.
func (r RelayConfig) GetWriteTimeout() time.Duration {
	return time.Duration(r.WriteTimeoutSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
