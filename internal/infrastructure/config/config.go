package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for homedash.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Store     StoreConfig     `yaml:"store"`
	Devices   DevicesConfig   `yaml:"devices"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains site-specific information.
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// Store backend names.
const (
	StoreBackendMemory = "memory"
	StoreBackendMQTT   = "mqtt"
)

// StoreConfig selects and tunes the realtime key-value store.
type StoreConfig struct {
	// Backend is "mqtt" (retained topics on the broker) or "memory"
	// (process-local, for development and single-node demos).
	Backend string `yaml:"backend"`

	// TopicPrefix is prepended to every path when the MQTT backend is used.
	// Path "Lampu/dapur" becomes topic "<prefix>/state/Lampu/dapur".
	TopicPrefix string `yaml:"topic_prefix"`

	// WriteTimeout bounds every write, in seconds.
	WriteTimeout int `yaml:"write_timeout"`

	// SettleWindow is how long the MQTT backend waits for a retained value
	// after subscribing before reporting the path as absent, in milliseconds.
	SettleWindow int `yaml:"settle_window_ms"`

	// Rules decide who may write which paths. First match wins; unmatched
	// paths are not writable.
	Rules []StoreRuleConfig `yaml:"rules"`
}

// StoreRuleConfig is a single write rule.
type StoreRuleConfig struct {
	// Path is a path.Match pattern, e.g. "Lampu/*".
	Path string `yaml:"path"`
	// Roles allowed to write matching paths.
	Roles []string `yaml:"roles"`
	// Users are email addresses allowed to write regardless of role.
	Users []string `yaml:"users"`
	// ReadOnly denies every write to matching paths.
	ReadOnly bool `yaml:"read_only"`
}

// DevicesConfig lists the controllable devices.
type DevicesConfig struct {
	Rooms []string `yaml:"rooms"`
	Fans  []string `yaml:"fans"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	// WebDir serves the web shell from disk instead of the embedded copy.
	WebDir string `yaml:"web_dir"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
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
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
	// AuthWait is how long a connection may stay in the unknown session
	// state before gated views are routed to login, in seconds.
	AuthWait int `yaml:"auth_wait"`
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

// HistoryConfig controls the local state history kept in SQLite.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// RetentionDays is how long entries are kept.
	RetentionDays int `yaml:"retention_days"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT  JWTConfig  `yaml:"jwt"`
	Seed SeedConfig `yaml:"seed"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"`
}

// SeedConfig describes the owner account created on first boot.
// An empty password makes the seeder generate one and log it once.
type SeedConfig struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	Password    string `yaml:"password"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HOMEDASH_SECTION_KEY
// For example: HOMEDASH_DATABASE_PATH, HOMEDASH_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "home-001",
			Name: "Smart Home",
		},
		Database: DatabaseConfig{
			Path:        "./data/homedash.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "homedash-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Store: StoreConfig{
			Backend:      StoreBackendMQTT,
			TopicPrefix:  "homedash",
			WriteTimeout: 5,
			SettleWindow: 250,
			Rules:        DefaultStoreRules(),
		},
		Devices: DevicesConfig{
			Rooms: []string{"dapur", "tamu", "makan"},
			Fans:  []string{"kamar"},
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
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			AuthWait:       10,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  15,
				RefreshTokenTTL: 1440,
			},
			Seed: SeedConfig{
				Email:       "owner@homedash.local",
				DisplayName: "Pemilik Rumah",
			},
		},
	}
}

// DefaultStoreRules lets household roles operate lights and fans and keeps
// the sensor subtree read-only.
func DefaultStoreRules() []StoreRuleConfig {
	household := []string{"owner", "admin", "user"}
	return []StoreRuleConfig{
		{Path: "Lampu/*", Roles: household},
		{Path: "Kipas/*", Roles: household},
		{Path: "dht22/*", ReadOnly: true},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOMEDASH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("HOMEDASH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HOMEDASH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HOMEDASH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("HOMEDASH_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}

	if v := os.Getenv("HOMEDASH_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HOMEDASH_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("HOMEDASH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Always override the JWT secret in production.
	if v := os.Getenv("HOMEDASH_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("HOMEDASH_SEED_PASSWORD"); v != "" {
		cfg.Security.Seed.Password = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	switch c.Store.Backend {
	case StoreBackendMemory, StoreBackendMQTT:
	default:
		errs = append(errs, fmt.Sprintf("store.backend must be %q or %q", StoreBackendMemory, StoreBackendMQTT))
	}
	if c.Store.WriteTimeout < 0 {
		errs = append(errs, "store.write_timeout must not be negative")
	}
	for i, r := range c.Store.Rules {
		if r.Path == "" {
			errs = append(errs, fmt.Sprintf("store.rules[%d].path is required", i))
		}
	}

	if len(c.Devices.Rooms) == 0 && len(c.Devices.Fans) == 0 {
		errs = append(errs, "devices: at least one room or fan is required")
	}

	if c.History.Enabled && c.History.RetentionDays < 1 {
		errs = append(errs, "history.retention_days must be at least 1")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A forged token would let anyone switch the house, so the secret is mandatory.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set HOMEDASH_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// StoreWriteTimeout returns the store write timeout as a Duration.
func (c *Config) StoreWriteTimeout() time.Duration {
	return time.Duration(c.Store.WriteTimeout) * time.Second
}

// StoreSettleWindow returns the MQTT initial-value settle window as a Duration.
func (c *Config) StoreSettleWindow() time.Duration {
	return time.Duration(c.Store.SettleWindow) * time.Millisecond
}

// HistoryRetention returns the state history retention as a Duration.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}
