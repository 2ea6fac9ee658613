// Package config loads the bridge configuration from environment
// variables (with optional .env and YAML file overlays) and validates it
// before anything else starts. Invalid configuration is fatal.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mailbox providers for the 2FA sub-flow.
const (
	MailboxNone    = ""
	MailboxBasic   = "basic"
	MailboxGmail   = "gmail"
	MailboxOutlook = "outlook"
)

// Config is the complete process configuration.
type Config struct {
	// Vendor account credentials.
	Email    string `yaml:"email" validate:"required,email"`
	Password string `yaml:"password" validate:"required"`

	// Vendor endpoints. Overridable for testing against staging.
	AuthBaseURL   string `yaml:"auth_base_url" validate:"required,url"`
	APIBaseURL    string `yaml:"api_base_url" validate:"required,url"`
	VendorMQTTURL string `yaml:"vendor_mqtt_url" validate:"required"`

	// Local automation broker. Host "auto" triggers an mDNS lookup for
	// _mqtt._tcp on the local network.
	MQTTHost     string `yaml:"mqtt_host" validate:"required"`
	MQTTPort     int    `yaml:"mqtt_port" validate:"gt=0,lte=65535"`
	MQTTUser     string `yaml:"mqtt_user"`
	MQTTPassword string `yaml:"mqtt_password"`

	// Intervals.
	ZoneReloadInterval   time.Duration `yaml:"-"`
	TokenRefreshInterval time.Duration `yaml:"-"`
	ReferentialsInterval time.Duration `yaml:"-"`
	LiveDataInterval     time.Duration `yaml:"-"`

	// Command retry.
	CommandRetryTimeout time.Duration `yaml:"-"`
	CommandMaxRetries   int           `yaml:"command_max_retries" validate:"gte=0"`

	// Display.
	UseGroupInNames bool `yaml:"use_group_in_names"`

	// 2FA mailbox.
	Mailbox MailboxConfig `yaml:"mailbox"`

	// Observability.
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	HealthPort int    `yaml:"health_port" validate:"gte=0,lte=65535"`
	TraceFile  string `yaml:"trace_file"`

	// Token cache (empty disables persistence).
	TokenCacheFile string `yaml:"token_cache_file"`

	// Testing hooks.
	ForceFreshLogin         bool          `yaml:"force_fresh_login"`
	ForceTokenExpired       bool          `yaml:"force_token_expired"`
	SimulateDisconnectAfter time.Duration `yaml:"-"`
}

// MailboxConfig describes the mailbox polled for 2FA codes.
type MailboxConfig struct {
	Provider string `yaml:"provider" validate:"omitempty,oneof=basic gmail outlook"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`

	// OAuth2 fields for gmail/outlook.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`

	// Sender is the address the verification mail arrives from.
	Sender string `yaml:"sender"`

	// Timeout bounds the overall wait for the verification mail.
	Timeout time.Duration `yaml:"-"`
}

// Configured reports whether a mailbox is available for the 2FA flow.
func (m *MailboxConfig) Configured() bool {
	return m.Provider != MailboxNone
}

// Load reads the configuration. Order of precedence, lowest first:
// defaults, YAML file named by CONFIG_FILE, environment variables.
func Load() (*Config, error) {
	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyYAML(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		AuthBaseURL:   "https://accounts.rehau.com",
		APIBaseURL:    "https://api.nea2aws.aws.rehau.cloud",
		VendorMQTTURL: "wss://mqtt.nea2aws.aws.rehau.cloud/mqtt",

		MQTTPort: 1883,

		ZoneReloadInterval:   300 * time.Second,
		TokenRefreshInterval: 21600 * time.Second,
		ReferentialsInterval: 86400 * time.Second,
		LiveDataInterval:     300 * time.Second,

		CommandRetryTimeout: 30 * time.Second,
		CommandMaxRetries:   3,

		LogLevel:   "info",
		LogFormat:  "console",
		HealthPort: 8080,

		Mailbox: MailboxConfig{
			Port:    995,
			TLS:     true,
			Sender:  "noreply@accounts.rehau.com",
			Timeout: 600 * time.Second,
		},
	}
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Email = getString("REHAU_EMAIL", cfg.Email)
	cfg.Password = getString("REHAU_PASSWORD", cfg.Password)

	cfg.AuthBaseURL = getString("REHAU_AUTH_BASE_URL", cfg.AuthBaseURL)
	cfg.APIBaseURL = getString("REHAU_API_BASE_URL", cfg.APIBaseURL)
	cfg.VendorMQTTURL = getString("REHAU_MQTT_URL", cfg.VendorMQTTURL)

	cfg.MQTTHost = getString("MQTT_HOST", cfg.MQTTHost)
	cfg.MQTTPort = getInt("MQTT_PORT", cfg.MQTTPort)
	cfg.MQTTUser = getString("MQTT_USER", cfg.MQTTUser)
	cfg.MQTTPassword = getString("MQTT_PASSWORD", cfg.MQTTPassword)

	cfg.ZoneReloadInterval = getSeconds("ZONE_RELOAD_INTERVAL", cfg.ZoneReloadInterval)
	cfg.TokenRefreshInterval = getSeconds("TOKEN_REFRESH_INTERVAL", cfg.TokenRefreshInterval)
	cfg.ReferentialsInterval = getSeconds("REFERENTIALS_RELOAD_INTERVAL", cfg.ReferentialsInterval)
	cfg.LiveDataInterval = getSeconds("LIVE_DATA_INTERVAL", cfg.LiveDataInterval)

	cfg.CommandRetryTimeout = getSeconds("COMMAND_RETRY_TIMEOUT", cfg.CommandRetryTimeout)
	cfg.CommandMaxRetries = getInt("COMMAND_MAX_RETRIES", cfg.CommandMaxRetries)

	cfg.UseGroupInNames = getBool("USE_GROUP_IN_NAMES", cfg.UseGroupInNames)

	cfg.LogLevel = getString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getString("LOG_FORMAT", cfg.LogFormat)
	cfg.HealthPort = getInt("HEALTH_PORT", cfg.HealthPort)
	cfg.TraceFile = getString("TRACE_FILE", cfg.TraceFile)
	cfg.TokenCacheFile = getString("TOKEN_CACHE_FILE", cfg.TokenCacheFile)

	cfg.ForceFreshLogin = getBool("FORCE_FRESH_LOGIN", cfg.ForceFreshLogin)
	cfg.ForceTokenExpired = getBool("FORCE_TOKEN_EXPIRED", cfg.ForceTokenExpired)
	cfg.SimulateDisconnectAfter = getSeconds("SIMULATE_DISCONNECT_AFTER_SECONDS", cfg.SimulateDisconnectAfter)

	m := &cfg.Mailbox
	m.Provider = getString("POP3_PROVIDER", m.Provider)
	m.Host = getString("POP3_HOST", m.Host)
	m.Port = getInt("POP3_PORT", m.Port)
	m.User = getString("POP3_USER", m.User)
	m.Password = getString("POP3_PASSWORD", m.Password)
	m.TLS = getBool("POP3_TLS", m.TLS)
	m.ClientID = getString("POP3_CLIENT_ID", m.ClientID)
	m.ClientSecret = getString("POP3_CLIENT_SECRET", m.ClientSecret)
	m.RefreshToken = getString("POP3_REFRESH_TOKEN", m.RefreshToken)
	m.Sender = getString("POP3_SENDER", m.Sender)
	m.Timeout = getSeconds("POP3_TIMEOUT", m.Timeout)
}

func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch cfg.Mailbox.Provider {
	case MailboxNone:
		// 2FA unavailable; login fails only if the vendor demands a code.
	case MailboxBasic:
		if cfg.Mailbox.Host == "" || cfg.Mailbox.User == "" || cfg.Mailbox.Password == "" {
			return fmt.Errorf("invalid configuration: basic mailbox requires POP3_HOST, POP3_USER and POP3_PASSWORD")
		}
	case MailboxGmail, MailboxOutlook:
		if cfg.Mailbox.User == "" || cfg.Mailbox.ClientID == "" || cfg.Mailbox.RefreshToken == "" {
			return fmt.Errorf("invalid configuration: %s mailbox requires POP3_USER, POP3_CLIENT_ID and POP3_REFRESH_TOKEN", cfg.Mailbox.Provider)
		}
	default:
		return fmt.Errorf("invalid configuration: unknown mailbox provider %q", cfg.Mailbox.Provider)
	}

	return nil
}

// getString returns the environment variable or the fallback.
func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getInt returns the environment variable parsed as int, or the fallback.
func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getBool returns the environment variable parsed as bool, or the fallback.
func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getSeconds returns the environment variable interpreted as a second
// count, or the fallback.
func getSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
