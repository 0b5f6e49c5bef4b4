package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/gookit/validate"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultTokenSecret is only suitable for local development.
const DefaultTokenSecret = "muenzbox-dev-secret-change-me"

// Config holds application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Devices   DevicesConfig   `mapstructure:"devices"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"required|min:1|max:65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"required|min:1"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"required|min:1"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"required|min:1"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required|min:1"`
}

type DatabaseConfig struct {
	Type string `mapstructure:"type" validate:"required|in:sqlite,sqlite3,postgres,postgresql,mysql"`
	Path string `mapstructure:"path"`
	URL  string `mapstructure:"url"`
}

type AuthConfig struct {
	TokenSecret     string        `mapstructure:"token_secret" validate:"required|minLen:16"`
	AdminPIN        string        `mapstructure:"admin_pin" validate:"required|minLen:4"`
	ChildTokenTTL   time.Duration `mapstructure:"child_token_ttl" validate:"required|min:1"`
	AdminTokenTTL   time.Duration `mapstructure:"admin_token_ttl" validate:"required|min:1"`
	LoginRateLimit  int           `mapstructure:"login_rate_limit" validate:"required|min:1"`
	LoginRateWindow time.Duration `mapstructure:"login_rate_window" validate:"required|min:1"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required|in:trace,debug,info,warn,error"`
	Pretty bool   `mapstructure:"pretty"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"required|min:1"`
	Timezone string        `mapstructure:"timezone" validate:"required"`
}

type DevicesConfig struct {
	Timeout  time.Duration  `mapstructure:"timeout" validate:"required|min:1"`
	UseMock  bool           `mapstructure:"use_mock"`
	MikroTik MikroTikConfig `mapstructure:"mikrotik"`
	FritzBox FritzBoxConfig `mapstructure:"fritzbox"`
	Console  ConsoleConfig  `mapstructure:"console"`
}

// MikroTikConfig holds fallbacks used when a device row has no router settings.
type MikroTikConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type FritzBoxConfig struct {
	Host           string `mapstructure:"host"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	AllowedProfile string `mapstructure:"allowed_profile"`
	BlockedProfile string `mapstructure:"blocked_profile"`
}

// ConsoleConfig points at the parental-controls bridge for the game console.
type ConsoleConfig struct {
	BridgeURL string `mapstructure:"bridge_url"`
	Token     string `mapstructure:"token"`
}

type AlertsConfig struct {
	FromEmail string `mapstructure:"from_email"`
	ToEmail   string `mapstructure:"to_email"`
	Region    string `mapstructure:"region"`
}

// MaxDeviceTimeout caps every hardware call.
const MaxDeviceTimeout = 10 * time.Second

var envBindings = map[string]string{
	"server.host":                      "HOST",
	"server.port":                      "PORT",
	"server.read_timeout":              "SERVER_READ_TIMEOUT",
	"server.write_timeout":             "SERVER_WRITE_TIMEOUT",
	"server.idle_timeout":              "SERVER_IDLE_TIMEOUT",
	"server.shutdown_timeout":          "SERVER_SHUTDOWN_TIMEOUT",
	"database.type":                    "DATABASE_TYPE",
	"database.path":                    "DB_PATH",
	"database.url":                     "DATABASE_URL",
	"auth.token_secret":                "TOKEN_SECRET",
	"auth.admin_pin":                   "ADMIN_PIN",
	"auth.child_token_ttl":             "CHILD_TOKEN_TTL",
	"auth.admin_token_ttl":             "ADMIN_TOKEN_TTL",
	"auth.login_rate_limit":            "LOGIN_RATE_LIMIT",
	"auth.login_rate_window":           "LOGIN_RATE_WINDOW",
	"log.level":                        "LOG_LEVEL",
	"log.pretty":                       "LOG_PRETTY",
	"metrics.enabled":                  "METRICS_ENABLED",
	"scheduler.interval":               "SCHEDULER_INTERVAL",
	"scheduler.timezone":               "TIMEZONE",
	"devices.timeout":                  "DEVICE_TIMEOUT",
	"devices.use_mock":                 "USE_MOCK_ADAPTERS",
	"devices.mikrotik.host":            "MIKROTIK_HOST",
	"devices.mikrotik.user":            "MIKROTIK_USER",
	"devices.mikrotik.password":        "MIKROTIK_PASSWORD",
	"devices.fritzbox.host":            "FRITZBOX_HOST",
	"devices.fritzbox.user":            "FRITZBOX_USER",
	"devices.fritzbox.password":        "FRITZBOX_PASSWORD",
	"devices.fritzbox.allowed_profile": "FRITZBOX_ALLOWED_PROFILE",
	"devices.fritzbox.blocked_profile": "FRITZBOX_BLOCKED_PROFILE",
	"devices.console.bridge_url":       "CONSOLE_BRIDGE_URL",
	"devices.console.token":            "CONSOLE_BRIDGE_TOKEN",
	"alerts.from_email":                "SES_FROM_EMAIL",
	"alerts.to_email":                  "ALERT_EMAIL",
	"alerts.region":                    "AWS_REGION",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./muenzbox.db")
	v.SetDefault("database.url", "")

	v.SetDefault("auth.token_secret", DefaultTokenSecret)
	v.SetDefault("auth.admin_pin", "1234")
	v.SetDefault("auth.child_token_ttl", 8*time.Hour)
	v.SetDefault("auth.admin_token_ttl", 12*time.Hour)
	v.SetDefault("auth.login_rate_limit", 10)
	v.SetDefault("auth.login_rate_window", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("scheduler.interval", time.Minute)
	v.SetDefault("scheduler.timezone", "Europe/Berlin")

	v.SetDefault("devices.timeout", MaxDeviceTimeout)
	v.SetDefault("devices.use_mock", false)
	v.SetDefault("devices.mikrotik.host", "")
	v.SetDefault("devices.mikrotik.user", "")
	v.SetDefault("devices.mikrotik.password", "")
	v.SetDefault("devices.fritzbox.host", "fritz.box")
	v.SetDefault("devices.fritzbox.user", "")
	v.SetDefault("devices.fritzbox.password", "")
	v.SetDefault("devices.fritzbox.allowed_profile", "Standard")
	v.SetDefault("devices.fritzbox.blocked_profile", "Gesperrt")
	v.SetDefault("devices.console.bridge_url", "")
	v.SetDefault("devices.console.token", "")

	v.SetDefault("alerts.from_email", "")
	v.SetDefault("alerts.to_email", "")
	v.SetDefault("alerts.region", "eu-central-1")
}

// Load reads configuration from an optional .env file, an optional YAML file
// named by CONFIG_FILE and the environment, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		filename := filepath.Base(path)
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks every section and the cross-field rules.
func (c *Config) Validate() error {
	sections := []any{&c.Server, &c.Database, &c.Auth, &c.Log, &c.Scheduler, &c.Devices}
	for _, section := range sections {
		v := validate.Struct(section)
		if !v.Validate() {
			return fmt.Errorf("invalid configuration: %w", v.Errors)
		}
	}

	switch strings.ToLower(c.Database.Type) {
	case "postgres", "postgresql", "mysql":
		if c.Database.URL == "" {
			return fmt.Errorf("invalid configuration: DATABASE_URL is required for %s", c.Database.Type)
		}
	default:
		if c.Database.Path == "" {
			return errors.New("invalid configuration: DB_PATH is required for sqlite")
		}
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid configuration: unknown timezone %q: %w", c.Scheduler.Timezone, err)
	}

	if c.Devices.Timeout > MaxDeviceTimeout {
		c.Devices.Timeout = MaxDeviceTimeout
	}

	return nil
}

// Location returns the household time zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
