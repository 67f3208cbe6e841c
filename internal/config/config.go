package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"greeting-service/internal/db"
	"greeting-service/internal/telemetry"
)

const (
	DefaultListenAddress  = "localhost:8000"
	DefaultMetricsAddress = "localhost:9009"
	DefaultDatabaseHost   = "localhost"
	DefaultDatabasePort   = 5432
)

// Config is the whole service configuration. Values are resolved in order:
// defaults, then the optional YAML file, then the environment.
type Config struct {
	ListenAddress  string           `yaml:"listen-address"`
	MetricsAddress string           `yaml:"metrics-address"`
	LogLevel       string           `yaml:"loglevel"`
	LogFormat      string           `yaml:"log-format"`
	Database       Database         `yaml:"database"`
	CORS           CORS             `yaml:"cors"`
	Telemetry      telemetry.Config `yaml:"telemetry"`
}

// Database holds the connection settings and the pool limits.
type Database struct {
	User             string `yaml:"user"`
	Password         string `yaml:"password"`
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Name             string `yaml:"name"`
	SSLMode          string `yaml:"sslmode"`
	MaxConnections   int    `yaml:"max-connections"`
	IdleTimeoutMS    int    `yaml:"idle-timeout-ms"`
	AcquireTimeoutMS int    `yaml:"acquire-timeout-ms"`
	QueryTimeoutMS   int    `yaml:"query-timeout-ms"`
}

// CORS is disabled unless at least one origin is allowed.
type CORS struct {
	AllowedOrigins []string `yaml:"allowed-origins"`
	AllowedHeaders []string `yaml:"allowed-headers"`
	MaxAge         int      `yaml:"max-age"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		ListenAddress:  DefaultListenAddress,
		MetricsAddress: DefaultMetricsAddress,
		LogLevel:       "info",
		LogFormat:      "json",
		Database: Database{
			Host:           DefaultDatabaseHost,
			Port:           DefaultDatabasePort,
			MaxConnections: db.DefaultMaxConns,
			IdleTimeoutMS:  int(db.DefaultIdleTimeout / time.Millisecond),
		},
	}
}

// Load builds the configuration from the defaults, the YAML file at path (if
// path is not empty) and the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error decoding config file %q: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Database.User, "PGUSER")
	setString(&c.Database.Password, "PGPASSWORD")
	setString(&c.Database.Host, "PGHOST")
	setString(&c.Database.Name, "PGDATABASE")
	setString(&c.Database.SSLMode, "PGSSLMODE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.MetricsAddress, "METRICS_ADDRESS")
	setString(&c.Telemetry.Endpoint, "OTEL_ENDPOINT")

	for env, dst := range map[string]*int{
		"PGPORT":                &c.Database.Port,
		"DB_POOL_MAX":           &c.Database.MaxConnections,
		"DB_IDLE_TIMEOUT_MS":    &c.Database.IdleTimeoutMS,
		"DB_ACQUIRE_TIMEOUT_MS": &c.Database.AcquireTimeoutMS,
		"DB_QUERY_TIMEOUT_MS":   &c.Database.QueryTimeoutMS,
	} {
		if err := setInt(dst, env); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) error {
	v, ok := os.LookupEnv(env)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", env, v, err)
	}
	*dst = n
	return nil
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid loglevel: %w", err)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q, expected json or text", c.LogFormat)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port %d", c.Database.Port)
	}
	if err := c.Database.PoolConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// PoolConfig returns the pool limits described by d.
func (d Database) PoolConfig() db.PoolConfig {
	return db.PoolConfig{
		MaxConns:       d.MaxConnections,
		IdleTimeout:    time.Duration(d.IdleTimeoutMS) * time.Millisecond,
		AcquireTimeout: time.Duration(d.AcquireTimeoutMS) * time.Millisecond,
		QueryTimeout:   time.Duration(d.QueryTimeoutMS) * time.Millisecond,
	}
}

// ConnString returns a postgres URL for d. Empty fields are left out so the
// driver can fill them from its own defaults.
func (d Database) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
	}
	switch {
	case d.User != "" && d.Password != "":
		u.User = url.UserPassword(d.User, d.Password)
	case d.User != "":
		u.User = url.User(d.User)
	}
	if d.Name != "" {
		u.Path = "/" + d.Name
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

// Redacted returns a copy of d safe to log.
func (d Database) Redacted() Database {
	if d.Password != "" {
		d.Password = "xxxxx"
	}
	return d
}
