// Package config resolves process settings from built-in defaults, an optional
// YAML file and the environment, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const EnvConfigPath = "CAFEPOS_CONFIG"

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	ServiceName string `yaml:"serviceName"`
	Env         string `yaml:"env"`
	HTTPAddr    string `yaml:"httpAddr"`
	Timezone    string `yaml:"timezone"`
	LogFile     string `yaml:"logFile"`

	Storage  Storage  `yaml:"storage"`
	Auth     Auth     `yaml:"auth"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	Kafka    Kafka    `yaml:"kafka"`

	TracesExporter      string        `yaml:"tracesExporter"`
	EventQueueSize      int           `yaml:"eventQueueSize"`
	EventHandlerTimeout time.Duration `yaml:"eventHandlerTimeout"`

	// AllowedOrigins lists browser origins, besides the serving host, that may
	// open the realtime socket. "*" allows any.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Storage struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlitePath"`
	DatabaseURL string `yaml:"databaseUrl"`
	MenuFile    string `yaml:"menuFile"`
}

type Auth struct {
	JWTSecret         string        `yaml:"jwtSecret"`
	AdminUser         string        `yaml:"adminUser"`
	AdminPasswordHash string        `yaml:"adminPasswordHash"`
	TokenTTL          time.Duration `yaml:"tokenTtl"`
}

type RabbitMQ struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func Default() Config {
	return Config{
		ServiceName: "cafepos",
		Env:         "dev",
		HTTPAddr:    ":4000",
		Storage: Storage{
			Driver:     DriverMemory,
			SQLitePath: "cafepos.db",
		},
		Auth: Auth{
			AdminUser: "admin",
			TokenTTL:  12 * time.Hour,
		},
		RabbitMQ:            RabbitMQ{Exchange: "orders_fanout"},
		Kafka:               Kafka{Topic: "cafepos.orders"},
		EventQueueSize:      1024,
		EventHandlerTimeout: 5 * time.Second,
	}
}

// Load applies the file at path (skipped when empty) and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv(getenv func(string) string) error {
	c.ServiceName = getenvDefault(getenv, "SERVICE_NAME", c.ServiceName)
	c.Env = getenvDefault(getenv, "ENV", c.Env)
	c.HTTPAddr = getenvDefault(getenv, "HTTP_ADDR", c.HTTPAddr)
	c.Timezone = getenvDefault(getenv, "TIMEZONE", c.Timezone)
	c.LogFile = getenvDefault(getenv, "LOG_FILE", c.LogFile)

	c.Storage.Driver = strings.ToLower(getenvDefault(getenv, "STORAGE_DRIVER", c.Storage.Driver))
	c.Storage.SQLitePath = getenvDefault(getenv, "SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.DatabaseURL = getenvDefault(getenv, "DATABASE_URL", c.Storage.DatabaseURL)
	c.Storage.MenuFile = getenvDefault(getenv, "MENU_FILE", c.Storage.MenuFile)

	c.Auth.JWTSecret = getenvDefault(getenv, "AUTH_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AdminUser = getenvDefault(getenv, "AUTH_ADMIN_USER", c.Auth.AdminUser)
	c.Auth.AdminPasswordHash = getenvDefault(getenv, "AUTH_ADMIN_PASSWORD_HASH", c.Auth.AdminPasswordHash)
	if v := getenv("AUTH_TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: AUTH_TOKEN_TTL: %w", err)
		}
		c.Auth.TokenTTL = ttl
	}

	c.RabbitMQ.URL = getenvDefault(getenv, "RABBITMQ_URL", c.RabbitMQ.URL)
	c.RabbitMQ.Exchange = getenvDefault(getenv, "RABBITMQ_EXCHANGE", c.RabbitMQ.Exchange)
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	c.Kafka.Topic = getenvDefault(getenv, "KAFKA_TOPIC", c.Kafka.Topic)

	c.TracesExporter = getenvDefault(getenv, "OTEL_TRACES_EXPORTER", c.TracesExporter)
	if v := getenv("EVENT_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: EVENT_QUEUE_SIZE: %w", err)
		}
		c.EventQueueSize = n
	}
	if v := getenv("EVENT_HANDLER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: EVENT_HANDLER_TIMEOUT: %w", err)
		}
		c.EventHandlerTimeout = d
	}
	if v := getenv("REALTIME_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite storage requires SQLITE_PATH"))
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres storage requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}
	if c.Auth.JWTSecret == "" && !c.IsDev() {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required outside dev"))
	}
	if c.Auth.AdminPasswordHash == "" && !c.IsDev() {
		errs = append(errs, errors.New("AUTH_ADMIN_PASSWORD_HASH is required outside dev"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL must be positive"))
	}
	if c.EventQueueSize <= 0 {
		errs = append(errs, errors.New("EVENT_QUEUE_SIZE must be positive"))
	}
	if c.EventHandlerTimeout <= 0 {
		errs = append(errs, errors.New("EVENT_HANDLER_TIMEOUT must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) IsDev() bool { return c.Env == "dev" }

// Location resolves TIMEZONE, falling back to the process zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getenvDefault(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
