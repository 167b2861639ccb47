package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds all application settings. Secrets only come from the environment;
// the YAML overlay can set the tuning fields.
type Config struct {
	ServerPort     int      `yaml:"server_port"`
	StorageDriver  string   `yaml:"storage_driver"`
	LogLevel       string   `yaml:"log_level"`
	SweepCron      string   `yaml:"sweep_cron"`
	MetricsCap     int      `yaml:"metrics_capacity"`
	AllowedOrigins []string `yaml:"cors_allowed_origins"`
	JWTTTLHours    int      `yaml:"jwt_ttl_hours"`
	MongoDatabase  string   `yaml:"mongo_database"`

	DatabaseURL  string `yaml:"-"`
	MongoURI     string `yaml:"-"`
	JWTSecretKey string `yaml:"-"`
	RabbitMQURL  string `yaml:"-"`

	R2  R2Config  `yaml:"r2"`
	SES SESConfig `yaml:"ses"`
}

type R2Config struct {
	AccountID       string `yaml:"-"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
	BucketName      string `yaml:"bucket_name"`
	PublicBaseURL   string `yaml:"public_base_url"`
}

type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
	Sender          string `yaml:"sender"`
}

func defaults() Config {
	return Config{
		ServerPort:     8080,
		StorageDriver:  DriverPostgres,
		LogLevel:       "info",
		SweepCron:      "* * * * *",
		MetricsCap:     100,
		AllowedOrigins: []string{"*"},
		JWTTTLHours:    24,
		MongoDatabase:  "ecompetition",
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if set),
// then the environment. Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.StorageDriver, "STORAGE_DRIVER")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.SweepCron, "SWEEP_CRON")
	setString(&c.MongoDatabase, "MONGO_DATABASE")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.MongoURI, "MONGO_URI")
	setString(&c.JWTSecretKey, "JWT_SECRET_KEY")
	setString(&c.RabbitMQURL, "RABBITMQ_URL")

	setString(&c.R2.AccountID, "R2_ACCOUNT_ID")
	setString(&c.R2.AccessKeyID, "R2_ACCESS_KEY_ID")
	setString(&c.R2.SecretAccessKey, "R2_SECRET_ACCESS_KEY")
	setString(&c.R2.BucketName, "R2_BUCKET_NAME")
	setString(&c.R2.PublicBaseURL, "R2_PUBLIC_BASE_URL")

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.Sender, "SES_SENDER")

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	for _, f := range []struct {
		key string
		dst *int
	}{
		{"SERVER_PORT", &c.ServerPort},
		{"METRICS_CAPACITY", &c.MetricsCap},
		{"JWT_TTL_HOURS", &c.JWTTTLHours},
	} {
		if err := setInt(f.dst, f.key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	if c.JWTSecretKey == "" {
		return errors.New("JWT_SECRET_KEY environment variable is not set")
	}
	if c.JWTTTLHours <= 0 {
		return fmt.Errorf("JWT_TTL_HOURS must be positive, got %d", c.JWTTTLHours)
	}
	if c.MetricsCap <= 0 {
		return fmt.Errorf("METRICS_CAPACITY must be positive, got %d", c.MetricsCap)
	}
	if strings.TrimSpace(c.SweepCron) == "" {
		return errors.New("SWEEP_CRON must not be empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL environment variable is not set")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI environment variable is not set")
		}
		if c.MongoDatabase == "" {
			return errors.New("MONGO_DATABASE must not be empty")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	return nil
}

// TokenTTL is the lifetime of issued access tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTTTLHours) * time.Hour
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	*dst = n
	return nil
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
