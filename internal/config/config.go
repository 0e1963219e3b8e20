package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DB struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

type Kafka struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Outbox struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

const (
	TransitionsStrict     = "strict"
	TransitionsPermissive = "permissive"
)

type Policy struct {
	// RequireVersion rejects product updates that carry no expected version.
	RequireVersion bool
	// Transitions selects the order transition table: "strict" or "permissive".
	Transitions string
}

type Cache struct {
	// Capacity bounds the product cache; 0 means unbounded.
	Capacity int
}

type Auth struct {
	Enabled       bool
	AdminUsername string
	AdminPassword string
}

type Config struct {
	HTTPPort    string
	GRPCPort    string
	CORSOrigins []string
	LogLevel    string
	DB          DB
	Kafka       Kafka
	Outbox      Outbox
	Policy      Policy
	Cache       Cache
	Auth        Auth
}

// ExportEnabled reports whether audit entries are relayed to Kafka.
func (c Config) ExportEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// AuditExportTopic is the topic audit entries are queued for, or "" when
// export is disabled and no outbox rows should be written.
func (c Config) AuditExportTopic() string {
	if !c.ExportEnabled() {
		return ""
	}
	return c.Kafka.Topic
}

func loadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}

	possiblePaths := []string{
		filepath.Join(wd, ".env"),
		filepath.Join(wd, "..", ".env"),
		filepath.Join(wd, "..", "..", ".env"),
	}
	for _, envPath := range possiblePaths {
		if err := godotenv.Load(envPath); err == nil {
			return
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "9000")
	v.SetDefault("grpc.port", "9001")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "catalog")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 10)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "audit_logs")
	v.SetDefault("kafka.group_id", "audit-log-consumer-group")

	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.batch_size", 20)
	v.SetDefault("outbox.max_attempts", 5)

	v.SetDefault("policy.require_version", false)
	v.SetDefault("policy.transitions", TransitionsPermissive)

	v.SetDefault("cache.capacity", 1000)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.admin_username", "")
	v.SetDefault("auth.admin_password", "")
}

// Load reads .env (if any), then config.yaml from configPath (if any), then
// CATALOG_* environment variables, in increasing priority.
func Load(configPath string) (Config, error) {
	loadEnv()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := Config{
		HTTPPort:    v.GetString("http.port"),
		GRPCPort:    v.GetString("grpc.port"),
		CORSOrigins: splitList(v.GetStringSlice("cors.allowed_origins")),
		LogLevel:    v.GetString("log.level"),
		DB: DB{
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Name:     v.GetString("db.name"),
			SSLMode:  v.GetString("db.sslmode"),
			MaxConns: v.GetInt32("db.max_conns"),
		},
		Kafka: Kafka{
			Brokers: splitList(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
			GroupID: v.GetString("kafka.group_id"),
		},
		Outbox: Outbox{
			PollInterval: v.GetDuration("outbox.poll_interval"),
			BatchSize:    v.GetInt("outbox.batch_size"),
			MaxAttempts:  v.GetInt("outbox.max_attempts"),
		},
		Policy: Policy{
			RequireVersion: v.GetBool("policy.require_version"),
			Transitions:    strings.ToLower(v.GetString("policy.transitions")),
		},
		Cache: Cache{
			Capacity: v.GetInt("cache.capacity"),
		},
		Auth: Auth{
			Enabled:       v.GetBool("auth.enabled"),
			AdminUsername: v.GetString("auth.admin_username"),
			AdminPassword: v.GetString("auth.admin_password"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Policy.Transitions {
	case TransitionsStrict, TransitionsPermissive:
	default:
		return fmt.Errorf("invalid policy.transitions %q: want strict or permissive", c.Policy.Transitions)
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.batch_size must be positive, got %d", c.Outbox.BatchSize)
	}
	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache.capacity must not be negative, got %d", c.Cache.Capacity)
	}
	if c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("outbox.poll_interval must be positive, got %s", c.Outbox.PollInterval)
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
