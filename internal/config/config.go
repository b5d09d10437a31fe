package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageTypePostgres = "postgres"
	StorageTypeMemory   = "memory"

	EventsDriverNone  = "none"
	EventsDriverRedis = "redis"
	EventsDriverKafka = "kafka"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Storage  StorageConfig
	Logging  LoggingConfig
	Matching MatchingConfig
	Collab   CollabConfig
	Events   EventsConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	SSLMode        string
	AutoMigrate    bool
	MigrationsPath string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

type JWTConfig struct {
	AccessSecret string
}

type StorageConfig struct {
	Type string
}

type LoggingConfig struct {
	Level string
}

type MatchingConfig struct {
	DefaultTimeout          time.Duration
	StaleAfter              time.Duration
	RecoveryGrace           time.Duration
	DefaultExtend           time.Duration
	MaxExtend               time.Duration
	CandidateLimit          int
	MaxPairingAttempts      int
	CrossModeSameDifficulty bool
}

type CollabConfig struct {
	SessionTTL time.Duration
}

type EventsConfig struct {
	Driver       string
	KafkaBrokers []string
	KafkaTopic   string
	RedisChannel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("ENV", "production")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT_SEC", 10)

	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("DB_MIGRATIONS_PATH", "migrations")
	v.SetDefault("DB_MAX_OPEN_CONNS", 50)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_LIFETIME_MIN", 60)

	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)

	v.SetDefault("STORAGE_TYPE", StorageTypePostgres)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("MATCH_DEFAULT_TIMEOUT_SEC", 300)
	v.SetDefault("MATCH_STALE_AFTER_SEC", 30)
	v.SetDefault("MATCH_RECOVERY_GRACE_SEC", 60)
	v.SetDefault("MATCH_DEFAULT_EXTEND_SEC", 60)
	v.SetDefault("MATCH_MAX_EXTEND_SEC", 600)
	v.SetDefault("MATCH_CANDIDATE_LIMIT", 50)
	v.SetDefault("MATCH_MAX_PAIRING_ATTEMPTS", 3)
	v.SetDefault("MATCH_CROSS_MODE_SAME_DIFFICULTY", true)

	v.SetDefault("COLLAB_SESSION_TTL_MIN", 180)

	v.SetDefault("EVENTS_DRIVER", EventsDriverNone)
	v.SetDefault("KAFKA_TOPIC", "pairprep.match-events")
	v.SetDefault("REDIS_EVENTS_CHANNEL", "pairprep:match-events")
}

// Load loads configuration from environment variables or .env file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// Try to read from .env file, but don't fail if it doesn't exist
	_ = v.ReadInConfig()

	config := fromViper(v)

	// Validate critical configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Second
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			Env:             v.GetString("ENV"),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: seconds(v, "SERVER_SHUTDOWN_TIMEOUT_SEC"),
		},
		Database: DatabaseConfig{
			Host:           v.GetString("DB_HOST"),
			Port:           v.GetInt("DB_PORT"),
			User:           v.GetString("DB_USER"),
			Password:       v.GetString("DB_PASSWORD"),
			DBName:         v.GetString("DB_NAME"),
			SSLMode:        v.GetString("DB_SSL_MODE"),
			AutoMigrate:    v.GetBool("DB_AUTO_MIGRATE"),
			MigrationsPath: v.GetString("DB_MIGRATIONS_PATH"),

			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME_MIN")) * time.Minute,
		},
		Redis: RedisConfig{
			Host:         v.GetString("REDIS_HOST"),
			Port:         v.GetInt("REDIS_PORT"),
			Password:     v.GetString("REDIS_PASSWORD"),
			DB:           v.GetInt("REDIS_DB"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		JWT: JWTConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Storage: StorageConfig{
			Type: strings.ToLower(v.GetString("STORAGE_TYPE")),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Matching: MatchingConfig{
			DefaultTimeout:          seconds(v, "MATCH_DEFAULT_TIMEOUT_SEC"),
			StaleAfter:              seconds(v, "MATCH_STALE_AFTER_SEC"),
			RecoveryGrace:           seconds(v, "MATCH_RECOVERY_GRACE_SEC"),
			DefaultExtend:           seconds(v, "MATCH_DEFAULT_EXTEND_SEC"),
			MaxExtend:               seconds(v, "MATCH_MAX_EXTEND_SEC"),
			CandidateLimit:          v.GetInt("MATCH_CANDIDATE_LIMIT"),
			MaxPairingAttempts:      v.GetInt("MATCH_MAX_PAIRING_ATTEMPTS"),
			CrossModeSameDifficulty: v.GetBool("MATCH_CROSS_MODE_SAME_DIFFICULTY"),
		},
		Collab: CollabConfig{
			SessionTTL: time.Duration(v.GetInt("COLLAB_SESSION_TTL_MIN")) * time.Minute,
		},
		Events: EventsConfig{
			Driver:       strings.ToLower(v.GetString("EVENTS_DRIVER")),
			KafkaBrokers: splitList(v.GetString("KAFKA_BROKERS")),
			KafkaTopic:   v.GetString("KAFKA_TOPIC"),
			RedisChannel: v.GetString("REDIS_EVENTS_CHANNEL"),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate validates critical configuration values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", c.Server.Port)
	}
	if c.JWT.AccessSecret == "" {
		return fmt.Errorf("JWT access secret is required")
	}
	if len(c.JWT.AccessSecret) < 32 {
		return fmt.Errorf("JWT access secret must be at least 32 characters")
	}

	switch c.Storage.Type {
	case StorageTypePostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.MaxOpenConns <= 0 || c.Database.MaxIdleConns < 0 {
			return fmt.Errorf("database pool sizes are invalid")
		}
	case StorageTypeMemory:
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}

	m := c.Matching
	if m.DefaultTimeout < 0 || m.StaleAfter <= 0 || m.RecoveryGrace < 0 || m.DefaultExtend < 0 || m.MaxExtend < 0 {
		return fmt.Errorf("matching durations must not be negative and stale-after must be positive")
	}
	if m.MaxExtend > 0 && m.DefaultExtend > m.MaxExtend {
		return fmt.Errorf("default extension %s exceeds max extension %s", m.DefaultExtend, m.MaxExtend)
	}
	if m.CandidateLimit <= 0 {
		return fmt.Errorf("candidate limit must be positive")
	}
	if m.MaxPairingAttempts <= 0 {
		return fmt.Errorf("max pairing attempts must be positive")
	}
	if c.Collab.SessionTTL <= 0 {
		return fmt.Errorf("collab session TTL must be positive")
	}

	switch c.Events.Driver {
	case EventsDriverNone:
	case EventsDriverRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("redis host is required for the redis events driver")
		}
		if c.Events.RedisChannel == "" {
			return fmt.Errorf("redis events channel is required")
		}
	case EventsDriverKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka brokers are required for the kafka events driver")
		}
		if c.Events.KafkaTopic == "" {
			return fmt.Errorf("kafka topic is required")
		}
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}
	return nil
}

// RedisEnabled reports whether a Redis connection is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// GetURL returns the connection string in URL form, as golang-migrate expects it.
func (c *DatabaseConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// GetAddr returns Redis address
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
