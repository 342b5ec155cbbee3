// Package config loads service configuration from a YAML file, a .env file
// and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Redis        RedisConfig        `mapstructure:"redis"`
	RabbitMQ     RabbitMQConfig     `mapstructure:"rabbitmq"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Transactions TransactionsConfig `mapstructure:"transactions"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings. URL wins over the
// discrete fields when set.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
}

// DSN builds a libpq-compatible connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// RedisConfig configures the checkout rate limiter. An empty Addr disables it.
type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	CheckoutLimit  int64         `mapstructure:"checkout_limit"`
	CheckoutWindow time.Duration `mapstructure:"checkout_window"`
}

// RabbitMQConfig configures notification fan-out. An empty URL disables it.
type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// TelegramConfig configures the ops chat sink. An empty Token disables it.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// TransactionsConfig controls the expiry sweeper. A zero ExpireAfter leaves
// EXPIRED without an automatic trigger.
type TransactionsConfig struct {
	ExpireAfter   time.Duration `mapstructure:"expire_after"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepBatch    int           `mapstructure:"sweep_batch"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "ticketing")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("database.connect_attempts", 5)

	v.SetDefault("auth.issuer", "")

	v.SetDefault("redis.checkout_limit", 10)
	v.SetDefault("redis.checkout_window", time.Minute)

	v.SetDefault("rabbitmq.exchange", "ticketing.notifications")

	v.SetDefault("transactions.expire_after", time.Duration(0))
	v.SetDefault("transactions.sweep_interval", time.Minute)
	v.SetDefault("transactions.sweep_batch", 100)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type", "X-Request-Id"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// legacyEnv maps the plain environment names used by earlier deployments
// onto config keys.
var legacyEnv = map[string]string{
	"server.port":        "PORT",
	"database.url":       "DATABASE_URL",
	"database.host":      "DB_HOST",
	"database.port":      "DB_PORT",
	"database.user":      "DB_USER",
	"database.password":  "DB_PASSWORD",
	"database.name":      "DB_NAME",
	"database.sslmode":   "DB_SSLMODE",
	"auth.jwt_secret":    "JWT_SECRET",
	"redis.addr":         "REDIS_URL",
	"rabbitmq.url":       "RABBITMQ_URL",
	"telegram.token":     "TELEGRAM_TOKEN",
	"telegram.chat_id":   "TELEGRAM_CHAT_ID",
	"logging.level":      "LOG_LEVEL",
	"server.environment": "ENVIRONMENT",
}

// Load reads configuration. path may name a YAML file explicitly; when empty
// the usual configs/ directories are searched and a missing file is not an
// error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment variables")
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("TICKETING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "TICKETING_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug("No config file found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (JWT_SECRET) is required")
	}
	if c.Transactions.ExpireAfter < 0 {
		return errors.New("transactions.expire_after must not be negative")
	}
	if c.Transactions.ExpireAfter > 0 && c.Transactions.SweepInterval <= 0 {
		return errors.New("transactions.sweep_interval must be positive when expiry is enabled")
	}
	if c.Transactions.ExpireAfter > 0 && c.Transactions.SweepBatch <= 0 {
		return errors.New("transactions.sweep_batch must be positive when expiry is enabled")
	}
	if c.Redis.Addr != "" && (c.Redis.CheckoutLimit <= 0 || c.Redis.CheckoutWindow <= 0) {
		return errors.New("redis.checkout_limit and redis.checkout_window must be positive")
	}
	return nil
}

// ConfigureLogging applies the logging section to the global logrus logger.
func (c *Config) ConfigureLogging() {
	if strings.EqualFold(c.Logging.Format, "text") {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	if level, err := log.ParseLevel(c.Logging.Level); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", c.Logging.Level).Warn("Unknown log level, keeping info")
	}
}
