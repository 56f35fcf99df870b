package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Restaurant  RestaurantServiceConfig
	Reservation ReservationConfig
	Scheduling  SchedulingConfig
}

// ServerConfig holds settings for the operational HTTP endpoint.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// KafkaConfig holds message-bus settings. GroupBase is the prefix for the
// per-kind consumer group ids ("<base>-table-availability", ...).
type KafkaConfig struct {
	Brokers   []string `mapstructure:"KAFKA_BROKERS"`
	GroupBase string   `mapstructure:"KAFKA_GROUP_BASE"`
}

// RestaurantServiceConfig holds settings for the remote restaurant service:
// the REST fallback base URL and the per-oracle request timeouts.
type RestaurantServiceConfig struct {
	URL               string        `mapstructure:"RESTAURANT_SERVICE_URL"`
	ValidationTimeout time.Duration `mapstructure:"RESTAURANT_VALIDATION_REQUEST_TIMEOUT"`
	TableFindTimeout  time.Duration `mapstructure:"TABLE_AVAILABILITY_REQUEST_TIMEOUT"`
}

// ReservationConfig holds the business rules for reservation creation.
type ReservationConfig struct {
	ConfirmationExpirationMinutes int `mapstructure:"RESERVATION_CONFIRMATION_EXPIRATION_MINUTES"`
	DefaultSessionLengthMinutes   int `mapstructure:"RESERVATION_DEFAULT_SESSION_LENGTH_MINUTES"`
	MinAdvanceBookingMinutes      int `mapstructure:"RESERVATION_MIN_ADVANCE_BOOKING_MINUTES"`
	MaxPartySize                  int `mapstructure:"RESERVATION_MAX_PARTY_SIZE"`
	MaxFutureDays                 int `mapstructure:"RESERVATION_MAX_FUTURE_DAYS"`
}

// SchedulingConfig holds the background reconciler intervals.
type SchedulingConfig struct {
	ExpiredReservationsInterval time.Duration `mapstructure:"SCHEDULING_EXPIRED_RESERVATIONS_INTERVAL"`
	DataCleanupInterval         time.Duration `mapstructure:"SCHEDULING_DATA_CLEANUP_INTERVAL"`
	DataCleanupInitialDelay     time.Duration `mapstructure:"SCHEDULING_DATA_CLEANUP_INITIAL_DELAY"`
	DataCleanupAgeDays          int           `mapstructure:"SCHEDULING_DATA_CLEANUP_AGE_DAYS"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "tablebook")
	viper.SetDefault("POSTGRES_PASSWORD", "tablebook_secret")
	viper.SetDefault("POSTGRES_DB", "tablebook_db")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 50)
	viper.SetDefault("POSTGRES_MIN_CONNS", 10)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 100)

	viper.SetDefault("KAFKA_BROKERS", []string{"localhost:9092"})
	viper.SetDefault("KAFKA_GROUP_BASE", "reservation-core")

	viper.SetDefault("RESTAURANT_SERVICE_URL", "http://localhost:8081")
	viper.SetDefault("RESTAURANT_VALIDATION_REQUEST_TIMEOUT", "5s")
	viper.SetDefault("TABLE_AVAILABILITY_REQUEST_TIMEOUT", "10s")

	viper.SetDefault("RESERVATION_CONFIRMATION_EXPIRATION_MINUTES", 15)
	viper.SetDefault("RESERVATION_DEFAULT_SESSION_LENGTH_MINUTES", 120)
	viper.SetDefault("RESERVATION_MIN_ADVANCE_BOOKING_MINUTES", 60)
	viper.SetDefault("RESERVATION_MAX_PARTY_SIZE", 20)
	viper.SetDefault("RESERVATION_MAX_FUTURE_DAYS", 90)

	viper.SetDefault("SCHEDULING_EXPIRED_RESERVATIONS_INTERVAL", "60s")
	viper.SetDefault("SCHEDULING_DATA_CLEANUP_INTERVAL", "24h")
	viper.SetDefault("SCHEDULING_DATA_CLEANUP_INITIAL_DELAY", "1h")
	viper.SetDefault("SCHEDULING_DATA_CLEANUP_AGE_DAYS", 90)

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by docker-compose env_file are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	cfg.Postgres = PostgresConfig{
		Host:     viper.GetString("POSTGRES_HOST"),
		Port:     viper.GetInt("POSTGRES_PORT"),
		User:     viper.GetString("POSTGRES_USER"),
		Password: viper.GetString("POSTGRES_PASSWORD"),
		DBName:   viper.GetString("POSTGRES_DB"),
		SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		MaxConns: viper.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: viper.GetInt32("POSTGRES_MIN_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetInt("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
	}

	cfg.Kafka = KafkaConfig{
		Brokers:   viper.GetStringSlice("KAFKA_BROKERS"),
		GroupBase: viper.GetString("KAFKA_GROUP_BASE"),
	}

	cfg.Restaurant = RestaurantServiceConfig{
		URL:               viper.GetString("RESTAURANT_SERVICE_URL"),
		ValidationTimeout: viper.GetDuration("RESTAURANT_VALIDATION_REQUEST_TIMEOUT"),
		TableFindTimeout:  viper.GetDuration("TABLE_AVAILABILITY_REQUEST_TIMEOUT"),
	}

	cfg.Reservation = ReservationConfig{
		ConfirmationExpirationMinutes: viper.GetInt("RESERVATION_CONFIRMATION_EXPIRATION_MINUTES"),
		DefaultSessionLengthMinutes:   viper.GetInt("RESERVATION_DEFAULT_SESSION_LENGTH_MINUTES"),
		MinAdvanceBookingMinutes:      viper.GetInt("RESERVATION_MIN_ADVANCE_BOOKING_MINUTES"),
		MaxPartySize:                  viper.GetInt("RESERVATION_MAX_PARTY_SIZE"),
		MaxFutureDays:                 viper.GetInt("RESERVATION_MAX_FUTURE_DAYS"),
	}

	cfg.Scheduling = SchedulingConfig{
		ExpiredReservationsInterval: viper.GetDuration("SCHEDULING_EXPIRED_RESERVATIONS_INTERVAL"),
		DataCleanupInterval:         viper.GetDuration("SCHEDULING_DATA_CLEANUP_INTERVAL"),
		DataCleanupInitialDelay:     viper.GetDuration("SCHEDULING_DATA_CLEANUP_INITIAL_DELAY"),
		DataCleanupAgeDays:          viper.GetInt("SCHEDULING_DATA_CLEANUP_AGE_DAYS"),
	}

	return cfg, nil
}
