// README: Config loader; environment variables with defaults via viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Firebase FirebaseConfig
	Gateway  GatewayConfig
	Matching MatchingConfig
	Places   PlacesConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// FirebaseConfig holds token-verification settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// GatewayConfig holds payment-processor settings.
type GatewayConfig struct {
	BaseURL     string
	MerchantKey string
	CallbackURL string
	Timeout     time.Duration
}

// MatchingConfig holds matching and lifecycle policy values.
type MatchingConfig struct {
	// ProposalTTL is how long a proposed match may wait for payment
	// confirmation before the sweep cancels it.
	ProposalTTL time.Duration
	// SweepTick is the interval of the expiry sweep.
	SweepTick time.Duration
	// DashboardCacheTTL bounds staleness of cached dashboard match results.
	DashboardCacheTTL time.Duration
}

// PlacesConfig holds the optional Google Places city canonicalizer settings.
type PlacesConfig struct {
	APIKey string
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

// Addr returns the HTTP listen address in host:port format.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "bookferry")
	viper.SetDefault("POSTGRES_PASSWORD", "bookferry")
	viper.SetDefault("POSTGRES_DB", "bookferry")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 50)
	viper.SetDefault("POSTGRES_MIN_CONNS", 5)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)

	viper.SetDefault("GATEWAY_TIMEOUT", "15s")

	viper.SetDefault("MATCH_PROPOSAL_TTL", "48h")
	viper.SetDefault("MATCH_SWEEP_TICK", "5m")
	viper.SetDefault("MATCH_DASHBOARD_CACHE_TTL", "30s")

	// Missing .env is fine; plain env vars are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Host:         viper.GetString("SERVER_HOST"),
			Port:         viper.GetInt("SERVER_PORT"),
			ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("POSTGRES_HOST"),
			Port:     viper.GetInt("POSTGRES_PORT"),
			User:     viper.GetString("POSTGRES_USER"),
			Password: viper.GetString("POSTGRES_PASSWORD"),
			DBName:   viper.GetString("POSTGRES_DB"),
			SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
			MaxConns: viper.GetInt32("POSTGRES_MAX_CONNS"),
			MinConns: viper.GetInt32("POSTGRES_MIN_CONNS"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetInt("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       viper.GetString("FIREBASE_PROJECT_ID"),
			CredentialsFile: viper.GetString("FIREBASE_CREDENTIALS_FILE"),
		},
		Gateway: GatewayConfig{
			BaseURL:     viper.GetString("GATEWAY_BASE_URL"),
			MerchantKey: viper.GetString("GATEWAY_MERCHANT_KEY"),
			CallbackURL: viper.GetString("GATEWAY_CALLBACK_URL"),
			Timeout:     viper.GetDuration("GATEWAY_TIMEOUT"),
		},
		Matching: MatchingConfig{
			ProposalTTL:       viper.GetDuration("MATCH_PROPOSAL_TTL"),
			SweepTick:         viper.GetDuration("MATCH_SWEEP_TICK"),
			DashboardCacheTTL: viper.GetDuration("MATCH_DASHBOARD_CACHE_TTL"),
		},
		Places: PlacesConfig{
			APIKey: viper.GetString("PLACES_API_KEY"),
		},
	}

	if cfg.Firebase.ProjectID == "" {
		return nil, fmt.Errorf("config: FIREBASE_PROJECT_ID is required")
	}
	return cfg, nil
}
