package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	OIDC      OIDCConfig
	JWT       JWTConfig
	DocServer DocServerConfig
	Sessions  SessionsConfig
	Callback  CallbackConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PublicBaseURL is the address under which the external Document Server
	// can reach this gateway (used to build document and callback URLs).
	PublicBaseURL string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type OIDCConfig struct {
	URL      string
	Realm    string
	ClientID string
}

type JWTConfig struct {
	Secret         string
	EditorTokenTTL time.Duration
}

// DocServerConfig describes the external Document Server integration.
type DocServerConfig struct {
	BaseURL string
}

type SessionsConfig struct {
	InactivityTimeout time.Duration
}

// CallbackConfig bounds the changed-bytes fetch performed on commit callbacks.
type CallbackConfig struct {
	FetchTimeout time.Duration
	MaxBytes     int64
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5020")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("GATEWAY_PUBLIC_URL", "http://localhost:5020")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("EDITOR_TOKEN_TTL", 60)
	viper.SetDefault("SESSION_INACTIVITY_TIMEOUT", 30)
	viper.SetDefault("CALLBACK_FETCH_TIMEOUT", 30)
	viper.SetDefault("CALLBACK_MAX_BYTES", 104857600)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:          viper.GetString("SERVER_PORT"),
			Host:          viper.GetString("SERVER_HOST"),
			Environment:   viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			PublicBaseURL: viper.GetString("GATEWAY_PUBLIC_URL"),
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		OIDC: OIDCConfig{
			URL:      viper.GetString("OIDC_URL"),
			Realm:    viper.GetString("OIDC_REALM"),
			ClientID: viper.GetString("OIDC_CLIENT_ID"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			EditorTokenTTL: time.Duration(viper.GetInt("EDITOR_TOKEN_TTL")) * time.Minute,
		},
		DocServer: DocServerConfig{
			BaseURL: viper.GetString("DOCSERVER_URL"),
		},
		Sessions: SessionsConfig{
			InactivityTimeout: time.Duration(viper.GetInt("SESSION_INACTIVITY_TIMEOUT")) * time.Minute,
		},
		Callback: CallbackConfig{
			FetchTimeout: time.Duration(viper.GetInt("CALLBACK_FETCH_TIMEOUT")) * time.Second,
			MaxBytes:     viper.GetInt64("CALLBACK_MAX_BYTES"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// Basic validation
	if cfg.JWT.Secret == "" {
		log.Println("WARNING: JWT_SECRET is not set; set a secure value in production")
	}

	return cfg, nil
}
