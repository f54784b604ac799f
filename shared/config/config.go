// Package config loads service configuration from the environment.
// A .env file is read first when present, then typed settings are parsed
// from the process environment.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds everything a service may need. Each binary uses a subset.
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Upstreams UpstreamConfig
}

// ServiceConfig holds per-process settings
type ServiceConfig struct {
	Name           string   `env:"SERVICE_NAME"`
	Port           int      `env:"PORT"`
	Environment    string   `env:"APP_ENV" envDefault:"development"`
	ClientURI      string   `env:"CLIENT_URI" envDefault:"http://localhost:3000"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"text"`
	// TenantCacheTTL bounds how long a positive tenant lookup is trusted
	TenantCacheTTL  time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// RedisConfig holds Redis connection settings. Redis backs the cache and the RPC bus.
type RedisConfig struct {
	Host       string        `env:"REDIS_HOST" envDefault:"localhost"`
	Port       int           `env:"REDIS_PORT" envDefault:"6379"`
	Password   string        `env:"REDIS_PASSWORD"`
	DB         int           `env:"REDIS_DB" envDefault:"0"`
	RPCTimeout time.Duration `env:"RPC_TIMEOUT" envDefault:"5s"`
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// KafkaConfig holds the event producer settings
type KafkaConfig struct {
	Enabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"blog-events"`
	Workers int      `env:"KAFKA_WORKERS" envDefault:"4"`
}

// JWTConfig holds token settings. The private key is only needed by the auth service.
type JWTConfig struct {
	Issuer        string        `env:"JWT_ISSUER" envDefault:"AUTH"`
	AccessTime    time.Duration `env:"JWT_ACCESS_TIME" envDefault:"10m"`
	RefreshTime   time.Duration `env:"JWT_REFRESH_TIME" envDefault:"168h"`
	RefreshSecret string        `env:"JWT_REFRESH_SECRET"`
	PrivateKey    string        `env:"JWT_PRIVATE_KEY"`
	PublicKey     string        `env:"JWT_PUBLIC_KEY"`
	KeyID         string        `env:"JWT_KEY_ID" envDefault:"auth-1"`
	// JWKSURL lets resource services fetch the verification key from the auth service
	JWKSURL       string `env:"AUTH_JWKS_URL"`
	RefreshCookie string `env:"REFRESH_COOKIE" envDefault:"rf"`
}

// StorageConfig selects where uploaded images are written
type StorageConfig struct {
	Driver        string `env:"STORAGE_DRIVER" envDefault:"local"`
	LocalDir      string `env:"STORAGE_LOCAL_DIR" envDefault:"./uploads"`
	PublicBaseURL string `env:"STORAGE_PUBLIC_URL" envDefault:"/api/files/images"`
	MaxUploadSize int64  `env:"MAX_UPLOAD_SIZE" envDefault:"5242880"`
	S3            S3Config
}

// S3Config holds the S3 bucket settings
type S3Config struct {
	Region   string `env:"AWS_REGION" envDefault:"us-east-1"`
	Bucket   string `env:"S3_BUCKET"`
	Endpoint string `env:"S3_ENDPOINT"`
}

// UpstreamConfig holds the HTTP services the gateway proxies to
type UpstreamConfig struct {
	AuthURL  string `env:"AUTH_SERVICE_URL" envDefault:"http://localhost:8001"`
	BlogURL  string `env:"BLOG_SERVICE_URL" envDefault:"http://localhost:8003"`
	FilesURL string `env:"FILE_MANAGER_SERVICE_URL" envDefault:"http://localhost:8004"`
}

var defaultPorts = map[string]int{
	"gateway":      8080,
	"auth":         8001,
	"tenant":       8002,
	"blog":         8003,
	"file-manager": 8004,
	"users":        8005,
}

// Load reads .env (if any) and parses the environment for the named service
func Load(service string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}
	return Parse(service)
}

// Parse parses the process environment without touching .env files
func Parse(service string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = service
	}
	if cfg.Service.Port == 0 {
		cfg.Service.Port = defaultPorts[service]
	}
	return cfg, nil
}

// IsProduction returns true if running in production mode
func (c ServiceConfig) IsProduction() bool {
	return c.Environment == "production"
}

// ListenAddr returns the address handed to the HTTP server
func (c ServiceConfig) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

// ConfigureLogger applies level and format to the standard logrus logger
func (c ServiceConfig) ConfigureLogger() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if c.LogFormat == "json" || c.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
