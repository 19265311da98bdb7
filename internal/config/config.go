package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig `json:"server"`

	// Database Configuration
	Database DatabaseConfig `json:"database"`

	// MongoDB keeps presence last-seen records
	MongoDB MongoDBConfig `json:"mongodb"`

	// Kafka carries offline message notifications
	Kafka KafkaConfig `json:"kafka"`

	Gateway GatewayConfig `json:"gateway"`

	Chat ChatConfig `json:"chat"`

	Auth AuthConfig `json:"auth"`

	// Notification Configuration
	Notification NotificationConfig `json:"notification"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host            string        `json:"host"`
	HTTPPort        string        `json:"http_port"`
	GRPCPort        string        `json:"grpc_port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	Environment     string        `json:"environment"` // development, staging, production
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	DatabaseName    string        `json:"database_name"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

type MongoDBConfig struct {
	Host               string `json:"host"`
	Port               string `json:"port"`
	Username           string `json:"username"`
	Password           string `json:"password"`
	Database           string `json:"database"`
	PresenceCollection string `json:"presence_collection"`
	Enabled            bool   `json:"enabled"`
}

// KafkaConfig is disabled when no brokers are set
type KafkaConfig struct {
	Brokers  []string `json:"brokers"`
	Topic    string   `json:"topic"`
	ClientID string   `json:"client_id"`
}

// GatewayConfig tunes the realtime connection gateway
type GatewayConfig struct {
	SendBuffer     int           `json:"send_buffer"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	PingInterval   time.Duration `json:"ping_interval"`
	PongWait       time.Duration `json:"pong_wait"`
	MaxFrameBytes  int64         `json:"max_frame_bytes"`
	RoomShards     int           `json:"room_shards"`
	AllowedOrigins []string      `json:"allowed_origins"`
}

type ChatConfig struct {
	MaxContentLength int           `json:"max_content_length"`
	DefaultPageSize  int           `json:"default_page_size"`
	MaxPageSize      int           `json:"max_page_size"`
	TypingTimeout    time.Duration `json:"typing_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `json:"-"`
	Issuer    string        `json:"issuer"`
	TokenTTL  time.Duration `json:"token_ttl"`
}

// NotificationConfig contains notification system configuration
type NotificationConfig struct {
	Workers           int  `json:"workers"`             // Number of worker goroutines
	ChannelBufferSize int  `json:"channel_buffer_size"` // Channel buffer size
	Enabled           bool `json:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // json, text
	OutputPath string `json:"output_path"` // stdout, stderr, or file path
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	return &Config{
		Server: ServerConfig{
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			HTTPPort:        getEnvOrDefault("HTTP_PORT", "8080"),
			GRPCPort:        getEnvOrDefault("GRPC_PORT", "7003"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			Environment:     getEnvOrDefault("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnvOrDefault("MYSQL_HOST", "localhost"),
			Port:            getEnvOrDefault("MYSQL_PORT", "3306"),
			Username:        getEnvOrDefault("MYSQL_USERNAME", "gocampus"),
			Password:        getEnvOrDefault("MYSQL_PASSWORD", "gocampus123"),
			DatabaseName:    getEnvOrDefault("MYSQL_DATABASE", "gocampus"),
			MaxOpenConns:    getEnvAsInt("MYSQL_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("MYSQL_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     getEnvAsBool("MYSQL_AUTO_MIGRATE", true),
		},
		MongoDB: MongoDBConfig{
			Host:               getEnvOrDefault("MONGO_HOST", "localhost"),
			Port:               getEnvOrDefault("MONGO_PORT", "27017"),
			Username:           getEnvOrDefault("MONGO_USERNAME", ""),
			Password:           getEnvOrDefault("MONGO_PASSWORD", ""),
			Database:           getEnvOrDefault("MONGO_DATABASE", "gocampus"),
			PresenceCollection: getEnvOrDefault("MONGO_PRESENCE_COLLECTION", "presence"),
			Enabled:            getEnvAsBool("MONGO_ENABLED", false),
		},
		Kafka: KafkaConfig{
			Brokers:  getEnvAsList("KAFKA_BROKERS"),
			Topic:    getEnvOrDefault("KAFKA_NOTIFICATION_TOPIC", "gocampus.notifications"),
			ClientID: getEnvOrDefault("KAFKA_CLIENT_ID", "gocampus-chat"),
		},
		Gateway: GatewayConfig{
			SendBuffer:     getEnvAsInt("GATEWAY_SEND_BUFFER", 64),
			WriteTimeout:   getEnvAsDuration("GATEWAY_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:   getEnvAsDuration("GATEWAY_PING_INTERVAL", 25*time.Second),
			PongWait:       getEnvAsDuration("GATEWAY_PONG_WAIT", 60*time.Second),
			MaxFrameBytes:  int64(getEnvAsInt("GATEWAY_MAX_FRAME_BYTES", 64*1024)),
			RoomShards:     getEnvAsInt("GATEWAY_ROOM_SHARDS", 32),
			AllowedOrigins: getEnvAsList("GATEWAY_ALLOWED_ORIGINS"),
		},
		Chat: ChatConfig{
			MaxContentLength: getEnvAsInt("CHAT_MAX_CONTENT_LENGTH", 5000),
			DefaultPageSize:  getEnvAsInt("CHAT_DEFAULT_PAGE_SIZE", 50),
			MaxPageSize:      getEnvAsInt("CHAT_MAX_PAGE_SIZE", 100),
			TypingTimeout:    getEnvAsDuration("TYPING_TIMEOUT", time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnvOrDefault("JWT_SECRET", ""),
			Issuer:    getEnvOrDefault("JWT_ISSUER", "gocampus"),
			TokenTTL:  getEnvAsDuration("JWT_TTL", 24*time.Hour),
		},
		Notification: NotificationConfig{
			Workers:           getEnvAsInt("NOTIFICATION_WORKERS", 5),
			ChannelBufferSize: getEnvAsInt("NOTIFICATION_BUFFER", 1000),
			Enabled:           getEnvAsBool("NOTIFICATION_ENABLED", true),
		},
		Logging: LoggingConfig{
			Level:      getEnvOrDefault("LOG_LEVEL", "info"),
			Format:     getEnvOrDefault("LOG_FORMAT", "text"),
			OutputPath: getEnvOrDefault("LOG_OUTPUT", "stdout"),
		},
	}
}

// Validate catches settings that would make the service unusable.
func (cfg *Config) Validate() error {
	if cfg.Auth.JWTSecret == "" && !cfg.IsDevelopment() {
		return errors.New("JWT_SECRET is required outside development")
	}
	if cfg.Gateway.SendBuffer <= 0 {
		return errors.New("GATEWAY_SEND_BUFFER must be positive")
	}
	if cfg.Chat.MaxPageSize < cfg.Chat.DefaultPageSize {
		return fmt.Errorf("CHAT_MAX_PAGE_SIZE (%d) is below CHAT_DEFAULT_PAGE_SIZE (%d)",
			cfg.Chat.MaxPageSize, cfg.Chat.DefaultPageSize)
	}
	if cfg.Chat.TypingTimeout <= 0 {
		return errors.New("TYPING_TIMEOUT must be positive")
	}
	return nil
}

func (cfg *Config) IsDevelopment() bool {
	env := strings.ToLower(cfg.Server.Environment)
	return env == "" || env == "development" || env == "dev" || env == "local"
}

func (cfg *Config) DSN() string {
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "3306"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

func (cfg *Config) GetMongoURI() string {
	if cfg.MongoDB.Username != "" && cfg.MongoDB.Password != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%s/%s?authSource=admin",
			cfg.MongoDB.Username,
			cfg.MongoDB.Password,
			cfg.MongoDB.Host,
			cfg.MongoDB.Port,
			cfg.MongoDB.Database,
		)
	}
	return fmt.Sprintf("mongodb://%s:%s/%s", cfg.MongoDB.Host, cfg.MongoDB.Port, cfg.MongoDB.Database)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getEnvAsBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using %t", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
