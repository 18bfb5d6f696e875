package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerAddr string `yaml:"server_addr"`

	StoreDriver   string        `yaml:"store_driver"` // mysql, mongo, memory
	MysqlDSN      string        `yaml:"mysql_dsn"`
	MongoURI      string        `yaml:"mongo_uri"`
	MongoDatabase string        `yaml:"mongo_database"`
	StoreTimeout  time.Duration `yaml:"store_timeout"`
	StoreRetries  int           `yaml:"store_retries"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`

	JWTSecret   string   `yaml:"jwt_secret"`
	UploadDir   string   `yaml:"upload_dir"`
	CORSOrigins []string `yaml:"cors_allowed_origins"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // console, json
}

func Default() *Config {
	return &Config{
		ServerAddr:    ":8080",
		StoreDriver:   "mysql",
		MysqlDSN:      "root:root@tcp(localhost:3306)/vibeconnect?charset=utf8mb4&parseTime=True&loc=Local",
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "vibeconnect",
		StoreTimeout:  5 * time.Second,
		StoreRetries:  3,
		RedisChannel:  "vibeconnect:events",
		JWTSecret:     "vibeconnect-secret-key-change-in-production",
		UploadDir:     "./uploads",
		CORSOrigins:   []string{"http://localhost:5173", "http://localhost:5174"},
		LogLevel:      "info",
		LogFormat:     "console",
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and finally environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.ServerAddr = ":" + port
	}
	cfg.StoreDriver = getEnv("STORE_DRIVER", cfg.StoreDriver)
	cfg.MysqlDSN = getEnv("MYSQL_DSN", cfg.MysqlDSN)
	cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MONGO_DATABASE", cfg.MongoDatabase)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisChannel = getEnv("REDIS_CHANNEL", cfg.RedisChannel)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", cfg.RedisDB); err != nil {
		return nil, err
	}
	if cfg.StoreRetries, err = getEnvInt("STORE_RETRIES", cfg.StoreRetries); err != nil {
		return nil, err
	}
	if v := os.Getenv("STORE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("STORE_TIMEOUT: %w", err)
		}
		cfg.StoreTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "mysql", "mongo", "memory":
	default:
		return fmt.Errorf("unsupported store driver %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must not be empty")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}
	if c.StoreRetries < 0 {
		return fmt.Errorf("store retries must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
