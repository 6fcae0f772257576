package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		Mode            string        `yaml:"mode"` // debug, release, test
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // sqlite or postgres
		DSN      string `yaml:"dsn"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"database"`

	Auth struct {
		JWTSecret     string        `yaml:"jwt_secret"`
		TokenTTL      time.Duration `yaml:"token_ttl"`
		CookieName    string        `yaml:"cookie_name"`
		SecureCookie  bool          `yaml:"secure_cookie"`
		AdminUsername string        `yaml:"admin_username"`
		AdminPassword string        `yaml:"admin_password"`
	} `yaml:"auth"`

	Storage struct {
		Dir            string `yaml:"dir"`
		MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	} `yaml:"storage"`

	Redis struct {
		Addr           string        `yaml:"addr"` // empty disables caching
		Password       string        `yaml:"password"`
		DB             int           `yaml:"db"`
		LeaderboardTTL time.Duration `yaml:"leaderboard_ttl"`
	} `yaml:"redis"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
	} `yaml:"logging"`
}

// Default returns a configuration suitable for local development
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.Mode = "release"
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "studyhub.db"
	cfg.Database.LogLevel = "warn"

	cfg.Auth.JWTSecret = "studyhub-dev-secret-change-in-production"
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Auth.CookieName = "studyhub_session"

	cfg.Storage.Dir = "media"
	cfg.Storage.MaxUploadBytes = 32 << 20

	cfg.Redis.LeaderboardTTL = time.Minute

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}

// Load reads the YAML file at path (if it exists), then applies STUDYHUB_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Server.Port = GetEnv("PORT", cfg.Server.Port)
	cfg.Server.Port = GetEnv("STUDYHUB_PORT", cfg.Server.Port)
	cfg.Server.Mode = GetEnv("STUDYHUB_MODE", cfg.Server.Mode)
	if origins := GetEnv("STUDYHUB_CORS_ORIGINS", ""); origins != "" {
		cfg.Server.CORSOrigins = splitList(origins)
	}

	cfg.Database.Driver = GetEnv("STUDYHUB_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = GetEnv("STUDYHUB_DB_DSN", cfg.Database.DSN)
	cfg.Database.LogLevel = GetEnv("STUDYHUB_DB_LOG_LEVEL", cfg.Database.LogLevel)

	cfg.Auth.JWTSecret = GetEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.CookieName = GetEnv("STUDYHUB_COOKIE_NAME", cfg.Auth.CookieName)
	cfg.Auth.SecureCookie = GetEnvAsBool("STUDYHUB_SECURE_COOKIE", cfg.Auth.SecureCookie)
	cfg.Auth.AdminUsername = GetEnv("STUDYHUB_ADMIN_USERNAME", cfg.Auth.AdminUsername)
	cfg.Auth.AdminPassword = GetEnv("STUDYHUB_ADMIN_PASSWORD", cfg.Auth.AdminPassword)

	cfg.Storage.Dir = GetEnv("STUDYHUB_MEDIA_DIR", cfg.Storage.Dir)

	cfg.Redis.Addr = GetEnv("STUDYHUB_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = GetEnv("STUDYHUB_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = GetEnvAsInt("STUDYHUB_REDIS_DB", cfg.Redis.DB)

	cfg.Logging.Level = GetEnv("STUDYHUB_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = GetEnv("STUDYHUB_LOG_FORMAT", cfg.Logging.Format)

	var err error
	if cfg.Auth.TokenTTL, err = getEnvAsDuration("STUDYHUB_TOKEN_TTL", cfg.Auth.TokenTTL); err != nil {
		return err
	}
	if cfg.Redis.LeaderboardTTL, err = getEnvAsDuration("STUDYHUB_LEADERBOARD_TTL", cfg.Redis.LeaderboardTTL); err != nil {
		return err
	}
	if v := GetEnv("STUDYHUB_MAX_UPLOAD_BYTES", ""); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("STUDYHUB_MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.Storage.MaxUploadBytes = n
	}
	return nil
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	switch c.Server.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return fmt.Errorf("unsupported server mode %q (want debug, release or test)", c.Server.Mode)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.Auth.CookieName == "" {
		return errors.New("cookie name is required")
	}
	if c.Storage.Dir == "" {
		return errors.New("storage dir is required")
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}
	if (c.Auth.AdminUsername == "") != (c.Auth.AdminPassword == "") {
		return errors.New("admin username and password must be set together")
	}
	return nil
}

// GetEnv gets an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt gets an environment variable as an integer or returns a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(GetEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvAsBool gets an environment variable as a boolean or returns a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	switch strings.ToLower(GetEnv(key, "")) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := GetEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
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
