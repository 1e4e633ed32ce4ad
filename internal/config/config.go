package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	RepositoryPostgREST = "postgrest"
	RepositoryPostgres  = "postgres"
	RepositoryInMemory  = "inmemory"

	StorageS3       = "s3"
	StorageInMemory = "inmemory"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Backend    BackendConfig    `yaml:"backend"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Logging    LoggingConfig    `yaml:"logging"`
	Repository RepositoryConfig `yaml:"repository"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	Host            string        `yaml:"host"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RateLimit       int           `yaml:"rate_limit"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int32         `yaml:"max_connections"`
	MinConnections int32         `yaml:"min_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AutoMigrate    bool          `yaml:"auto_migrate"`
}

// BackendConfig - адрес и ключи облачного бэкенда.
type BackendConfig struct {
	URL        string        `yaml:"url"`
	AnonKey    string        `yaml:"anon_key"`
	ServiceKey string        `yaml:"service_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	// JWTSecret проверяет токены бэкенда локально. Пустое значение -
	// каждый запрос сверяется с /auth/v1/user.
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type StorageConfig struct {
	Type        string        `yaml:"type"`
	Bucket      string        `yaml:"bucket"`
	Region      string        `yaml:"region"`
	EndpointURL string        `yaml:"endpoint_url"`
	PresignTTL  time.Duration `yaml:"presign_ttl"`
	MaxUpload   int64         `yaml:"max_upload"`
}

type CacheConfig struct {
	StaleTime     time.Duration `yaml:"stale_time"`
	GCTime        time.Duration `yaml:"gc_time"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type CalendarConfig struct {
	Timezone string        `yaml:"timezone"`
	DragTTL  time.Duration `yaml:"drag_ttl"`
	location *time.Location
}

type LoggingConfig struct {
	Development bool `yaml:"development"`
}

type RepositoryConfig struct {
	Type string `yaml:"type"` // "postgrest", "postgres" или "inmemory"
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			RequestTimeout:  30 * time.Second,
			RateLimit:       100,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConnections: 10,
			MinConnections: 2,
			IdleTimeout:    5 * time.Minute,
		},
		Backend: BackendConfig{
			Timeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: time.Hour,
		},
		Storage: StorageConfig{
			Type:       StorageInMemory,
			Region:     "us-east-1",
			PresignTTL: 15 * time.Minute,
			MaxUpload:  50 << 20,
		},
		Cache: CacheConfig{
			StaleTime:     30 * time.Second,
			GCTime:        5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Calendar: CalendarConfig{
			Timezone: "UTC",
			DragTTL:  10 * time.Minute,
		},
		Logging: LoggingConfig{
			Development: true,
		},
		Repository: RepositoryConfig{
			Type: RepositoryInMemory,
		},
	}
}

// Load читает .env, затем config.yml (если есть), затем переменные окружения.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("чтение .env: %w", err)
	}

	cfg := Default()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("ошибка парсинга %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("не могу открыть %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.Host, "HOST")
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	setString(&c.Database.URL, "DATABASE_URL")
	setBool(&c.Database.AutoMigrate, "DATABASE_AUTO_MIGRATE")
	setString(&c.Backend.URL, "BACKEND_URL")
	setString(&c.Backend.AnonKey, "BACKEND_ANON_KEY")
	setString(&c.Backend.ServiceKey, "BACKEND_SERVICE_KEY")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Storage.Type, "STORAGE_TYPE")
	setString(&c.Storage.Bucket, "AWS_S3_BUCKET")
	setString(&c.Storage.Region, "AWS_REGION")
	setString(&c.Storage.EndpointURL, "AWS_ENDPOINT_URL")
	setString(&c.Calendar.Timezone, "CALENDAR_TIMEZONE")
	setBool(&c.Logging.Development, "LOG_DEVELOPMENT")
	setString(&c.Repository.Type, "REPOSITORY_TYPE")
}

func (c *Config) Validate() error {
	switch c.Repository.Type {
	case RepositoryPostgREST:
		if c.Backend.URL == "" {
			return errors.New("config: backend.url обязателен для repository.type=postgrest")
		}
		if c.Backend.AnonKey == "" && c.Backend.ServiceKey == "" {
			return errors.New("config: нужен backend.anon_key или backend.service_key")
		}
	case RepositoryPostgres:
		if c.Database.URL == "" {
			return errors.New("config: database.url обязателен для repository.type=postgres")
		}
	case RepositoryInMemory:
	default:
		return fmt.Errorf("config: неизвестный repository.type %q", c.Repository.Type)
	}

	switch c.Storage.Type {
	case StorageS3:
		if c.Storage.Bucket == "" {
			return errors.New("config: storage.bucket обязателен для storage.type=s3")
		}
	case StorageInMemory:
	default:
		return fmt.Errorf("config: неизвестный storage.type %q", c.Storage.Type)
	}

	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return fmt.Errorf("config: calendar.timezone: %w", err)
	}
	c.Calendar.location = loc
	return nil
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// Location - зона, в которой считаются календарные дни.
func (c CalendarConfig) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
