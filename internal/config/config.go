package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abduss/picvault/internal/registry"
)

const mebibyte = 1024 * 1024

// Config aggregates runtime configuration for the picvault API.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Storage  StorageConfig
	GitHub   GitHubConfig
	MinIO    MinIOConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// Storage backends accepted by StorageConfig.Backend.
const (
	BackendGitHub = "github"
	BackendMinIO  = "minio"
	BackendMemory = "memory"
)

// StorageConfig describes how assets are spread over storage repositories.
type StorageConfig struct {
	Backend        string
	Owner          string
	RepoPrefix     string
	VaultRepo      string
	SoftThreshold  int64
	HardCap        int64
	MaxRepos       int
	CacheTTL       time.Duration
	SettleDelay    time.Duration
	RequestTimeout time.Duration
	IndexRetries   int
	MaxUploadBytes int64
}

// GitHubConfig points the remote client at the contents API.
type GitHubConfig struct {
	APIURL string
	RawURL string
	Token  string
	Branch string
}

// MinIOConfig carries MinIO connection information for the S3-compatible backend.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
	PresignTTL      time.Duration
}

// RedisConfig enables the shared repository descriptor cache when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenTTL    time.Duration
	BcryptCost        int
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("PICVAULT_API_HOST", "0.0.0.0"),
			Port:         getInt("PICVAULT_API_PORT", 8080),
			ReadTimeout:  getDuration("PICVAULT_API_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("PICVAULT_API_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getDuration("PICVAULT_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "picvault_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "picvault"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(getString("PICVAULT_STORAGE_BACKEND", BackendGitHub)),
			Owner:          getString("PICVAULT_STORAGE_OWNER", ""),
			RepoPrefix:     getString("PICVAULT_REPO_PREFIX", "picvault-public"),
			VaultRepo:      getString("PICVAULT_VAULT_REPO", "picvault-vault"),
			SoftThreshold:  getInt64("PICVAULT_REPO_SOFT_THRESHOLD", 800*mebibyte),
			HardCap:        getInt64("PICVAULT_REPO_HARD_CAP", 1024*mebibyte),
			MaxRepos:       getInt("PICVAULT_MAX_REPOS", 10),
			CacheTTL:       getDuration("PICVAULT_CACHE_TTL", 30*time.Second),
			SettleDelay:    getDuration("PICVAULT_SETTLE_DELAY", 2*time.Second),
			RequestTimeout: getDuration("PICVAULT_REQUEST_TIMEOUT", 15*time.Second),
			IndexRetries:   getInt("PICVAULT_INDEX_RETRIES", 3),
			MaxUploadBytes: getInt64("PICVAULT_MAX_UPLOAD_BYTES", 25*mebibyte),
		},
		GitHub: GitHubConfig{
			APIURL: strings.TrimRight(getString("GITHUB_API_URL", "https://api.github.com"), "/"),
			RawURL: strings.TrimRight(getString("GITHUB_RAW_URL", "https://raw.githubusercontent.com"), "/"),
			Token:  getString("GITHUB_TOKEN", ""),
			Branch: getString("GITHUB_BRANCH", "main"),
		},
		MinIO: MinIOConfig{
			Endpoint:        getString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getString("MINIO_ROOT_USER", "picvault"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", ""),
			PresignTTL:      getDuration("MINIO_PRESIGN_TTL", time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getString("REDIS_ADDR", ""),
			Password: getString("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Auth: loadAuthConfig(),
		Metrics: MetricsConfig{
			PrometheusPath: getString("PICVAULT_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Storage.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (s StorageConfig) validate() error {
	switch s.Backend {
	case BackendGitHub, BackendMinIO, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", s.Backend)
	}
	if strings.TrimSpace(s.Owner) == "" {
		return fmt.Errorf("PICVAULT_STORAGE_OWNER is required")
	}
	if s.MaxRepos < 1 {
		return fmt.Errorf("max repos must be positive, got %d", s.MaxRepos)
	}
	if s.SoftThreshold <= 0 || s.SoftThreshold > s.HardCap {
		return fmt.Errorf("soft threshold %d must be positive and not above hard cap %d", s.SoftThreshold, s.HardCap)
	}
	if strings.TrimSpace(s.RepoPrefix) == "" || strings.TrimSpace(s.VaultRepo) == "" {
		return fmt.Errorf("repo prefix and vault repo are required")
	}
	// a vault named like a storage repository would be listed and allocated into
	if _, ok := registry.Suffix(s.RepoPrefix, s.VaultRepo); ok {
		return fmt.Errorf("vault repo %q collides with storage repo prefix %q", s.VaultRepo, s.RepoPrefix)
	}
	return nil
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadAuthConfig() AuthConfig {
	cost := getInt("PICVAULT_AUTH_BCRYPT_COST", 12)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		AccessTokenSecret: getString("PICVAULT_JWT_SECRET", "change-me-to-a-32-byte-secret"),
		AccessTokenTTL:    getDuration("PICVAULT_AUTH_ACCESS_TOKEN_TTL", 24*time.Hour),
		BcryptCost:        cost,
	}
}
