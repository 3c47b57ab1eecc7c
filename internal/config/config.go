// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (CHATLLM_* and DATABASE_URL)
//  2. Config file (./config.yaml or ~/.chatllm/config.yaml)
//  3. Default values
//
// Sensitive values (passwords) are never logged. Validation lives in
// validation.go and reports sentinel errors usable with errors.Is().
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidChunkSize indicates the chunk size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidChunkOverlap indicates the overlap is negative or >= chunk size.
	ErrInvalidChunkOverlap = errors.New("invalid chunk overlap")

	// ErrInvalidEmbedBatchSize indicates the embedding batch size is invalid.
	ErrInvalidEmbedBatchSize = errors.New("invalid embed batch size")

	// ErrInvalidEmbedDimension indicates the embedding dimension is invalid.
	ErrInvalidEmbedDimension = errors.New("invalid embedding dimension")

	// ErrInvalidRetrievalLimit indicates the retrieval result limit is invalid.
	ErrInvalidRetrievalLimit = errors.New("invalid retrieval limit")

	// ErrInvalidMaxDistance indicates the retrieval distance threshold is invalid.
	ErrInvalidMaxDistance = errors.New("invalid max distance")

	// ErrInvalidUploadDir indicates the upload directory is empty.
	ErrInvalidUploadDir = errors.New("invalid upload directory")
)

// Defaults applied when neither file nor environment provide a value.
const (
	// DefaultChatModel is used when a request does not name a model,
	// matching the provider's historical default.
	DefaultChatModel = "gpt-4"

	// DefaultEmbedModel is the embedding model requested from the provider.
	DefaultEmbedModel = "text-embedding-3-large"

	// DefaultEmbedDimension must match the vector(N) width in db/migrations.
	DefaultEmbedDimension = 1536

	// DefaultChunkSize and DefaultChunkOverlap control document splitting.
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100

	// DefaultEmbedBatchSize bounds the number of texts per embedding request.
	DefaultEmbedBatchSize = 10

	// DefaultRetrievalLimit and DefaultMaxDistance bound similarity search.
	DefaultRetrievalLimit = 5
	DefaultMaxDistance    = 1.0
)

// Config stores application configuration.
type Config struct {
	// HTTP server
	ListenAddr string `mapstructure:"listen_addr"`

	// Storage (PostgreSQL with pgvector)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Provider defaults. Base URL, API key and chat model arrive per request;
	// these configure what the service itself controls.
	ChatModel       string        `mapstructure:"chat_model"`
	EmbedModel      string        `mapstructure:"embed_model"`
	EmbedDimension  int           `mapstructure:"embed_dimension"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	EmbedRatePerSec float64       `mapstructure:"embed_rate_per_sec"`
	EmbedRateBurst  int           `mapstructure:"embed_rate_burst"`

	// Ingestion
	ChunkSize      int    `mapstructure:"chunk_size"`
	ChunkOverlap   int    `mapstructure:"chunk_overlap"`
	EmbedBatchSize int    `mapstructure:"embed_batch_size"`
	UploadDir      string `mapstructure:"upload_dir"`

	// Retrieval
	RetrievalLimit int     `mapstructure:"retrieval_limit"`
	MaxDistance    float64 `mapstructure:"max_distance"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".chatllm"))
	}

	setDefaults(v)

	v.SetEnvPrefix("CHATLLM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env carry the load.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* fields.
	if err := cfg.parseDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "127.0.0.1:8000")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "chatllm")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "chatllm")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("chat_model", DefaultChatModel)
	v.SetDefault("embed_model", DefaultEmbedModel)
	v.SetDefault("embed_dimension", DefaultEmbedDimension)
	v.SetDefault("provider_timeout", "100s")
	v.SetDefault("embed_rate_per_sec", 5.0)
	v.SetDefault("embed_rate_burst", 10)

	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)
	v.SetDefault("embed_batch_size", DefaultEmbedBatchSize)
	v.SetDefault("upload_dir", "./uploads")

	v.SetDefault("retrieval_limit", DefaultRetrievalLimit)
	v.SetDefault("max_distance", DefaultMaxDistance)
}

// parseDatabaseURL overrides PostgreSQL settings from a postgres:// URL.
// An empty rawURL leaves the configuration untouched.
func (c *Config) parseDatabaseURL(rawURL string) error {
	if rawURL == "" {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
	default:
		return fmt.Errorf("%w: unsupported scheme %q in DATABASE_URL", ErrInvalidPostgresHost, u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidPostgresPort, p)
		}
		c.PostgresPort = port
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		c.PostgresDBName = name
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// DatabaseURL assembles the postgres:// connection URL for pgx and
// golang-migrate.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	if c.PostgresUser != "" {
		if c.PostgresPassword != "" {
			u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
		} else {
			u.User = url.User(c.PostgresUser)
		}
	}
	q := url.Values{}
	if c.PostgresSSLMode != "" {
		q.Set("sslmode", c.PostgresSSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
