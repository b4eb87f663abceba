// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default model names per provider.
const (
	DefaultOpenAIModel          = "gpt-4o-mini"
	DefaultGeminiModel          = "gemini-2.5-flash-lite-preview-06-17"
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
	DefaultGeminiEmbeddingModel = "text-embedding-004"
)

// Config represents the main configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
	Model       ModelConfig       `yaml:"model"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Fetch       FetchConfig       `yaml:"fetch"`
	FileStore   FileStoreConfig   `yaml:"file_store"`
	Storage     StorageConfig     `yaml:"storage"`
	Usage       UsageConfig       `yaml:"usage"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig holds the shared secret expected in X-API-Key.
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// LoggingConfig contains logger configuration
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// ModelConfig configures the chat model used to answer questions.
type ModelConfig struct {
	Provider         string        `yaml:"provider"` // "openai" (default), "gemini" or "mock"
	Name             string        `yaml:"name"`
	Endpoint         string        `yaml:"endpoint"`
	APIKey           string        `yaml:"api_key"`
	Temperature      float64       `yaml:"temperature"`
	MaxTokens        int           `yaml:"max_tokens"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	DisableStreaming bool          `yaml:"disable_streaming"`
	PromptTemplate   string        `yaml:"prompt_template"`
}

// EmbeddingConfig contains embedding service configuration
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "openai", "gemini" or "hash"
	Endpoint   string `yaml:"endpoint"` // e.g. "https://api.openai.com/v1"
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`      // e.g. "text-embedding-3-small"
	Dimensions int    `yaml:"dimensions"` // default 1536
}

// VectorStoreConfig contains vector store backend configuration
type VectorStoreConfig struct {
	Type            string `yaml:"type"` // "memory" (default), "milvus" or "chroma"
	IndexName       string `yaml:"index_name"`
	NamespacePrefix string `yaml:"namespace_prefix"`
	TopK            int    `yaml:"top_k"`
	MilvusAddress   string `yaml:"milvus_address"` // e.g. "localhost:19530"
	ChromaURL       string `yaml:"chroma_url"`     // e.g. "http://localhost:8000"
	ChromaTenant    string `yaml:"chroma_tenant"`
	ChromaDatabase  string `yaml:"chroma_database"`
}

// ChunkingConfig controls how loaded pages are split.
type ChunkingConfig struct {
	Strategy     string `yaml:"strategy"` // "character" (default) or "fixed"
	Separator    string `yaml:"separator"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// FetchConfig limits document downloads.
type FetchConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

// FileStoreConfig contains file storage backend configuration
type FileStoreConfig struct {
	Type       string        `yaml:"type"` // "memory" (default), "filesystem" or "s3"
	BaseDir    string        `yaml:"base_dir"`
	S3Bucket   string        `yaml:"s3_bucket"`
	S3Region   string        `yaml:"s3_region"`
	S3Prefix   string        `yaml:"s3_prefix"`
	S3Endpoint string        `yaml:"s3_endpoint"`
	URLExpiry  time.Duration `yaml:"url_expiry"`
}

// StorageConfig selects the relational store for documents, chats and users.
type StorageConfig struct {
	Type string `yaml:"type"` // "memory" (default), "sqlite" or "postgres"
	DSN  string `yaml:"dsn"`
}

// UsageConfig configures usage counters and upload limits.
type UsageConfig struct {
	Type           string        `yaml:"type"` // "memory" (default) or "redis"
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	Window         time.Duration `yaml:"window"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// Load loads configuration from a YAML file. A missing file (or an empty
// path) yields the defaults. A .env file in the working directory is loaded
// first; environment variables override file values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := base()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns default configuration without consulting the environment.
func Default() *Config {
	cfg := base()
	applyDefaults(cfg)
	return cfg
}

func base() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Model: ModelConfig{
			Temperature: 0.1,
			MaxRetries:  2,
		},
		VectorStore: VectorStoreConfig{
			IndexName:       "chat-with-document",
			NamespacePrefix: "chat-with-your-document-workspace:",
			TopK:            8,
		},
		Chunking: ChunkingConfig{
			Strategy:     "character",
			Separator:    "\n",
			ChunkSize:    800,
			ChunkOverlap: 300,
		},
		Fetch: FetchConfig{
			Timeout:  60 * time.Second,
			MaxBytes: 50 << 20,
		},
		FileStore: FileStoreConfig{
			URLExpiry: time.Hour,
		},
		Usage: UsageConfig{
			Window:         30 * 24 * time.Hour,
			MaxUploadBytes: 5 << 20,
		},
	}
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&cfg.Auth.APIKey, "CHAT_API_KEY")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.FilePath, "LOG_PATH")
	if v, err := strconv.Atoi(os.Getenv("PORT")); err == nil && v > 0 {
		cfg.Server.Port = v
	}

	// Model env overrides
	setString(&cfg.Model.Provider, "MODEL_PROVIDER")
	setString(&cfg.Model.Name, "MODEL_NAME")
	setString(&cfg.Model.Endpoint, "OPENAI_API_ENDPOINT")
	if cfg.Model.Provider == "gemini" {
		setString(&cfg.Model.APIKey, "GOOGLE_API_KEY")
	} else {
		setString(&cfg.Model.APIKey, "OPENAI_API_KEY")
	}

	// Embedding env overrides
	setString(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.Endpoint, "EMBEDDING_ENDPOINT")
	setString(&cfg.Embedding.APIKey, "EMBEDDING_API_KEY")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	if cfg.Embedding.Provider == "gemini" && cfg.Embedding.APIKey == "" {
		setString(&cfg.Embedding.APIKey, "GOOGLE_API_KEY")
	}

	// Vector store env overrides
	if v := os.Getenv("MILVUS_ADDRESS"); v != "" {
		cfg.VectorStore.MilvusAddress = v
		cfg.VectorStore.Type = "milvus"
	}
	if v := os.Getenv("CHROMA_URL"); v != "" {
		cfg.VectorStore.ChromaURL = v
		cfg.VectorStore.Type = "chroma"
	}

	// File store env overrides
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.FileStore.S3Bucket = v
		cfg.FileStore.Type = "s3"
	}
	setString(&cfg.FileStore.S3Region, "S3_REGION")
	setString(&cfg.FileStore.S3Endpoint, "S3_ENDPOINT")

	// Storage env overrides
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DSN = v
		if cfg.Storage.Type == "" {
			cfg.Storage.Type = "postgres"
		}
	}
	setString(&cfg.Storage.Type, "STORAGE_TYPE")

	// Usage env overrides
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Usage.RedisAddr = v
		cfg.Usage.Type = "redis"
	}
	setString(&cfg.Usage.RedisPassword, "REDIS_PASSWORD")
}

func applyDefaults(cfg *Config) {
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "openai"
	}
	if cfg.Model.Name == "" {
		if cfg.Model.Provider == "gemini" {
			cfg.Model.Name = DefaultGeminiModel
		} else {
			cfg.Model.Name = DefaultOpenAIModel
		}
	}

	applyEmbeddingDefaults(&cfg.Embedding)
	applyVectorStoreDefaults(&cfg.VectorStore)

	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "memory"
	}
	if cfg.FileStore.Type == "filesystem" && cfg.FileStore.BaseDir == "" {
		cfg.FileStore.BaseDir = "./data/files"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "memory"
	}
	if cfg.Storage.Type == "sqlite" && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "./data/docchat.db"
	}
	if cfg.Usage.Type == "" {
		cfg.Usage.Type = "memory"
	}
}

func applyEmbeddingDefaults(cfg *EmbeddingConfig) {
	if cfg.Provider == "" {
		if cfg.Endpoint != "" || cfg.APIKey != "" {
			cfg.Provider = "openai"
		} else {
			cfg.Provider = "hash"
		}
	}
	switch cfg.Provider {
	case "openai":
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIEmbeddingModel
		}
		if cfg.Dimensions == 0 {
			cfg.Dimensions = 1536
		}
	case "gemini":
		if cfg.Model == "" {
			cfg.Model = DefaultGeminiEmbeddingModel
		}
		if cfg.Dimensions == 0 {
			cfg.Dimensions = 768
		}
	case "hash":
		if cfg.Dimensions == 0 {
			cfg.Dimensions = 256
		}
	}
}

func applyVectorStoreDefaults(cfg *VectorStoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if err := oneOf("model.provider", c.Model.Provider, "openai", "gemini", "mock"); err != nil {
		return err
	}
	if err := oneOf("embedding.provider", c.Embedding.Provider, "openai", "gemini", "hash"); err != nil {
		return err
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if err := oneOf("vector_store.type", c.VectorStore.Type, "memory", "milvus", "chroma"); err != nil {
		return err
	}
	if c.VectorStore.TopK <= 0 {
		return fmt.Errorf("vector_store.top_k must be positive, got %d", c.VectorStore.TopK)
	}
	if err := oneOf("chunking.strategy", c.Chunking.Strategy, "character", "fixed"); err != nil {
		return err
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap %d must be in [0, chunk_size %d)",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if err := oneOf("file_store.type", c.FileStore.Type, "memory", "filesystem", "s3"); err != nil {
		return err
	}
	if c.FileStore.Type == "s3" && c.FileStore.S3Bucket == "" {
		return errors.New("file_store.s3_bucket is required for the s3 file store")
	}
	if err := oneOf("storage.type", c.Storage.Type, "memory", "sqlite", "postgres"); err != nil {
		return err
	}
	if c.Storage.Type == "postgres" && c.Storage.DSN == "" {
		return errors.New("storage.dsn is required for postgres")
	}
	if err := oneOf("usage.type", c.Usage.Type, "memory", "redis"); err != nil {
		return err
	}
	if c.Usage.Window <= 0 {
		return fmt.Errorf("usage.window must be positive, got %s", c.Usage.Window)
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q (want one of %v)", field, value, allowed)
}
