// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable Load consults so the host environment does
// not leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CHAT_API_KEY", "LOG_LEVEL", "LOG_PATH", "PORT",
		"MODEL_PROVIDER", "MODEL_NAME", "OPENAI_API_ENDPOINT", "OPENAI_API_KEY", "GOOGLE_API_KEY",
		"EMBEDDING_PROVIDER", "EMBEDDING_ENDPOINT", "EMBEDDING_API_KEY", "EMBEDDING_MODEL",
		"MILVUS_ADDRESS", "CHROMA_URL", "S3_BUCKET", "S3_REGION", "S3_ENDPOINT",
		"DATABASE_URL", "STORAGE_TYPE", "REDIS_ADDR", "REDIS_PASSWORD",
	} {
		t.Setenv(k, "")
	}
	// Load reads .env from the working directory; run from an empty one.
	t.Chdir(t.TempDir())
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8080 || cfg.Server.Timeout != 60*time.Second {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Model.Provider != "openai" || cfg.Model.Name != DefaultOpenAIModel {
		t.Errorf("model defaults = %+v", cfg.Model)
	}
	if cfg.Model.Temperature != 0.1 || cfg.Model.MaxRetries != 2 {
		t.Errorf("model tuning defaults = %+v", cfg.Model)
	}
	if cfg.Embedding.Provider != "hash" || cfg.Embedding.Dimensions != 256 {
		t.Errorf("embedding defaults = %+v", cfg.Embedding)
	}
	vs := cfg.VectorStore
	if vs.Type != "memory" || vs.TopK != 8 || vs.IndexName != "chat-with-document" ||
		vs.NamespacePrefix != "chat-with-your-document-workspace:" {
		t.Errorf("vector store defaults = %+v", vs)
	}
	ch := cfg.Chunking
	if ch.Strategy != "character" || ch.Separator != "\n" || ch.ChunkSize != 800 || ch.ChunkOverlap != 300 {
		t.Errorf("chunking defaults = %+v", ch)
	}
	if cfg.Usage.Window != 720*time.Hour || cfg.Usage.MaxUploadBytes != 5<<20 {
		t.Errorf("usage defaults = %+v", cfg.Usage)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
server:
  port: 9090
model:
  provider: gemini
  temperature: 0.3
chunking:
  chunk_size: 500
  chunk_overlap: 50
vector_store:
  top_k: 4
usage:
  window: 24h
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHAT_API_KEY", "secret")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("CHROMA_URL", "http://chroma:8000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, default should survive partial file", cfg.Server.Host)
	}
	if cfg.Auth.APIKey != "secret" {
		t.Errorf("APIKey = %q", cfg.Auth.APIKey)
	}
	if cfg.Model.Name != DefaultGeminiModel || cfg.Model.APIKey != "g-key" || cfg.Model.Temperature != 0.3 {
		t.Errorf("model = %+v", cfg.Model)
	}
	if cfg.Chunking.ChunkSize != 500 || cfg.Chunking.ChunkOverlap != 50 || cfg.Chunking.Separator != "\n" {
		t.Errorf("chunking = %+v", cfg.Chunking)
	}
	if cfg.VectorStore.Type != "chroma" || cfg.VectorStore.ChromaURL != "http://chroma:8000" || cfg.VectorStore.TopK != 4 {
		t.Errorf("vector store = %+v", cfg.VectorStore)
	}
	if cfg.Usage.Window != 24*time.Hour {
		t.Errorf("Window = %s", cfg.Usage.Window)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("CHAT_API_KEY")

	if err := os.WriteFile(".env", []byte("CHAT_API_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("CHAT_API_KEY") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.APIKey != "from-dotenv" {
		t.Errorf("APIKey = %q, want from-dotenv", cfg.Auth.APIKey)
	}
}

func TestLoad_EmbeddingProviderFromKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMBEDDING_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Embedding.Provider != "openai" || cfg.Embedding.Model != DefaultOpenAIEmbeddingModel || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"overlap equals size", func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }, "chunk_overlap"},
		{"negative overlap", func(c *Config) { c.Chunking.ChunkOverlap = -1 }, "chunk_overlap"},
		{"zero top_k", func(c *Config) { c.VectorStore.TopK = 0 }, "top_k"},
		{"unknown vector store", func(c *Config) { c.VectorStore.Type = "pinecone" }, "vector_store.type"},
		{"unknown model provider", func(c *Config) { c.Model.Provider = "llama" }, "model.provider"},
		{"unknown strategy", func(c *Config) { c.Chunking.Strategy = "semantic" }, "chunking.strategy"},
		{"s3 without bucket", func(c *Config) { c.FileStore.Type = "s3" }, "s3_bucket"},
		{"postgres without dsn", func(c *Config) { c.Storage.Type = "postgres" }, "storage.dsn"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
