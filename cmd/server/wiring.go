// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/leseb/docchat-gw/pkg/core/api"
	"github.com/leseb/docchat-gw/pkg/core/config"
	"github.com/leseb/docchat-gw/pkg/core/prompt"
	"github.com/leseb/docchat-gw/pkg/filestore"
	"github.com/leseb/docchat-gw/pkg/observability/logging"
	"github.com/leseb/docchat-gw/pkg/splitter"
	"github.com/leseb/docchat-gw/pkg/storage"
	"github.com/leseb/docchat-gw/pkg/usage"
	"github.com/leseb/docchat-gw/pkg/vectorstore"

	// Backends register themselves with their package registries.
	_ "github.com/leseb/docchat-gw/pkg/filestore/filesystem"
	_ "github.com/leseb/docchat-gw/pkg/filestore/memory"
	_ "github.com/leseb/docchat-gw/pkg/filestore/s3"
	_ "github.com/leseb/docchat-gw/pkg/storage/memory"
	_ "github.com/leseb/docchat-gw/pkg/storage/postgres"
	_ "github.com/leseb/docchat-gw/pkg/storage/sqlite"
	_ "github.com/leseb/docchat-gw/pkg/usage/redis"
	_ "github.com/leseb/docchat-gw/pkg/vectorstore/chroma"
	_ "github.com/leseb/docchat-gw/pkg/vectorstore/milvus"
)

// dependencies are the long-lived clients the services are built on.
type dependencies struct {
	model    api.ChatModel
	embedder api.EmbeddingClient
	splitter splitter.Splitter
	prompt   *prompt.Template
	vectors  vectorstore.Backend
	files    filestore.FileStore
	store    storage.Store
	counter  usage.Counter
}

func buildDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	d := &dependencies{}
	ok := false
	defer func() {
		if !ok {
			d.Close(context.Background())
		}
	}()

	var err error
	if d.model, err = newChatModel(ctx, cfg.Model); err != nil {
		return nil, err
	}
	logger.Info("Initialized chat model", "provider", cfg.Model.Provider, "model", cfg.Model.Name)

	if d.embedder, err = newEmbedder(ctx, cfg.Embedding); err != nil {
		return nil, err
	}
	logger.Info("Initialized embedding client",
		"provider", cfg.Embedding.Provider,
		"model", cfg.Embedding.Model,
		"dimensions", d.embedder.Dimensions())

	if d.splitter, err = splitter.New(cfg.Chunking.Strategy, cfg.Chunking.Separator, cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap); err != nil {
		return nil, fmt.Errorf("splitter: %w", err)
	}
	if d.prompt, err = prompt.Parse(cfg.Model.PromptTemplate); err != nil {
		return nil, fmt.Errorf("prompt template: %w", err)
	}

	vs := cfg.VectorStore
	if d.vectors, err = vectorstore.Providers.New(ctx, vs.Type, map[string]string{
		"address":  vs.MilvusAddress,
		"url":      vs.ChromaURL,
		"tenant":   vs.ChromaTenant,
		"database": vs.ChromaDatabase,
	}); err != nil {
		return nil, err
	}
	logger.Info("Initialized vector store backend", "type", vs.Type)

	fsCfg := cfg.FileStore
	if d.files, err = filestore.Providers.New(ctx, fsCfg.Type, map[string]string{
		"base_dir": fsCfg.BaseDir,
		"bucket":   fsCfg.S3Bucket,
		"region":   fsCfg.S3Region,
		"prefix":   fsCfg.S3Prefix,
		"endpoint": fsCfg.S3Endpoint,
	}); err != nil {
		return nil, err
	}
	logger.Info("Initialized file store", "type", fsCfg.Type)

	if d.store, err = storage.Providers.New(ctx, cfg.Storage.Type, map[string]string{
		"dsn": cfg.Storage.DSN,
	}); err != nil {
		return nil, err
	}
	logger.Info("Initialized storage", "type", cfg.Storage.Type)

	u := cfg.Usage
	if d.counter, err = usage.Providers.New(ctx, u.Type, map[string]string{
		"addr":     u.RedisAddr,
		"password": u.RedisPassword,
		"db":       strconv.Itoa(u.RedisDB),
		"window":   u.Window.String(),
	}); err != nil {
		return nil, err
	}
	logger.Info("Initialized usage counter", "type", u.Type, "window", u.Window)

	ok = true
	return d, nil
}

func newChatModel(ctx context.Context, cfg config.ModelConfig) (api.ChatModel, error) {
	modelCfg := api.ChatModelConfig{
		Model:            cfg.Name,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		MaxRetries:       cfg.MaxRetries,
		Timeout:          cfg.Timeout,
		DisableStreaming: cfg.DisableStreaming,
	}
	switch cfg.Provider {
	case "gemini":
		m, err := api.NewGeminiChatModel(ctx, cfg.APIKey, cfg.Endpoint, modelCfg)
		if err != nil {
			return nil, fmt.Errorf("gemini chat model: %w", err)
		}
		return m, nil
	case "mock":
		return api.NewMockChatModel(), nil
	default:
		return api.NewOpenAIChatModel(cfg.Endpoint, cfg.APIKey, modelCfg), nil
	}
}

func newEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (api.EmbeddingClient, error) {
	switch cfg.Provider {
	case "openai":
		return api.NewOpenAIEmbeddingClient(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Dimensions), nil
	case "gemini":
		e, err := api.NewGeminiEmbeddingClient(ctx, cfg.APIKey, cfg.Endpoint, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("gemini embeddings: %w", err)
		}
		return e, nil
	default:
		return api.NewHashEmbeddingClient(cfg.Dimensions), nil
	}
}

// Close releases every backend that was opened.
func (d *dependencies) Close(ctx context.Context) error {
	var errs []error
	if d.vectors != nil {
		errs = append(errs, d.vectors.Close(ctx))
	}
	if d.files != nil {
		errs = append(errs, d.files.Close(ctx))
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	if d.counter != nil {
		errs = append(errs, d.counter.Close())
	}
	return errors.Join(errs...)
}
