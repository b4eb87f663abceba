// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

// EmbeddingClient generates vector embeddings from text inputs.
type EmbeddingClient interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	// Dimensions is the length of every returned vector.
	Dimensions() int
}

// OpenAIEmbeddingClient implements EmbeddingClient using the OpenAI SDK.
type OpenAIEmbeddingClient struct {
	client     openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbeddingClient creates an embedding client with its own base URL and API key.
func NewOpenAIEmbeddingClient(baseURL, apiKey, model string, dimensions int) *OpenAIEmbeddingClient {
	opts := []option.RequestOption{}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else {
		opts = append(opts, option.WithAPIKey("dummy"))
	}

	return &OpenAIEmbeddingClient{
		client:     openai.NewClient(opts...),
		model:      model,
		dimensions: dimensions,
	}
}

// Dimensions implements EmbeddingClient.
func (c *OpenAIEmbeddingClient) Dimensions() int { return c.dimensions }

// Embed generates embeddings for the given text inputs.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	// Build the input union: for a single string use OfString, otherwise OfArrayOfStrings
	var input openai.EmbeddingNewParamsInputUnion
	if len(inputs) == 1 {
		input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(inputs[0]),
		}
	} else {
		input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: inputs,
		}
	}

	params := openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(c.model),
		Input:      input,
		Dimensions: openai.Int(int64(c.dimensions)),
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding request returned %d vectors for %d inputs", len(resp.Data), len(inputs))
	}

	// Data is ordered by index; place each vector explicitly anyway.
	results := make([][]float32, len(inputs))
	for i, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(results) {
			idx = i
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		results[idx] = vec
	}

	return results, nil
}

// GeminiEmbeddingClient implements EmbeddingClient with the Google Gen AI SDK.
type GeminiEmbeddingClient struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGeminiEmbeddingClient creates a Gemini embedding client.
func NewGeminiEmbeddingClient(ctx context.Context, apiKey, baseURL, model string, dimensions int) (*GeminiEmbeddingClient, error) {
	client, err := newGenAIClient(ctx, apiKey, baseURL, 0)
	if err != nil {
		return nil, err
	}
	return &GeminiEmbeddingClient{client: client, model: model, dimensions: dimensions}, nil
}

// Dimensions implements EmbeddingClient.
func (c *GeminiEmbeddingClient) Dimensions() int { return c.dimensions }

// Embed implements EmbeddingClient.
func (c *GeminiEmbeddingClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(inputs))
	for i, in := range inputs {
		contents[i] = genai.NewContentFromText(in, genai.RoleUser)
	}

	dims := int32(c.dimensions)
	resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("embedding request returned %d vectors for %d inputs", len(resp.Embeddings), len(inputs))
	}

	results := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		results[i] = e.Values
	}
	return results, nil
}
