// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leseb/docchat-gw/pkg/core/api"
	"github.com/leseb/docchat-gw/pkg/core/prompt"
	"github.com/leseb/docchat-gw/pkg/observability/logging"
	"github.com/leseb/docchat-gw/pkg/vectorstore"
)

var (
	// ErrDocumentNotFound is returned when a namespace was given but holds
	// no document.
	ErrDocumentNotFound = errors.New("namespace not found")
	// ErrEmptyQuery is returned for a blank question.
	ErrEmptyQuery = errors.New("query is required")
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 8

// AnswerInput is a question about a document.
type AnswerInput struct {
	Query       string
	Namespace   string // empty: answer without document context
	ChatHistory []string
}

// ChatService answers questions with retrieval-augmented generation.
type ChatService struct {
	model    api.ChatModel
	embedder api.EmbeddingClient
	backend  vectorstore.Backend
	template *prompt.Template
	topK     int
	logger   *logging.Logger
}

// NewChatService creates a ChatService. A nil template uses the built-in
// prompt; topK <= 0 uses DefaultTopK.
func NewChatService(model api.ChatModel, embedder api.EmbeddingClient, backend vectorstore.Backend, tmpl *prompt.Template, topK int, logger *logging.Logger) *ChatService {
	if tmpl == nil {
		tmpl = prompt.Default()
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &ChatService{
		model:    model,
		embedder: embedder,
		backend:  backend,
		template: tmpl,
		topK:     topK,
		logger:   logger,
	}
}

// Answer retrieves context from the namespace, renders the prompt and
// returns the model's token stream.
func (s *ChatService) Answer(ctx context.Context, in AnswerInput) (<-chan api.Delta, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, ErrEmptyQuery
	}

	docContext, err := s.Retrieve(ctx, in.Namespace, in.Query)
	if err != nil {
		return nil, err
	}

	text := s.template.Render(prompt.Variables{
		Query:       in.Query,
		ChatHistory: prompt.FormatHistory(in.ChatHistory),
		Context:     docContext,
	})

	s.logger.Debug("Prompt rendered",
		"namespace", in.Namespace,
		"history_entries", len(in.ChatHistory),
		"context_chars", len(docContext))

	stream, err := s.model.Stream(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("start model stream: %w", err)
	}
	return stream, nil
}

// Retrieve returns the text of the top matching chunks joined for the
// prompt. An empty namespace yields an empty context.
func (s *ChatService) Retrieve(ctx context.Context, namespace, query string) (string, error) {
	if namespace == "" {
		return "", nil
	}

	ok, err := s.backend.HasNamespace(ctx, namespace)
	if err != nil {
		return "", fmt.Errorf("check namespace %s: %w", namespace, err)
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", namespace, ErrDocumentNotFound)
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return "", nil
	}

	matches, err := s.backend.Query(ctx, namespace, vectors[0], s.topK)
	if errors.Is(err, vectorstore.ErrNamespaceNotFound) {
		return "", fmt.Errorf("%s: %w", namespace, ErrDocumentNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query %s: %w", namespace, err)
	}

	chunks := make([]string, len(matches))
	for i, m := range matches {
		chunks[i] = m.Text
	}
	return prompt.FormatContext(chunks), nil
}
