// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt renders the question-answering prompt sent to the chat model.
package prompt

import (
	"errors"
	"strings"
)

// DefaultTemplate is the conversational document assistant prompt.
const DefaultTemplate = `You are a friendly, sharp conversational assistant that helps people understand their PDF documents. You answer using excerpts from the document (the "Document context" below) and the conversation so far.

Match the user's tone: if they are casual, be casual; if they are formal, be formal.

When document context is provided:
- Use only the information in the document context. Do not invent facts.
- Be factual and clear. Use bullet points, tables or steps when they help.
- Quote or summarise the document where useful.

When the document context is empty:
- If the question needs the document, say so naturally and ask for it.
- If it is a general knowledge question, answer it directly.

Skip disclaimers and filler. Keep answers short unless asked for detail.

---

Chat history:
{chat_history}

Document context:
{context}

User question:
{query}

---

Your response:
`

// ErrMissingQuery is returned by Parse for templates without {query}.
var ErrMissingQuery = errors.New("prompt template must contain {query}")

// Variables are the values substituted into a Template.
type Variables struct {
	Query       string
	ChatHistory string
	Context     string
}

// Template is a prompt with {chat_history}, {context} and {query}
// placeholders. Other braces are left untouched.
type Template struct {
	text string
}

// Default returns the built-in template.
func Default() *Template {
	return &Template{text: DefaultTemplate}
}

// Parse validates a custom template. An empty text yields the default.
func Parse(text string) (*Template, error) {
	if strings.TrimSpace(text) == "" {
		return Default(), nil
	}
	if !strings.Contains(text, "{query}") {
		return nil, ErrMissingQuery
	}
	return &Template{text: text}, nil
}

// Render substitutes the variables in a single pass, so placeholder-like
// text inside a value is never expanded.
func (t *Template) Render(v Variables) string {
	r := strings.NewReplacer(
		"{chat_history}", v.ChatHistory,
		"{context}", v.Context,
		"{query}", v.Query,
	)
	return r.Replace(t.text)
}

// FormatHistory joins prior turns one per line.
func FormatHistory(history []string) string {
	return strings.Join(history, "\n")
}

// FormatContext joins retrieved chunk texts with a blank line between them.
func FormatContext(chunks []string) string {
	return strings.Join(chunks, "\n\n")
}
