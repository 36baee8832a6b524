// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package sqlagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-a2a/sqlexcel/llm"
)

// Translator turns a natural language question into SQL. An empty statement
// with a nil error means the question could not be translated.
type Translator interface {
	Translate(ctx context.Context, question, schema string) (string, error)
}

// TranslatorFunc adapts a function to the [Translator] interface.
type TranslatorFunc func(ctx context.Context, question, schema string) (string, error)

// Translate implements [Translator].
func (f TranslatorFunc) Translate(ctx context.Context, question, schema string) (string, error) {
	return f(ctx, question, schema)
}

// LLMTranslator asks a chat model for the SQL.
type LLMTranslator struct {
	completer llm.Completer
	dialect   string
}

// NewLLMTranslator returns a translator writing SQL for dialect, e.g. "postgres".
func NewLLMTranslator(completer llm.Completer, dialect string) *LLMTranslator {
	return &LLMTranslator{completer: completer, dialect: dialect}
}

const systemPrompt = "You are a SQL expert. You answer with a single syntactically correct, read-only SQL query and nothing else."

// Translate implements [Translator].
func (t *LLMTranslator) Translate(ctx context.Context, question, schema string) (string, error) {
	var prompt strings.Builder
	prompt.WriteString("Given the database schema:\n")
	prompt.WriteString(schema)
	prompt.WriteString("\n\n")
	if t.dialect != "" {
		fmt.Fprintf(&prompt, "The database is %s.\n", t.dialect)
	}
	prompt.WriteString("Convert the following natural language request into a syntactically correct SQL query.\n")
	prompt.WriteString("Only output the SQL, without explanations.\n\n")
	prompt.WriteString("Request: " + question)

	resp, err := t.completer.Complete(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: prompt.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("translate question: %w", err)
	}
	return strings.TrimSpace(llm.StripCodeFence(resp.Content)), nil
}

// PassthroughTranslator treats the question as SQL. Questions that are not a
// read-only statement yield no translation.
type PassthroughTranslator struct{}

// Translate implements [Translator].
func (PassthroughTranslator) Translate(_ context.Context, question, _ string) (string, error) {
	sql := strings.TrimSpace(llm.StripCodeFence(question))
	if CheckReadOnly(sql) != nil {
		return "", nil
	}
	return sql, nil
}
