// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlagent answers natural language questions about a database with the
// rows of a generated SQL query.
package sqlagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-json-experiment/json"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/server"
)

// SupportedContentTypes are the input and output modes of the SQL agent.
var SupportedContentTypes = []string{"text", "text/plain"}

// Progress messages published while a question is answered.
const (
	MsgSchemaLookup = "Looking up the database schema..."
	MsgExecuting    = "Executing SQL query..."
)

// ResultArtifactName names the artifact holding the query result.
const ResultArtifactName = "SQL Result"

// Agent implements [server.Agent] on top of a [Database] and a [Translator].
type Agent struct {
	db         *Database
	translator Translator
	logger     *slog.Logger
}

var _ server.Agent = (*Agent)(nil)

// NewAgent returns an agent querying db with the statements translator writes.
func NewAgent(db *Database, translator Translator, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{db: db, translator: translator, logger: logger}
}

// Invoke implements [server.Agent].
func (a *Agent) Invoke(ctx context.Context, params *a2a.TaskSendParams, u *server.Updater) (*server.Result, error) {
	question := strings.TrimSpace(params.Message.Parts.Text())
	if question == "" {
		return server.InputRequired("Please describe the data you want to query."), nil
	}

	if err := u.Working(ctx, MsgSchemaLookup); err != nil {
		return nil, err
	}
	schema, err := a.db.SchemaString(ctx)
	if err != nil {
		return nil, fmt.Errorf("read database schema: %w", err)
	}

	sql, err := a.translator.Translate(ctx, question, schema)
	if err != nil {
		return nil, err
	}
	if sql == "" {
		return server.InputRequired("I could not turn the request into a SQL query. Please rephrase it with more detail."), nil
	}
	a.logger.InfoContext(ctx, "question translated", "task_id", u.TaskID(), "sql", sql)

	if err := u.Working(ctx, MsgExecuting); err != nil {
		return nil, err
	}
	res, err := a.db.Query(ctx, sql)
	if err != nil {
		var stmtErr *StatementError
		if errors.As(err, &stmtErr) {
			return server.Failed(fmt.Sprintf("Refused to run %q: %s", sql, stmtErr.Reason)), nil
		}
		return server.Failed(fmt.Sprintf("SQL execution failed: %v", err)), nil
	}

	artifact, err := ResultArtifact(sql, res)
	if err != nil {
		return nil, err
	}
	msg := a2a.NewTextMessage(a2a.RoleAgent, fmt.Sprintf("Query returned %d rows.", len(res.Rows)))
	return server.Completed(msg, artifact), nil
}

// ResultArtifact packs a query result into an artifact with a data part and a
// text part holding the same object as JSON.
func ResultArtifact(sql string, res *QueryResult) (a2a.Artifact, error) {
	payload := map[string]any{
		"sql_query": sql,
		"result":    res.Rows,
		"metadata": map[string]any{
			"row_count": len(res.Rows),
			"columns":   res.Columns,
		},
	}
	text, err := json.Marshal(payload, json.Deterministic(true))
	if err != nil {
		return a2a.Artifact{}, fmt.Errorf("encode query result: %w", err)
	}
	return a2a.Artifact{
		Name:        ResultArtifactName,
		Description: "Rows returned by the generated SQL query",
		Parts: a2a.Parts{
			&a2a.DataPart{Data: payload},
			&a2a.TextPart{Text: string(text)},
		},
	}, nil
}
