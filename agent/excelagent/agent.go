// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package excelagent turns SQL query results into xlsx workbooks.
package excelagent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/server"
)

// SupportedContentTypes are the output modes of the Excel agent.
var SupportedContentTypes = []string{"text", "text/plain", MimeType}

// MsgGenerating is published while the workbook is built.
const MsgGenerating = "Generating Excel file..."

// ArtifactName names the artifact holding the workbook.
const ArtifactName = "Excel Export"

// Agent implements [server.Agent] by rendering the rows it receives.
type Agent struct {
	outputDir string
	logger    *slog.Logger
	now       func() time.Time
}

var _ server.Agent = (*Agent)(nil)

// Option configures an [Agent].
type Option func(*Agent)

// WithOutputDir keeps a copy of every workbook under dir.
func WithOutputDir(dir string) Option {
	return func(a *Agent) { a.outputDir = dir }
}

// WithLogger sets the logger of the agent.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithClock replaces the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// NewAgent returns an Excel agent.
func NewAgent(opts ...Option) *Agent {
	a := &Agent{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Invoke implements [server.Agent].
func (a *Agent) Invoke(ctx context.Context, params *a2a.TaskSendParams, u *server.Updater) (*server.Result, error) {
	req, err := ParseRequest(params.Message.Parts)
	if err != nil {
		return server.Failed(fmt.Sprintf("Failed to generate Excel file: %v", err)), nil
	}
	if err := u.Working(ctx, MsgGenerating); err != nil {
		return nil, err
	}

	data, err := BuildWorkbook(req, a.now())
	if err != nil {
		return server.Failed(fmt.Sprintf("Failed to generate Excel file: %v", err)), nil
	}
	name := fileName()
	a.logger.InfoContext(ctx, "workbook generated", "task_id", u.TaskID(), "file", name, "rows", len(req.Result), "size", len(data))

	if a.outputDir != "" {
		if err := a.save(name, data); err != nil {
			a.logger.WarnContext(ctx, "keep workbook copy", "file", name, "error", err)
		}
	}

	msg := a2a.NewTextMessage(a2a.RoleAgent, fmt.Sprintf("Excel file generated successfully from %d records.", len(req.Result)))
	return server.Completed(msg, FileArtifact(name, data, len(req.Result))), nil
}

func (a *Agent) save(name string, data []byte) error {
	dir := filepath.Join(a.outputDir, "excel")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// FileArtifact wraps a workbook into the artifact returned to callers.
func FileArtifact(name string, data []byte, rows int) a2a.Artifact {
	return a2a.Artifact{
		Name:        ArtifactName,
		Description: "SQL query results exported to Excel format",
		Parts: a2a.Parts{
			&a2a.TextPart{Text: "Query results exported to Excel file: " + name},
			&a2a.FilePart{
				File: a2a.NewInlineFile(name, MimeType, data),
				Metadata: map[string]any{
					"type":     "excel",
					"filename": name,
					"size":     len(data),
				},
			},
		},
		Metadata: map[string]any{
			"rows":      rows,
			"file_size": len(data),
			"file_name": name,
		},
	}
}

func fileName() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return "query_result_" + hex.EncodeToString(b[:]) + ".xlsx"
}
