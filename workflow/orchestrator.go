// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow chains the SQL agent and the Excel agent: a natural language
// question is turned into rows by the first and the rows into a workbook by the
// second.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/client"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageQuery   Stage = "query"
	StageExtract Stage = "extract_query_result"
	StageExport  Stage = "export"
	StageDone    Stage = "done"
)

// Skills the pipeline relies on, as published in the agent cards.
const (
	QuerySkill  = "text_to_sql"
	ExportSkill = "sql_to_excel"
)

// Output modes requested from each agent.
var (
	QueryOutputModes  = []string{"text", "data"}
	ExportOutputModes = []string{"text", "file"}
)

// StageError is the failure of one stage. Raw holds what the stage was looking
// at when it failed, typically the agent's task.
type StageError struct {
	Stage Stage
	Err   error
	Raw   any
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("workflow stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result is the outcome of [Orchestrator.Process]. On success Query, SQLData and
// ExcelFile are set; otherwise Stage, Error and Raw describe the failure.
type Result struct {
	Success   bool         `json:"success"`
	SessionID string       `json:"session_id,omitempty"`
	Query     string       `json:"query,omitempty"`
	SQLData   *QueryResult `json:"sql_data,omitempty"`
	ExcelFile *ExcelFile   `json:"excel_file,omitempty"`

	Stage Stage  `json:"stage,omitempty"`
	Error string `json:"error,omitempty"`
	Raw   any    `json:"raw,omitempty"`
}

// TaskSender submits a task to an agent. [*client.Client] implements it.
type TaskSender interface {
	SendTask(ctx context.Context, params *a2a.TaskSendParams, opts ...client.CallOption) (*a2a.Task, error)
}

// Config holds the configuration of an [Orchestrator].
type Config struct {
	// SQLAgent answers natural language questions with rows. Required.
	SQLAgent TaskSender
	// ExcelAgent renders rows into a workbook. Required.
	ExcelAgent TaskSender
	// StageTimeout bounds each stage. Zero leaves stages bounded by the caller's context only.
	StageTimeout time.Duration
	// OutputDir receives a copy of every generated workbook. Empty disables saving.
	OutputDir string

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *Metrics
}

// Orchestrator runs the query → extract_query_result → export pipeline.
type Orchestrator struct {
	sqlAgent     TaskSender
	excelAgent   TaskSender
	stageTimeout time.Duration
	outputDir    string

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
}

// New creates a new [Orchestrator].
func New(cfg Config) (*Orchestrator, error) {
	if cfg.SQLAgent == nil {
		return nil, errors.New("sql agent is required")
	}
	if cfg.ExcelAgent == nil {
		return nil, errors.New("excel agent is required")
	}
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	o := &Orchestrator{
		sqlAgent:     cfg.SQLAgent,
		excelAgent:   cfg.ExcelAgent,
		stageTimeout: cfg.StageTimeout,
		outputDir:    cfg.OutputDir,
		logger:       cfg.Logger,
		tracer:       cfg.Tracer,
		metrics:      cfg.Metrics,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider().Tracer("github.com/go-a2a/sqlexcel/workflow")
	}
	if o.metrics == nil {
		o.metrics = defaultMetrics()
	}
	return o, nil
}

// Connect resolves the cards of both agents and returns an [Orchestrator] talking to them.
// It fails when an agent cannot answer in the output modes its stage requests.
// The SQLAgent and ExcelAgent fields of cfg are overwritten.
func Connect(ctx context.Context, resolver *client.CardResolver, sqlAgentURL, excelAgentURL string, cfg Config, opts ...client.Option) (*Orchestrator, error) {
	sqlAgent, err := resolver.Client(ctx, sqlAgentURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect sql agent: %w", err)
	}
	excelAgent, err := resolver.Client(ctx, excelAgentURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect excel agent: %w", err)
	}
	if err := checkOutputModes(sqlAgent.Card(), QuerySkill, QueryOutputModes); err != nil {
		return nil, fmt.Errorf("connect sql agent: %w", err)
	}
	if err := checkOutputModes(excelAgent.Card(), ExportSkill, ExportOutputModes); err != nil {
		return nil, fmt.Errorf("connect excel agent: %w", err)
	}
	cfg.SQLAgent = sqlAgent
	cfg.ExcelAgent = excelAgent
	return New(cfg)
}

// checkOutputModes fails when the skill of card answers in none of the accepted modes.
func checkOutputModes(card *a2a.AgentCard, skillID string, accepted []string) error {
	modes := client.SupportedOutputModes(card, skillID)
	if !a2a.AreModalitiesCompatible(accepted, modes) {
		return fmt.Errorf("agent %q answers %s in %v, want one of %v", card.Name, skillID, modes, accepted)
	}
	return nil
}

// run is the state threaded through the stages of one Process call.
type run struct {
	sessionID     string
	query         string
	formatOptions map[string]any

	sqlTask   *a2a.Task
	sqlData   *QueryResult
	excelFile *ExcelFile
}

type stageFunc func(ctx context.Context, r *run) (Stage, error)

func (o *Orchestrator) stage(s Stage) stageFunc {
	switch s {
	case StageQuery:
		return o.query
	case StageExtract:
		return o.extract
	case StageExport:
		return o.export
	default:
		return nil
	}
}

// Process runs question through the pipeline. It never returns an error: every
// failure is reported in the [Result], tagged with the stage it happened in.
func (o *Orchestrator) Process(ctx context.Context, question string, formatOptions map[string]any) *Result {
	r := &run{
		sessionID:     uuid.NewString(),
		query:         question,
		formatOptions: formatOptions,
	}

	ctx, span := o.tracer.Start(ctx, "workflow.Process", trace.WithAttributes(
		attribute.String("workflow.session_id", r.sessionID),
	))
	defer span.End()

	o.metrics.addActive(1)
	defer o.metrics.addActive(-1)

	o.logger.InfoContext(ctx, "workflow started", "session_id", r.sessionID, "query", question)

	current := StageQuery
	for current != StageDone {
		next, err := o.runStage(ctx, current, r)
		if err != nil {
			var se *StageError
			if !errors.As(err, &se) {
				se = &StageError{Stage: current, Err: err}
			}
			span.RecordError(se)
			span.SetStatus(codes.Error, se.Error())
			o.logger.ErrorContext(ctx, "workflow failed", "session_id", r.sessionID, "stage", se.Stage, "error", se.Err)
			return &Result{
				SessionID: r.sessionID,
				Query:     question,
				Stage:     se.Stage,
				Error:     se.Err.Error(),
				Raw:       se.Raw,
			}
		}
		current = next
	}

	o.logger.InfoContext(ctx, "workflow completed", "session_id", r.sessionID, "rows", len(r.sqlData.Result), "file", r.excelFile.Name)
	return &Result{
		Success:   true,
		SessionID: r.sessionID,
		Query:     question,
		SQLData:   r.sqlData,
		ExcelFile: r.excelFile,
	}
}

func (o *Orchestrator) runStage(ctx context.Context, s Stage, r *run) (Stage, error) {
	fn := o.stage(s)
	if fn == nil {
		return "", &StageError{Stage: s, Err: errors.New("unknown stage")}
	}

	ctx, span := o.tracer.Start(ctx, "workflow.stage."+string(s))
	defer span.End()

	if o.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.stageTimeout)
		defer cancel()
	}

	start := time.Now()
	next, err := fn(ctx, r)
	elapsed := time.Since(start)

	if err != nil {
		reason := failureReason(ctx, err)
		if reason == "timeout" {
			err = wrapTimeout(s, err, o.stageTimeout)
		}
		o.metrics.observeStage(s, "error", elapsed)
		o.metrics.incFailure(s, reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	o.metrics.observeStage(s, "ok", elapsed)
	o.logger.DebugContext(ctx, "workflow stage finished", "session_id", r.sessionID, "stage", s, "next", next, "elapsed", elapsed)
	return next, nil
}

func failureReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(ctx.Err(), context.Canceled):
		return "canceled"
	}
	var se *StageError
	if errors.As(err, &se) && se.Raw != nil {
		return "agent"
	}
	var ce client.ClientError
	if errors.As(err, &ce) {
		return "transport"
	}
	return "invalid_result"
}

func wrapTimeout(s Stage, err error, timeout time.Duration) error {
	var se *StageError
	if !errors.As(err, &se) {
		se = &StageError{Stage: s, Err: err}
	}
	return &StageError{
		Stage: se.Stage,
		Err:   fmt.Errorf("stage timed out after %s: %w", timeout, se.Err),
		Raw:   se.Raw,
	}
}

func (o *Orchestrator) query(ctx context.Context, r *run) (Stage, error) {
	params := &a2a.TaskSendParams{
		ID:                  uuid.NewString(),
		SessionID:           r.sessionID,
		Message:             *a2a.NewTextMessage(a2a.RoleUser, r.query),
		AcceptedOutputModes: QueryOutputModes,
	}
	o.logger.InfoContext(ctx, "sending query to sql agent", "session_id", r.sessionID, "task_id", params.ID)

	task, err := o.sqlAgent.SendTask(ctx, params)
	if err != nil {
		return "", &StageError{Stage: StageQuery, Err: fmt.Errorf("send task to sql agent: %w", err)}
	}
	if task.Status.State != a2a.TaskStateCompleted {
		return "", &StageError{Stage: StageQuery, Err: unfinished("sql agent", task), Raw: task}
	}
	r.sqlTask = task
	return StageExtract, nil
}

func (o *Orchestrator) extract(_ context.Context, r *run) (Stage, error) {
	qr, err := ExtractQueryResult(r.sqlTask)
	if err != nil {
		return "", &StageError{Stage: StageExtract, Err: err, Raw: r.sqlTask}
	}
	qr.Query = r.query
	r.sqlData = qr
	return StageExport, nil
}

func (o *Orchestrator) export(ctx context.Context, r *run) (Stage, error) {
	formatOptions := r.formatOptions
	if formatOptions == nil {
		formatOptions = map[string]any{}
	}
	request := map[string]any{
		"query":          r.query,
		"sql_query":      r.sqlData.SQLQuery,
		"result":         r.sqlData.Result,
		"format_options": formatOptions,
	}
	if columns, ok := r.sqlData.Metadata["columns"]; ok {
		request["columns"] = columns
	}
	params := &a2a.TaskSendParams{
		ID:        uuid.NewString(),
		SessionID: r.sessionID,
		Message: a2a.Message{
			Role:  a2a.RoleUser,
			Parts: a2a.Parts{&a2a.DataPart{Data: request}},
		},
		AcceptedOutputModes: ExportOutputModes,
	}
	o.logger.InfoContext(ctx, "sending rows to excel agent", "session_id", r.sessionID, "task_id", params.ID, "rows", len(r.sqlData.Result))

	task, err := o.excelAgent.SendTask(ctx, params)
	if err != nil {
		return "", &StageError{Stage: StageExport, Err: fmt.Errorf("send task to excel agent: %w", err)}
	}
	if task.Status.State != a2a.TaskStateCompleted {
		return "", &StageError{Stage: StageExport, Err: unfinished("excel agent", task), Raw: task}
	}

	file, err := ExtractExcelFile(task)
	if err != nil {
		return "", &StageError{Stage: StageExport, Err: err, Raw: task}
	}
	if o.outputDir != "" && file.HasContent {
		path, err := o.save(file)
		if err != nil {
			return "", &StageError{Stage: StageExport, Err: err, Raw: task}
		}
		file.Path = path
	}
	r.excelFile = file
	return StageDone, nil
}

func (o *Orchestrator) save(file *ExcelFile) (string, error) {
	name := filepath.Base(file.Name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "workflow_" + uuid.NewString()[:8] + ".xlsx"
	}
	path := filepath.Join(o.outputDir, name)
	if err := os.WriteFile(path, file.Content, 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return path, nil
}

func unfinished(agent string, task *a2a.Task) error {
	if task.Status.Message != nil {
		if text := task.Status.Message.Parts.Text(); text != "" {
			return fmt.Errorf("%s finished in state %s: %s", agent, task.Status.State, text)
		}
	}
	return fmt.Errorf("%s finished in state %s", agent, task.Status.State)
}
