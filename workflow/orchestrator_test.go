// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package workflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/client"
	"github.com/go-a2a/sqlexcel/workflow"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeAgent answers every task with fn and records the calls it received.
type fakeAgent struct {
	calls atomic.Int32
	last  atomic.Pointer[a2a.TaskSendParams]
	fn    func(ctx context.Context, params *a2a.TaskSendParams) (*a2a.Task, error)
}

func (f *fakeAgent) SendTask(ctx context.Context, params *a2a.TaskSendParams, _ ...client.CallOption) (*a2a.Task, error) {
	f.calls.Add(1)
	f.last.Store(params)
	return f.fn(ctx, params)
}

func completedTask(params *a2a.TaskSendParams, artifacts ...a2a.Artifact) *a2a.Task {
	return &a2a.Task{
		ID:        params.ID,
		SessionID: params.SessionID,
		Status:    a2a.TaskStatus{State: a2a.TaskStateCompleted},
		Artifacts: artifacts,
	}
}

func sqlAgent(rows []map[string]any) *fakeAgent {
	return &fakeAgent{fn: func(_ context.Context, params *a2a.TaskSendParams) (*a2a.Task, error) {
		return completedTask(params, a2a.Artifact{
			Name: "SQL Result",
			Parts: a2a.Parts{&a2a.DataPart{Data: map[string]any{
				"sql_query": "SELECT name FROM users",
				"result":    rows,
				"metadata":  map[string]any{"row_count": len(rows)},
			}}},
		}), nil
	}}
}

func excelAgent(content []byte) *fakeAgent {
	return &fakeAgent{fn: func(_ context.Context, params *a2a.TaskSendParams) (*a2a.Task, error) {
		return completedTask(params, a2a.Artifact{
			Name: "Excel Export",
			Parts: a2a.Parts{
				&a2a.TextPart{Text: "Query results exported to Excel file: query_result_0a1b2c3d.xlsx"},
				&a2a.FilePart{
					File:     a2a.NewInlineFile("query_result_0a1b2c3d.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", content),
					Metadata: map[string]any{"type": "excel"},
				},
			},
		}), nil
	}}
}

func failingAgent(state a2a.TaskState, text string) *fakeAgent {
	return &fakeAgent{fn: func(_ context.Context, params *a2a.TaskSendParams) (*a2a.Task, error) {
		return &a2a.Task{
			ID:     params.ID,
			Status: a2a.TaskStatus{State: state, Message: a2a.NewTextMessage(a2a.RoleAgent, text)},
		}, nil
	}}
}

func newOrchestrator(t *testing.T, sql, excel workflow.TaskSender, mutate ...func(*workflow.Config)) *workflow.Orchestrator {
	t.Helper()
	cfg := workflow.Config{
		SQLAgent:   sql,
		ExcelAgent: excel,
		Logger:     discard,
		Metrics:    workflow.MustNewMetrics(prometheus.NewRegistry()),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	o, err := workflow.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

func TestProcessSucceeds(t *testing.T) {
	rows := []map[string]any{{"name": "ada"}, {"name": "grace"}, {"name": "linus"}}
	sql := sqlAgent(rows)
	excel := excelAgent([]byte("workbook"))
	dir := t.TempDir()
	o := newOrchestrator(t, sql, excel, func(cfg *workflow.Config) { cfg.OutputDir = dir })

	got := o.Process(context.Background(), "list all users", map[string]any{"style_template": "professional"})

	want := &workflow.Result{
		Success: true,
		Query:   "list all users",
		SQLData: &workflow.QueryResult{
			Query:    "list all users",
			SQLQuery: "SELECT name FROM users",
			Result:   rows,
			Metadata: map[string]any{"row_count": 3},
		},
		ExcelFile: &workflow.ExcelFile{
			Name:        "query_result_0a1b2c3d.xlsx",
			MimeType:    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Size:        len("workbook"),
			HasContent:  true,
			Path:        filepath.Join(dir, "query_result_0a1b2c3d.xlsx"),
			Description: "Query results exported to Excel file: query_result_0a1b2c3d.xlsx",
			Metadata:    map[string]any{"type": "excel"},
			Content:     []byte("workbook"),
		},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(workflow.Result{}, "SessionID")); diff != "" {
		t.Errorf("Process() mismatch (-want +got):\n%s", diff)
	}

	saved, err := os.ReadFile(filepath.Join(dir, "query_result_0a1b2c3d.xlsx"))
	if err != nil {
		t.Fatalf("saved workbook missing: %v", err)
	}
	if string(saved) != "workbook" {
		t.Errorf("saved workbook = %q, want %q", saved, "workbook")
	}

	sqlParams := sql.last.Load()
	excelParams := excel.last.Load()
	if sqlParams.SessionID == "" || sqlParams.SessionID != excelParams.SessionID {
		t.Errorf("session ids differ: sql %q, excel %q", sqlParams.SessionID, excelParams.SessionID)
	}
	if diff := cmp.Diff(workflow.QueryOutputModes, sqlParams.AcceptedOutputModes); diff != "" {
		t.Errorf("sql accepted modes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(workflow.ExportOutputModes, excelParams.AcceptedOutputModes); diff != "" {
		t.Errorf("excel accepted modes mismatch (-want +got):\n%s", diff)
	}

	data, ok := excelParams.Message.Parts[0].(*a2a.DataPart)
	if !ok {
		t.Fatalf("excel message part = %T, want *a2a.DataPart", excelParams.Message.Parts[0])
	}
	wantData := map[string]any{
		"query":          "list all users",
		"sql_query":      "SELECT name FROM users",
		"result":         rows,
		"format_options": map[string]any{"style_template": "professional"},
	}
	if diff := cmp.Diff(wantData, data.Data); diff != "" {
		t.Errorf("excel request mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessEmptyResultReachesExport(t *testing.T) {
	sql := sqlAgent(nil)
	excel := excelAgent([]byte("placeholder workbook"))
	o := newOrchestrator(t, sql, excel)

	got := o.Process(context.Background(), "users named nobody", nil)
	if !got.Success {
		t.Fatalf("Process() failed in stage %s: %s", got.Stage, got.Error)
	}
	if excel.calls.Load() != 1 {
		t.Errorf("excel agent called %d times, want 1", excel.calls.Load())
	}
	if len(got.SQLData.Result) != 0 {
		t.Errorf("rows = %v, want none", got.SQLData.Result)
	}
	data := excel.last.Load().Message.Parts[0].(*a2a.DataPart)
	if diff := cmp.Diff(map[string]any{}, data.Data["format_options"]); diff != "" {
		t.Errorf("format_options mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessFailures(t *testing.T) {
	rows := []map[string]any{{"id": 1}}

	tests := map[string]struct {
		sql        *fakeAgent
		excel      *fakeAgent
		wantStage  workflow.Stage
		wantError  string
		wantExport int32
		wantRaw    bool
	}{
		"sql agent failed": {
			sql:        failingAgent(a2a.TaskStateFailed, "relation \"users\" does not exist"),
			excel:      excelAgent([]byte("x")),
			wantStage:  workflow.StageQuery,
			wantError:  "relation \"users\" does not exist",
			wantExport: 0,
			wantRaw:    true,
		},
		"sql agent needs input": {
			sql:        failingAgent(a2a.TaskStateInputRequired, "please rephrase"),
			excel:      excelAgent([]byte("x")),
			wantStage:  workflow.StageQuery,
			wantError:  "input-required",
			wantExport: 0,
			wantRaw:    true,
		},
		"sql agent unreachable": {
			sql: &fakeAgent{fn: func(context.Context, *a2a.TaskSendParams) (*a2a.Task, error) {
				return nil, client.NewNetworkError("send request", errors.New("connection refused"))
			}},
			excel:      excelAgent([]byte("x")),
			wantStage:  workflow.StageQuery,
			wantError:  "connection refused",
			wantExport: 0,
		},
		"no result in artifacts": {
			sql: &fakeAgent{fn: func(_ context.Context, params *a2a.TaskSendParams) (*a2a.Task, error) {
				return completedTask(params, a2a.Artifact{Parts: a2a.Parts{&a2a.TextPart{Text: "hello"}}}), nil
			}},
			excel:      excelAgent([]byte("x")),
			wantStage:  workflow.StageExtract,
			wantError:  "sql_query",
			wantExport: 0,
			wantRaw:    true,
		},
		"excel agent failed": {
			sql:        sqlAgent(rows),
			excel:      failingAgent(a2a.TaskStateFailed, "disk full"),
			wantStage:  workflow.StageExport,
			wantError:  "disk full",
			wantExport: 1,
			wantRaw:    true,
		},
		"excel agent returned no file": {
			sql: sqlAgent(rows),
			excel: &fakeAgent{fn: func(_ context.Context, params *a2a.TaskSendParams) (*a2a.Task, error) {
				return completedTask(params, a2a.Artifact{Parts: a2a.Parts{&a2a.TextPart{Text: "done"}}}), nil
			}},
			wantStage:  workflow.StageExport,
			wantError:  "no file part",
			wantExport: 1,
			wantRaw:    true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			o := newOrchestrator(t, tt.sql, tt.excel)
			got := o.Process(context.Background(), "list all users", nil)

			if got.Success {
				t.Fatal("Process() succeeded, want failure")
			}
			if got.Stage != tt.wantStage {
				t.Errorf("stage = %s, want %s", got.Stage, tt.wantStage)
			}
			if !strings.Contains(got.Error, tt.wantError) {
				t.Errorf("error = %q, want it to contain %q", got.Error, tt.wantError)
			}
			if n := tt.excel.calls.Load(); n != tt.wantExport {
				t.Errorf("excel agent called %d times, want %d", n, tt.wantExport)
			}
			if (got.Raw != nil) != tt.wantRaw {
				t.Errorf("raw = %v, want present = %t", got.Raw, tt.wantRaw)
			}
			if got.SQLData != nil || got.ExcelFile != nil {
				t.Errorf("failed result carries data: %+v", got)
			}
		})
	}
}

func TestProcessStageTimeout(t *testing.T) {
	sql := &fakeAgent{fn: func(ctx context.Context, _ *a2a.TaskSendParams) (*a2a.Task, error) {
		<-ctx.Done()
		return nil, client.NewNetworkError("send request", ctx.Err())
	}}
	excel := excelAgent([]byte("x"))
	o := newOrchestrator(t, sql, excel, func(cfg *workflow.Config) { cfg.StageTimeout = 20 * time.Millisecond })

	got := o.Process(context.Background(), "slow question", nil)
	if got.Success {
		t.Fatal("Process() succeeded, want timeout")
	}
	if got.Stage != workflow.StageQuery {
		t.Errorf("stage = %s, want %s", got.Stage, workflow.StageQuery)
	}
	if !strings.Contains(got.Error, "timed out") {
		t.Errorf("error = %q, want a timeout", got.Error)
	}
	if excel.calls.Load() != 0 {
		t.Error("export ran after the query stage timed out")
	}
}

func TestNewRequiresAgents(t *testing.T) {
	if _, err := workflow.New(workflow.Config{ExcelAgent: excelAgent(nil)}); err == nil {
		t.Error("New() without sql agent succeeded")
	}
	if _, err := workflow.New(workflow.Config{SQLAgent: sqlAgent(nil)}); err == nil {
		t.Error("New() without excel agent succeeded")
	}
}
