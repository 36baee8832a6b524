// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/agent/excelagent"
	"github.com/go-a2a/sqlexcel/client"
	"github.com/go-a2a/sqlexcel/workflow"
)

type errorResponse struct {
	Error string `json:"error"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// QueryResponse is the answer of POST /api/query.
type QueryResponse struct {
	Success   bool             `json:"success"`
	TaskID    string           `json:"task_id"`
	SessionID string           `json:"session_id"`
	State     a2a.TaskState    `json:"state"`
	Query     string           `json:"query"`
	SQLQuery  string           `json:"sql_query,omitempty"`
	Results   []map[string]any `json:"results"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// WorkflowRequest is the body of POST /api/workflow.
type WorkflowRequest struct {
	Query         string         `json:"query"`
	FormatOptions map[string]any `json:"format_options"`
}

// DownloadRequest is the body of POST /api/download.
type DownloadRequest struct {
	Results []map[string]any `json:"results"`
	Columns []string         `json:"columns"`
}

// DownloadSheet names the sheet of workbooks served by /api/download.
const DownloadSheet = "Results"

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	task, err := s.sqlAgent.SendTask(c.Request.Context(), &a2a.TaskSendParams{
		ID:                  uuid.NewString(),
		SessionID:           req.SessionID,
		Message:             *a2a.NewTextMessage(a2a.RoleUser, req.Query),
		AcceptedOutputModes: workflow.QueryOutputModes,
	})
	if err != nil {
		_ = c.Error(err)
		status := http.StatusInternalServerError
		var clientErr client.ClientError
		if errors.As(err, &clientErr) {
			status = http.StatusBadGateway
		}
		c.JSON(status, errorResponse{Error: err.Error()})
		return
	}

	resp := QueryResponse{
		TaskID:    task.ID,
		SessionID: task.SessionID,
		State:     task.Status.State,
		Query:     req.Query,
		Results:   []map[string]any{},
	}
	if resp.SessionID == "" {
		resp.SessionID = req.SessionID
	}
	if task.Status.Message != nil {
		resp.Message = task.Status.Message.Parts.Text()
	}
	if task.Status.State == a2a.TaskStateCompleted {
		qr, err := workflow.ExtractQueryResult(task)
		if err != nil {
			_ = c.Error(err)
			resp.Message = err.Error()
			c.JSON(http.StatusBadGateway, resp)
			return
		}
		resp.Success = true
		resp.SQLQuery = qr.SQLQuery
		resp.Results = qr.Result
		resp.Metadata = qr.Metadata
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleWorkflow(c *gin.Context) {
	if s.workflow == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "workflow is not configured"})
		return
	}
	var req WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	res := s.workflow.Process(c.Request.Context(), req.Query, req.FormatOptions)
	if !res.Success {
		_ = c.Error(fmt.Errorf("stage %s: %s", res.Stage, res.Error))
		c.JSON(http.StatusBadGateway, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleDownload(c *gin.Context) {
	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if len(req.Results) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "No results to download"})
		return
	}

	opts := excelagent.DefaultFormatOptions()
	opts.SheetName = DownloadSheet
	opts.IncludeMetadata = false
	now := s.now()
	data, err := excelagent.BuildWorkbook(&excelagent.Request{
		Result:        req.Results,
		Columns:       req.Columns,
		FormatOptions: opts,
	}, now)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	name := "sql_results_" + now.Format("20060102_150405") + ".xlsx"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, excelagent.MimeType, data)
}
