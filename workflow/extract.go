// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"

	"github.com/go-a2a/sqlexcel/a2a"
)

// QueryResult is the outcome of a SQL agent task.
type QueryResult struct {
	Query    string           `json:"query"`
	SQLQuery string           `json:"sql_query"`
	Result   []map[string]any `json:"result"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// ExcelFile describes the workbook returned by the Excel agent.
type ExcelFile struct {
	Name        string         `json:"name"`
	MimeType    string         `json:"mime_type"`
	Size        int            `json:"size"`
	HasContent  bool           `json:"has_content"`
	URI         string         `json:"uri,omitempty"`
	Path        string         `json:"path,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Content holds the decoded inline bytes of the file.
	Content []byte `json:"-"`
}

var (
	errNoArtifacts = errors.New("task has no artifacts")
	errNoResult    = errors.New("no part carries sql_query and result")
	errNoFile      = errors.New("no file part in task artifacts")
)

// ExtractQueryResult finds the SQL query and its rows in the artifacts of a
// completed SQL agent task. A data part wins over a text part holding the same
// object as JSON. The first non-JSON text, or else the status message, becomes
// the natural language query.
func ExtractQueryResult(task *a2a.Task) (*QueryResult, error) {
	if task == nil || len(task.Artifacts) == 0 {
		return nil, errNoArtifacts
	}

	var fromData, fromText *QueryResult
	var query string
	for _, artifact := range task.Artifacts {
		for _, part := range artifact.Parts {
			switch p := part.(type) {
			case *a2a.DataPart:
				if fromData == nil {
					qr, err := queryResultFrom(p.Data)
					if err != nil {
						return nil, fmt.Errorf("artifact %q: %w", artifact.Name, err)
					}
					fromData = qr
				}
			case *a2a.TextPart:
				var obj map[string]any
				if err := json.Unmarshal([]byte(p.Text), &obj); err != nil {
					if query == "" {
						query = p.Text
					}
					continue
				}
				if fromText == nil {
					qr, err := queryResultFrom(obj)
					if err != nil {
						return nil, fmt.Errorf("artifact %q: %w", artifact.Name, err)
					}
					fromText = qr
				}
			case *a2a.FilePart:
			}
		}
	}

	qr := fromData
	if qr == nil {
		qr = fromText
	}
	if qr == nil {
		return nil, errNoResult
	}
	if query == "" && task.Status.Message != nil {
		query = task.Status.Message.Parts.Text()
	}
	qr.Query = query
	return qr, nil
}

// queryResultFrom returns nil, nil when obj does not look like a query result.
func queryResultFrom(obj map[string]any) (*QueryResult, error) {
	rawSQL, ok := obj["sql_query"]
	if !ok {
		return nil, nil
	}
	rawRows, ok := obj["result"]
	if !ok {
		return nil, nil
	}
	sql, ok := rawSQL.(string)
	if !ok {
		return nil, fmt.Errorf("sql_query is %T, want string", rawSQL)
	}
	rows, err := toRows(rawRows)
	if err != nil {
		return nil, err
	}
	qr := &QueryResult{SQLQuery: sql, Result: rows}
	if md, ok := obj["metadata"].(map[string]any); ok {
		qr.Metadata = md
	}
	return qr, nil
}

func toRows(v any) ([]map[string]any, error) {
	switch rows := v.(type) {
	case nil:
		return []map[string]any{}, nil
	case []map[string]any:
		return rows, nil
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for i, r := range rows {
			row, ok := r.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("result[%d] is %T, want object", i, r)
			}
			out = append(out, row)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("result is %T, want array", v)
	}
}

// ExtractExcelFile returns the first file part of the artifacts of a completed
// Excel agent task. Text parts of the artifacts become the description.
func ExtractExcelFile(task *a2a.Task) (*ExcelFile, error) {
	if task == nil || len(task.Artifacts) == 0 {
		return nil, errNoArtifacts
	}

	var file *ExcelFile
	var description string
	for _, artifact := range task.Artifacts {
		for _, part := range artifact.Parts {
			switch p := part.(type) {
			case *a2a.FilePart:
				if file != nil {
					continue
				}
				f, err := excelFileFrom(p)
				if err != nil {
					return nil, err
				}
				file = f
			case *a2a.TextPart:
				if description == "" {
					description = p.Text
				}
			case *a2a.DataPart:
			}
		}
	}
	if file == nil {
		return nil, errNoFile
	}
	file.Description = description
	return file, nil
}

func excelFileFrom(p *a2a.FilePart) (*ExcelFile, error) {
	if err := p.File.Validate(); err != nil {
		return nil, fmt.Errorf("file %q: %w", p.File.Name, err)
	}
	f := &ExcelFile{
		Name:     p.File.Name,
		MimeType: p.File.MimeType,
		URI:      p.File.URI,
		Metadata: p.Metadata,
	}
	if p.File.URI != "" {
		switch size := p.Metadata["size"].(type) {
		case float64:
			f.Size = int(size)
		case int:
			f.Size = size
		}
		return f, nil
	}
	content, err := p.File.Decode()
	if err != nil {
		return nil, err
	}
	f.Content = content
	f.Size = len(content)
	f.HasContent = true
	return f, nil
}
