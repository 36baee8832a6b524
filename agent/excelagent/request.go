// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package excelagent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"

	"github.com/go-a2a/sqlexcel/a2a"
)

var errEmptyRequest = errors.New("message carries no export request")

// ParseRequest reads an export request from message parts. Data parts and text
// parts holding a JSON object both contribute keys, later parts overriding
// earlier ones. Text that is not JSON is taken as the natural language query.
func ParseRequest(parts a2a.Parts) (*Request, error) {
	merged := make(map[string]any)
	var plain []string
	for _, part := range parts {
		switch p := part.(type) {
		case *a2a.DataPart:
			for k, v := range p.Data {
				merged[k] = v
			}
		case *a2a.TextPart:
			text := strings.TrimSpace(p.Text)
			if text == "" {
				continue
			}
			var obj map[string]any
			if err := json.Unmarshal([]byte(text), &obj); err != nil {
				plain = append(plain, text)
				continue
			}
			for k, v := range obj {
				merged[k] = v
			}
		case *a2a.FilePart:
		}
	}
	if len(merged) == 0 && len(plain) == 0 {
		return nil, errEmptyRequest
	}

	req := &Request{}
	if len(plain) > 0 {
		req.Query = strings.Join(plain, "\n")
	}
	if q, ok := merged["query"].(string); ok && q != "" {
		req.Query = q
	}
	if s, ok := merged["sql_query"].(string); ok {
		req.SQLQuery = s
	}

	rows, err := rowsOf(merged["result"])
	if err != nil {
		return nil, err
	}
	req.Result = rows

	switch cols := merged["columns"].(type) {
	case []string:
		req.Columns = cols
	case []any:
		for _, c := range cols {
			if s, ok := c.(string); ok {
				req.Columns = append(req.Columns, s)
			}
		}
	}

	var rawOpts map[string]any
	if v, ok := merged["format_options"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("format_options is %T, want object", v)
		}
		rawOpts = m
	}
	req.FormatOptions, err = ParseFormatOptions(rawOpts)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func rowsOf(v any) ([]map[string]any, error) {
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
