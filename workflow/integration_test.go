// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package workflow_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xuri/excelize/v2"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/agent/excelagent"
	"github.com/go-a2a/sqlexcel/agent/sqlagent"
	"github.com/go-a2a/sqlexcel/client"
	"github.com/go-a2a/sqlexcel/server"
	"github.com/go-a2a/sqlexcel/workflow"
)

// serveAgent starts agent behind an HTTP server whose card points back at it.
func serveAgent(t *testing.T, card func(url string) *a2a.AgentCard, agent server.Agent, modes []string) string {
	t.Helper()
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	tm, err := server.NewTaskManager(server.TaskManagerConfig{
		Agent:                 agent,
		SupportedContentTypes: modes,
		Logger:                discard,
		Metrics:               server.MustNewMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("NewTaskManager failed: %v", err)
	}
	c := card(ts.URL + "/")
	c.Capabilities.PushNotifications = false
	srv, err := server.NewServer(c, tm, server.WithLogger(discard))
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	mux.Handle("/", srv)
	return ts.URL
}

func TestProcessOverHTTP(t *testing.T) {
	db, err := sqlagent.Open(filepath.Join(t.TempDir(), "shop.db"), discard)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	for _, stmt := range []string{
		"CREATE TABLE products (id INTEGER PRIMARY KEY, title TEXT NOT NULL, price REAL)",
		"INSERT INTO products (id, title, price) VALUES (1, 'lamp', 19.5), (2, 'desk', 120), (3, 'chair', 45)",
	} {
		if err := db.DB().Exec(stmt).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	tests := map[string]struct {
		sql      string
		wantRows [][]string
	}{
		"rows": {
			sql: "SELECT title, price FROM products ORDER BY id",
			wantRows: [][]string{
				{"title", "price"},
				{"lamp", "19.5"},
				{"desk", "120"},
				{"chair", "45"},
			},
		},
		"no rows": {
			sql:      "SELECT title FROM products WHERE price > 1000",
			wantRows: [][]string{{excelagent.PlaceholderColumn}, {excelagent.PlaceholderValue}},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			translator := sqlagent.TranslatorFunc(func(context.Context, string, string) (string, error) {
				return tt.sql, nil
			})
			sqlURL := serveAgent(t, sqlagent.Card, sqlagent.NewAgent(db, translator, discard), sqlagent.SupportedContentTypes)
			excelURL := serveAgent(t, excelagent.Card, excelagent.NewAgent(excelagent.WithLogger(discard)), excelagent.SupportedContentTypes)

			ctx := context.Background()
			o, err := workflow.Connect(ctx, client.NewCardResolver(), sqlURL, excelURL, workflow.Config{
				Logger:  discard,
				Metrics: workflow.MustNewMetrics(prometheus.NewRegistry()),
			}, client.WithLogger(discard))
			if err != nil {
				t.Fatalf("Connect failed: %v", err)
			}

			res := o.Process(ctx, "list the products", nil)
			if !res.Success {
				t.Fatalf("Process() failed in stage %s: %s", res.Stage, res.Error)
			}
			if res.SQLData.SQLQuery != tt.sql {
				t.Errorf("sql = %q, want %q", res.SQLData.SQLQuery, tt.sql)
			}
			if res.ExcelFile.MimeType != excelagent.MimeType || res.ExcelFile.Size == 0 {
				t.Errorf("excel file = %+v", res.ExcelFile)
			}

			f, err := excelize.OpenReader(bytes.NewReader(res.ExcelFile.Content))
			if err != nil {
				t.Fatalf("OpenReader failed: %v", err)
			}
			defer f.Close()
			rows, err := f.GetRows("Data")
			if err != nil {
				t.Fatalf("GetRows failed: %v", err)
			}
			if diff := cmp.Diff(tt.wantRows, rows); diff != "" {
				t.Errorf("data sheet mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
