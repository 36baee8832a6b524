// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"

	"github.com/go-a2a/sqlexcel/client"
	"github.com/go-a2a/sqlexcel/internal/telemetry"
	"github.com/go-a2a/sqlexcel/web"
	"github.com/go-a2a/sqlexcel/workflow"
)

func newWebCommand(a *app) *cobra.Command {
	var origins []string
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the HTTP API in front of the agents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			orch, err := a.orchestrator()
			if err != nil {
				return err
			}
			sqlClient, err := client.New(a.cfg.Agents.SQLAgentURL, a.clientOptions()...)
			if err != nil {
				return err
			}
			srv, err := web.NewServer(web.Config{
				SQLAgent:       sqlClient,
				Workflow:       orch,
				MetricsHandler: telemetry.Handler(a.registry),
				AllowOrigins:   origins,
				Debug:          a.cfg.Log.Level == "debug",
				Logger:         a.logger,
			})
			if err != nil {
				return err
			}
			return serveHTTP(cmd.Context(), a.logger, a.cfg.API.Addr(), srv)
		},
	}
	flags := cmd.Flags()
	flags.String("host", "", "listen host")
	flags.Int("port", 0, "listen port")
	flags.String("sql-agent-url", "", "base URL of the SQL agent")
	flags.String("excel-agent-url", "", "base URL of the Excel agent")
	flags.StringSliceVar(&origins, "allow-origin", nil, "allowed CORS origin, repeatable; all origins when unset")
	a.bind(cmd, "api.host", "host")
	a.bind(cmd, "api.port", "port")
	a.bind(cmd, "agents.sql_agent_url", "sql-agent-url")
	a.bind(cmd, "agents.excel_agent_url", "excel-agent-url")
	return cmd
}

func (a *app) clientOptions() []client.Option {
	return []client.Option{
		client.WithLogger(a.logger),
		client.WithTracer(a.tracing.Tracer()),
		client.WithInterceptors(client.UserAgentInterceptor("sqlexcel/"+version)),
		client.WithRetryPolicy(client.DefaultRetryPolicy()),
	}
}

// orchestrator connects to the agents lazily: their cards are not fetched
// up front, so the agents may start after the caller.
func (a *app) orchestrator() (*workflow.Orchestrator, error) {
	sqlClient, err := client.New(a.cfg.Agents.SQLAgentURL, a.clientOptions()...)
	if err != nil {
		return nil, err
	}
	excelClient, err := client.New(a.cfg.Agents.ExcelAgentURL, a.clientOptions()...)
	if err != nil {
		return nil, err
	}
	return workflow.New(workflow.Config{
		SQLAgent:     sqlClient,
		ExcelAgent:   excelClient,
		StageTimeout: a.cfg.Workflow.StageTimeout,
		OutputDir:    a.cfg.OutputDir,
		Logger:       a.logger,
		Tracer:       a.tracing.Tracer(),
		Metrics:      workflow.MustNewMetrics(a.registry),
	})
}
