// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/go-a2a/sqlexcel/agent/excelagent"
	"github.com/go-a2a/sqlexcel/client"
	"github.com/go-a2a/sqlexcel/workflow"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func newWorkflowCommand(a *app) *cobra.Command {
	var (
		query     string
		style     string
		sheetName string
		discover  bool
	)
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Run one question through the SQL and Excel agents",
		Example: `  sqlexcel workflow --query "monthly revenue per region" --style professional
  sqlexcel workflow --query "users who signed up this week" --sheet-name Signups`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if query == "" {
				return errors.New("--query is required")
			}
			opts := map[string]any{}
			if style != "" {
				if !excelagent.StyleTemplate(style).Valid() {
					return fmt.Errorf("unknown style %q", style)
				}
				opts["style_template"] = style
			}
			if sheetName != "" {
				opts["sheet_name"] = sheetName
			}

			ctx := cmd.Context()
			var (
				orch *workflow.Orchestrator
				err  error
			)
			if discover {
				resolver := client.NewCardResolver(client.WithResolverLogger(a.logger))
				orch, err = workflow.Connect(ctx, resolver, a.cfg.Agents.SQLAgentURL, a.cfg.Agents.ExcelAgentURL, workflow.Config{
					StageTimeout: a.cfg.Workflow.StageTimeout,
					OutputDir:    a.cfg.OutputDir,
					Logger:       a.logger,
					Tracer:       a.tracing.Tracer(),
					Metrics:      workflow.MustNewMetrics(a.registry),
				}, a.clientOptions()...)
			} else {
				orch, err = a.orchestrator()
			}
			if err != nil {
				return err
			}

			res := orch.Process(ctx, query, opts)
			printResult(cmd.OutOrStdout(), res)
			if !res.Success {
				return fmt.Errorf("workflow failed in stage %s", res.Stage)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&query, "query", "q", "", "natural language question")
	flags.StringVar(&style, "style", "", "workbook style: default, professional, minimal or colorful")
	flags.StringVar(&sheetName, "sheet-name", "", "name of the data sheet")
	flags.BoolVar(&discover, "discover", true, "fetch and validate the agent cards before running")
	flags.String("sql-agent-url", "", "base URL of the SQL agent")
	flags.String("excel-agent-url", "", "base URL of the Excel agent")
	a.bind(cmd, "agents.sql_agent_url", "sql-agent-url")
	a.bind(cmd, "agents.excel_agent_url", "excel-agent-url")
	return cmd
}

func printResult(w io.Writer, res *workflow.Result) {
	if !res.Success {
		fmt.Fprintf(w, "%s %s\n", red("✗ failed in stage"), bold(res.Stage))
		fmt.Fprintf(w, "  %s\n", res.Error)
		return
	}
	fmt.Fprintln(w, green("✓ workflow completed"))
	fmt.Fprintf(w, "  %s %s\n", cyan("query:"), res.Query)
	if res.SQLData != nil {
		fmt.Fprintf(w, "  %s %s\n", cyan("sql:"), res.SQLData.SQLQuery)
		fmt.Fprintf(w, "  %s %d\n", cyan("rows:"), len(res.SQLData.Result))
	}
	if f := res.ExcelFile; f != nil {
		fmt.Fprintf(w, "  %s %s %s\n", cyan("file:"), f.Name, gray(fmt.Sprintf("(%d bytes)", f.Size)))
		if f.Path != "" {
			fmt.Fprintf(w, "  %s %s\n", cyan("saved to:"), f.Path)
		}
	}
	fmt.Fprintf(w, "  %s %s\n", gray("session:"), gray(res.SessionID))
}
