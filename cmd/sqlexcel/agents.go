// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/go-a2a/sqlexcel/agent/excelagent"
	"github.com/go-a2a/sqlexcel/agent/router"
	"github.com/go-a2a/sqlexcel/agent/sqlagent"
)

func newSQLAgentCommand(a *app) *cobra.Command {
	lf := listenFlags{}
	cmd := &cobra.Command{
		Use:   "sql-agent",
		Short: "Serve the agent turning questions into SQL query results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := sqlagent.Open(a.cfg.Database.DSN(), a.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			var translator sqlagent.Translator = sqlagent.PassthroughTranslator{}
			if c := a.completer(); c != nil {
				translator = sqlagent.NewLLMTranslator(c, db.Dialect())
			} else {
				a.logger.WarnContext(ctx, "no OpenAI API key configured, questions must be written as SQL")
			}
			agent := sqlagent.NewAgent(db, translator, a.logger)
			return a.serveAgent(ctx, lf, sqlagent.Card, agent, sqlagent.SupportedContentTypes)
		},
	}
	cmd.Flags().StringVar(&lf.host, "host", "localhost", "listen host")
	cmd.Flags().IntVar(&lf.port, "port", sqlagent.DefaultPort, "listen port")
	cmd.Flags().String("database-url", "", "database connection string, postgres URL or sqlite path")
	a.bind(cmd, "database.url", "database-url")
	return cmd
}

func newExcelAgentCommand(a *app) *cobra.Command {
	lf := listenFlags{}
	var keep bool
	cmd := &cobra.Command{
		Use:   "excel-agent",
		Short: "Serve the agent exporting query results to Excel workbooks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []excelagent.Option{excelagent.WithLogger(a.logger)}
			if keep {
				opts = append(opts, excelagent.WithOutputDir(a.cfg.OutputDir))
			}
			agent := excelagent.NewAgent(opts...)
			return a.serveAgent(cmd.Context(), lf, excelagent.Card, agent, excelagent.SupportedContentTypes)
		},
	}
	cmd.Flags().StringVar(&lf.host, "host", "localhost", "listen host")
	cmd.Flags().IntVar(&lf.port, "port", excelagent.DefaultPort, "listen port")
	cmd.Flags().BoolVar(&keep, "keep-files", false, "keep a copy of every workbook under <output-dir>/excel")
	return cmd
}

func newRouteAgentCommand(a *app) *cobra.Command {
	lf := listenFlags{}
	cmd := &cobra.Command{
		Use:   "route-agent",
		Short: "Serve the agent deciding which agent handles a query",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.completer()
			if c == nil {
				return errors.New("the route agent needs openai.api_key (OPENAI_API_KEY)")
			}
			agent := router.NewAgent(c, a.logger)
			return a.serveAgent(cmd.Context(), lf, router.Card, agent, router.SupportedContentTypes)
		},
	}
	cmd.Flags().StringVar(&lf.host, "host", "localhost", "listen host")
	cmd.Flags().IntVar(&lf.port, "port", router.DefaultPort, "listen port")
	return cmd
}
