// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-a2a/sqlexcel/internal/config"
	"github.com/go-a2a/sqlexcel/internal/logging"
	"github.com/go-a2a/sqlexcel/internal/telemetry"
	"github.com/go-a2a/sqlexcel/llm"
)

// version is set at link time.
var version = "dev"

// app is the state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string

	// binds maps config keys to the flags of the command that sets them.
	binds map[*cobra.Command]map[string]string

	cfg      *config.Config
	logger   *slog.Logger
	tracing  *telemetry.TracerProvider
	registry *prometheus.Registry
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.New(), binds: make(map[*cobra.Command]map[string]string)}

	root := &cobra.Command{
		Use:           "sqlexcel",
		Short:         "Natural language to SQL to Excel, served by cooperating agents",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")
	flags.String("output-dir", "", "directory receiving generated workbooks")
	// BindPFlag only fails for a nil flag.
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = a.v.BindPFlag("output_dir", flags.Lookup("output-dir"))

	root.AddCommand(
		newSQLAgentCommand(a),
		newExcelAgentCommand(a),
		newRouteAgentCommand(a),
		newWebCommand(a),
		newWorkflowCommand(a),
		newVersionCommand(),
	)
	return root
}

// bind makes flag of cmd override key when cmd runs.
func (a *app) bind(cmd *cobra.Command, key, flag string) {
	if a.binds[cmd] == nil {
		a.binds[cmd] = make(map[string]string)
	}
	a.binds[cmd][key] = flag
}

func (a *app) init(cmd *cobra.Command) error {
	service := cmd.Name()
	if service == "version" {
		return nil
	}
	ctx := cmd.Context()
	for key, flag := range a.binds[cmd] {
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
		ServiceName:    "sqlexcel-" + service,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.cfg = cfg
	a.logger = logger
	a.tracing = tp
	a.registry = reg
	return nil
}

func (a *app) close() error {
	if a.tracing == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.tracing.Shutdown(ctx)
}

// completer returns the chat model client, or nil without an API key.
func (a *app) completer() llm.Completer {
	if a.cfg.OpenAI.APIKey == "" {
		return nil
	}
	return llm.NewOpenAIClient(a.cfg.OpenAI.APIKey,
		llm.WithModel(a.cfg.OpenAI.Model),
		llm.WithBaseURL(a.cfg.OpenAI.BaseURL),
		llm.WithLogger(a.logger),
	)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sqlexcel", version)
		},
	}
}
