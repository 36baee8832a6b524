// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the process configuration from defaults, an optional
// config file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the configuration shared by every sqlexcel process.
type Config struct {
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Database DatabaseConfig `mapstructure:"database"`
	API      APIConfig      `mapstructure:"api"`
	Agents   AgentsConfig   `mapstructure:"agents"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`

	// OutputDir is where generated workbooks are written.
	OutputDir string `mapstructure:"output_dir"`
}

// OpenAIConfig configures the chat completion backend.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// DatabaseConfig locates the database the SQL agent queries. URL wins over the
// individual PostgreSQL fields.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Name     string `mapstructure:"name"`
}

// DSN returns the connection string of the database.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgresql",
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.Name,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	return u.String()
}

// APIConfig configures the web front end listener.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the host:port the web front end listens on.
func (c APIConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// AgentsConfig locates the agents the workflow and the web front end talk to.
type AgentsConfig struct {
	SQLAgentURL   string `mapstructure:"sql_agent_url"`
	ExcelAgentURL string `mapstructure:"excel_agent_url"`
}

// WorkflowConfig tunes the SQL to Excel pipeline.
type WorkflowConfig struct {
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// setting is one configuration key with its default and environment variable.
type setting struct {
	key string
	env string
	def any
}

var settings = []setting{
	{"openai.api_key", "OPENAI_API_KEY", ""},
	{"openai.model", "OPENAI_MODEL", "gpt-4o-mini"},
	{"openai.base_url", "OPENAI_BASE_URL", "https://api.openai.com/v1"},
	{"database.url", "DATABASE_URL", ""},
	{"database.user", "POSTGRES_USER", "postgres"},
	{"database.password", "POSTGRES_PASSWORD", ""},
	{"database.host", "POSTGRES_HOST", "localhost"},
	{"database.port", "POSTGRES_PORT", "5432"},
	{"database.name", "POSTGRES_DB", "postgres"},
	{"api.host", "API_HOST", "0.0.0.0"},
	{"api.port", "API_PORT", 8000},
	{"agents.sql_agent_url", "SQL_AGENT_URL", "http://localhost:10000"},
	{"agents.excel_agent_url", "EXCEL_AGENT_URL", "http://localhost:10001"},
	{"workflow.stage_timeout", "WORKFLOW_STAGE_TIMEOUT", 2 * time.Minute},
	{"log.level", "LOG_LEVEL", "info"},
	{"log.format", "LOG_FORMAT", "text"},
	{"tracing.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", ""},
	{"tracing.insecure", "OTEL_EXPORTER_OTLP_INSECURE", false},
	{"tracing.sample_rate", "OTEL_TRACES_SAMPLER_ARG", 1.0},
	{"output_dir", "OUTPUT_DIR", "outputs"},
}

// New returns a [viper.Viper] with every default and environment binding installed.
func New() *viper.Viper {
	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		// BindEnv only fails without a key.
		_ = v.BindEnv(s.key, s.env)
	}
	return v
}

// Load reads the optional config file into v and decodes the result. Flags
// bound to v before the call take precedence over everything else.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration values no process can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn or error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}
	if c.Workflow.StageTimeout < 0 {
		errs = append(errs, errors.New("workflow.stage_timeout must not be negative"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate %v outside [0, 1]", c.Tracing.SampleRate))
	}
	return errors.Join(errs...)
}
