// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package router decides which specialised agent should handle a query.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-json-experiment/json"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/llm"
	"github.com/go-a2a/sqlexcel/server"
)

// SupportedContentTypes are the input and output modes of the route agent.
var SupportedContentTypes = []string{"text", "text/plain"}

// MsgRouting is published while the model is consulted.
const MsgRouting = "routing"

// ArtifactName names the artifact holding the decision.
const ArtifactName = "Route Decision"

const systemPrompt = `You are the routing agent of a text-to-SQL pipeline.
Analyze the user's query, decide which specialised agent should handle it next,
and return your decision as valid JSON with no other text.

Your responsibilities:
1. Understand exactly what data the user is requesting.
2. Plan how the SQL query is written and its result converted to Excel.
3. Pick the most appropriate agent and give it clear instructions.
4. Recognise requests that cannot be served.

Answer in the language the user writes in.

JSON fields:
` + "```json" + `
{
    "next_agent": "sql_agent | excel_agent | <other>",
    "query_analysis": "string",
    "execution_plan": "string (optional)",
    "metadata": {"key": "value"}
}
` + "```"

// Agent implements [server.Agent] by asking a chat model for a [Decision].
type Agent struct {
	completer llm.Completer
	logger    *slog.Logger
}

var _ server.Agent = (*Agent)(nil)

// NewAgent returns a route agent backed by completer.
func NewAgent(completer llm.Completer, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{completer: completer, logger: logger}
}

// Route asks the model where query should go. state describes the pipeline so
// far and may be nil.
func (a *Agent) Route(ctx context.Context, query string, state map[string]any) (*Decision, error) {
	if state == nil {
		state = map[string]any{}
	}
	stateJSON, err := json.Marshal(state, json.Deterministic(true))
	if err != nil {
		return nil, fmt.Errorf("encode routing state: %w", err)
	}
	resp, err := a.completer.Complete(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("User query: %s\n\nCurrent state json: %s", query, stateJSON)},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("route query: %w", err)
	}
	d, err := ParseDecision(resp.Content)
	if errors.Is(err, ErrNoDecision) {
		a.logger.WarnContext(ctx, "unparseable routing reply", "reply", resp.Content)
		return d, nil
	}
	return d, err
}

// Invoke implements [server.Agent]. The routing state is read from the
// "state" key of the task metadata.
func (a *Agent) Invoke(ctx context.Context, params *a2a.TaskSendParams, u *server.Updater) (*server.Result, error) {
	query := strings.TrimSpace(params.Message.Parts.Text())
	if query == "" {
		return server.InputRequired("Please describe what you want to do."), nil
	}
	if err := u.Working(ctx, MsgRouting); err != nil {
		return nil, err
	}

	state, _ := params.Metadata["state"].(map[string]any)
	d, err := a.Route(ctx, query, state)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "query routed", "task_id", u.TaskID(), "next_agent", d.NextAgent)

	artifact, text, err := DecisionArtifact(d)
	if err != nil {
		return nil, err
	}
	return server.Completed(a2a.NewTextMessage(a2a.RoleAgent, text), artifact), nil
}

// DecisionArtifact packs d into an artifact with a "route_decision" text part
// and a data part. It also returns the text.
func DecisionArtifact(d *Decision) (a2a.Artifact, string, error) {
	raw, err := json.Marshal(d, json.Deterministic(true))
	if err != nil {
		return a2a.Artifact{}, "", fmt.Errorf("encode decision: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return a2a.Artifact{}, "", fmt.Errorf("encode decision: %w", err)
	}
	text := fmt.Sprintf("route_decision: %s\nmetadata: %s", d.NextAgent, raw)
	return a2a.Artifact{
		Name: ArtifactName,
		Parts: a2a.Parts{
			&a2a.TextPart{Text: text},
			&a2a.DataPart{Data: data},
		},
	}, text, nil
}
