// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"github.com/go-a2a/sqlexcel/a2a"
)

// Agent is the domain logic behind a [TaskManager]. Invoke runs once per
// tasks/send call, after the task moved to working.
//
// A returned error fails the task with the error text as its status message.
// The context is canceled when the task is canceled.
type Agent interface {
	Invoke(ctx context.Context, params *a2a.TaskSendParams, u *Updater) (*Result, error)
}

// AgentFunc adapts a function to the [Agent] interface.
type AgentFunc func(ctx context.Context, params *a2a.TaskSendParams, u *Updater) (*Result, error)

// Invoke implements [Agent].
func (f AgentFunc) Invoke(ctx context.Context, params *a2a.TaskSendParams, u *Updater) (*Result, error) {
	return f(ctx, params, u)
}

// Result is the outcome of an [Agent] invocation.
type Result struct {
	// State is one of completed, input-required or failed. Empty means completed.
	State     a2a.TaskState
	Message   *a2a.Message
	Artifacts []a2a.Artifact
}

// Completed returns a completed [Result].
func Completed(msg *a2a.Message, artifacts ...a2a.Artifact) *Result {
	return &Result{State: a2a.TaskStateCompleted, Message: msg, Artifacts: artifacts}
}

// InputRequired returns a [Result] asking the client for more input.
func InputRequired(text string) *Result {
	return &Result{State: a2a.TaskStateInputRequired, Message: a2a.NewTextMessage(a2a.RoleAgent, text)}
}

// Failed returns a failed [Result] carrying text as the status message.
func Failed(text string) *Result {
	return &Result{State: a2a.TaskStateFailed, Message: a2a.NewTextMessage(a2a.RoleAgent, text)}
}

// status converts the result, or err, into the terminal status of the invocation.
func (r *Result) status(err error) (a2a.TaskStatus, []a2a.Artifact) {
	if err != nil {
		return a2a.TaskStatus{
			State:   a2a.TaskStateFailed,
			Message: a2a.NewTextMessage(a2a.RoleAgent, err.Error()),
		}, nil
	}
	if r == nil {
		return a2a.TaskStatus{State: a2a.TaskStateCompleted}, nil
	}

	switch r.State {
	case "":
		return a2a.TaskStatus{State: a2a.TaskStateCompleted, Message: r.Message}, r.Artifacts
	case a2a.TaskStateCompleted, a2a.TaskStateInputRequired, a2a.TaskStateFailed:
		return a2a.TaskStatus{State: r.State, Message: r.Message}, r.Artifacts
	default:
		return a2a.TaskStatus{
			State:   a2a.TaskStateFailed,
			Message: a2a.NewTextMessage(a2a.RoleAgent, "agent finished in unexpected state "+string(r.State)),
		}, nil
	}
}

// Updater lets an [Agent] publish intermediate progress of the task it runs.
type Updater struct {
	tm     *TaskManager
	taskID string
}

// TaskID returns the id of the task being processed.
func (u *Updater) TaskID() string {
	return u.taskID
}

// Working records a progress message while the task stays in the working state.
func (u *Updater) Working(ctx context.Context, text string) error {
	_, err := u.tm.transition(ctx, u.taskID, a2a.TaskStatus{
		State:   a2a.TaskStateWorking,
		Message: a2a.NewTextMessage(a2a.RoleAgent, text),
	}, nil)
	return err
}

// AddArtifact attaches an artifact to the task before it finishes.
func (u *Updater) AddArtifact(ctx context.Context, artifact a2a.Artifact) error {
	return u.tm.addArtifact(ctx, u.taskID, artifact)
}
