// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

// TaskState represents the lifecycle state of a [Task].
type TaskState string

const (
	// TaskStateSubmitted is the initial state of a new task.
	TaskStateSubmitted TaskState = "submitted"

	// TaskStateWorking indicates the agent is processing the task.
	TaskStateWorking TaskState = "working"

	// TaskStateInputRequired indicates the agent needs more input before it can continue.
	TaskStateInputRequired TaskState = "input-required"

	// TaskStateCompleted indicates the task finished successfully.
	TaskStateCompleted TaskState = "completed"

	// TaskStateCanceled indicates the task was canceled.
	TaskStateCanceled TaskState = "canceled"

	// TaskStateFailed indicates the task finished with an error.
	TaskStateFailed TaskState = "failed"

	// TaskStateUnknown is reported for states this implementation does not recognize.
	TaskStateUnknown TaskState = "unknown"
)

// transitions lists, for each state, the states it may move to.
var transitions = map[TaskState][]TaskState{
	TaskStateSubmitted:     {TaskStateWorking, TaskStateFailed, TaskStateCanceled},
	TaskStateWorking:       {TaskStateWorking, TaskStateInputRequired, TaskStateCompleted, TaskStateFailed, TaskStateCanceled},
	TaskStateInputRequired: {TaskStateWorking, TaskStateFailed, TaskStateCanceled},
}

// IsTerminal reports whether no further transition is possible from s.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// IsFinal reports whether a stream of updates for a task ends at s.
//
// Streams end on terminal states and when the agent hands control back to the client.
func (s TaskState) IsFinal() bool {
	return s.IsTerminal() || s == TaskStateInputRequired
}

// CanTransition reports whether a task may move from state from to state to.
func CanTransition(from, to TaskState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
