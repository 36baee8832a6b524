// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"

	"github.com/go-a2a/sqlexcel/a2a"
)

// NotFoundError is returned when no task exists for an id.
type NotFoundError struct {
	TaskID string
}

// Error returns the error message.
func (e NotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.TaskID)
}

// NotUpdatableError represents an error when attempting to update a task in a terminal state.
type NotUpdatableError struct {
	TaskID string
	State  a2a.TaskState
}

// Error returns the error message.
func (e NotUpdatableError) Error() string {
	return fmt.Sprintf("task %s in state %s cannot be updated", e.TaskID, e.State)
}

// InvalidTransitionError is returned for a state change the task state machine does not allow.
type InvalidTransitionError struct {
	TaskID string
	From   a2a.TaskState
	To     a2a.TaskState
}

// Error returns the error message.
func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s cannot move from %s to %s", e.TaskID, e.From, e.To)
}

// StoreError represents an error from the task store.
type StoreError struct {
	Operation string
	TaskID    string
	Err       error
}

// Error returns the error message.
func (e StoreError) Error() string {
	return fmt.Sprintf("task store %s operation failed for task %s: %v", e.Operation, e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e StoreError) Unwrap() error {
	return e.Err
}

// NewNotUpdatableError creates a new NotUpdatableError.
func NewNotUpdatableError(taskID string, state a2a.TaskState) NotUpdatableError {
	return NotUpdatableError{
		TaskID: taskID,
		State:  state,
	}
}

// NewInvalidTransitionError creates a new InvalidTransitionError.
func NewInvalidTransitionError(taskID string, from, to a2a.TaskState) InvalidTransitionError {
	return InvalidTransitionError{
		TaskID: taskID,
		From:   from,
		To:     to,
	}
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation, taskID string, err error) StoreError {
	return StoreError{
		Operation: operation,
		TaskID:    taskID,
		Err:       err,
	}
}
