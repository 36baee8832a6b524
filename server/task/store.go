// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package task holds the in-memory registry of tasks and their push-notification configuration.
package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-a2a/sqlexcel/a2a"
)

// record is one arena slot. Its lock serializes every mutation of the task it holds.
type record struct {
	mu   sync.Mutex
	task *a2a.Task
}

// Store is an in-memory arena of tasks keyed by id.
//
// The arena lock only guards the id index; each task has its own lock, so tasks with
// different ids are mutated independently. Callers never see the live task, only copies.
// Task data is lost when the process stops.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	now     func() time.Time
}

// StoreOption configures a [Store].
type StoreOption func(*Store)

// WithClock sets the clock used to stamp status changes.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty [Store].
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		records: make(map[string]*record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lookup(id string) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	return rec, ok
}

// Upsert creates the task named by params in the submitted state, or appends the
// params message to the history of the existing task. It reports whether the task
// was created. Appending to a task in a terminal state fails with [NotUpdatableError].
func (s *Store) Upsert(ctx context.Context, params *a2a.TaskSendParams) (*a2a.Task, bool, error) {
	if params.ID == "" {
		return nil, false, NewStoreError("upsert", "", errors.New("task ID cannot be empty"))
	}

	s.mu.Lock()
	rec, exists := s.records[params.ID]
	if !exists {
		rec = &record{
			task: &a2a.Task{
				ID:        params.ID,
				SessionID: params.SessionID,
				Status: a2a.TaskStatus{
					State:     a2a.TaskStateSubmitted,
					Timestamp: s.now(),
				},
				History:  []a2a.Message{params.Message},
				Metadata: params.Metadata,
			},
		}
		s.records[params.ID] = rec
		t := rec.task.Clone()
		s.mu.Unlock()

		return t, true, nil
	}
	s.mu.Unlock()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.task.Status.State.IsTerminal() {
		return nil, false, NewNotUpdatableError(params.ID, rec.task.Status.State)
	}
	rec.task.History = append(rec.task.History, params.Message)

	return rec.task.Clone(), false, nil
}

// Get returns a copy of the task with its history cut to the last historyLength
// entries. A historyLength of zero or less keeps the full history.
func (s *Store) Get(ctx context.Context, id string, historyLength int) (*a2a.Task, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return nil, NotFoundError{TaskID: id}
	}

	rec.mu.Lock()
	t := rec.task.Clone()
	rec.mu.Unlock()

	return TrimHistory(t, historyLength), nil
}

// Exists reports whether a task with the given id is registered.
func (s *Store) Exists(id string) bool {
	_, ok := s.lookup(id)
	return ok
}

// Len returns the number of registered tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// Update applies fn to the live task under its record lock and returns a copy of
// the result. fn must not retain the task.
func (s *Store) Update(ctx context.Context, id string, fn func(*a2a.Task) error) (*a2a.Task, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return nil, NotFoundError{TaskID: id}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := fn(rec.task); err != nil {
		return nil, err
	}
	return rec.task.Clone(), nil
}

// SetStatus moves the task to status, checking the state machine, appending the
// status message to the history and the artifacts to the task.
//
// A zero status timestamp is stamped with the store clock; timestamps never go
// backwards within one task.
func (s *Store) SetStatus(ctx context.Context, id string, status a2a.TaskStatus, artifacts ...a2a.Artifact) (*a2a.Task, error) {
	return s.Update(ctx, id, func(t *a2a.Task) error {
		from := t.Status.State
		if from.IsTerminal() {
			return NewNotUpdatableError(id, from)
		}
		if !a2a.CanTransition(from, status.State) {
			return NewInvalidTransitionError(id, from, status.State)
		}

		if status.Timestamp.IsZero() {
			status.Timestamp = s.now()
		}
		if status.Timestamp.Before(t.Status.Timestamp) {
			status.Timestamp = t.Status.Timestamp
		}
		t.Status = status
		if status.Message != nil {
			t.History = append(t.History, *status.Message)
		}
		t.Artifacts = append(t.Artifacts, artifacts...)

		return nil
	})
}

// TrimHistory cuts the history of t to its last n entries. n <= 0 keeps everything.
func TrimHistory(t *a2a.Task, n int) *a2a.Task {
	if n > 0 && len(t.History) > n {
		t.History = t.History[len(t.History)-n:]
	}
	return t
}
