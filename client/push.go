// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/go-a2a/sqlexcel/a2a"
	"github.com/go-a2a/sqlexcel/push"
)

// PushHandler handles the task carried by a verified push notification.
type PushHandler func(ctx context.Context, task *a2a.Task) error

// PushServer receives push notifications from agents and dispatches them to the
// handler registered for their task.
type PushServer struct {
	receiver *push.Receiver
	logger   *slog.Logger
	server   *http.Server

	mu       sync.RWMutex
	handlers map[string]PushHandler
}

// NewPushServer creates a push notification server listening on addr. Notifications
// are verified by receiver before they are dispatched.
func NewPushServer(addr string, receiver *push.Receiver, logger *slog.Logger) *PushServer {
	if logger == nil {
		logger = slog.Default()
	}
	ps := &PushServer{
		receiver: receiver,
		logger:   logger,
		handlers: make(map[string]PushHandler),
	}
	ps.server = &http.Server{
		Addr:              addr,
		Handler:           ps.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ps
}

// RegisterHandler registers a handler for a specific task ID.
func (ps *PushServer) RegisterHandler(taskID string, handler PushHandler) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.handlers[taskID] = handler
}

// UnregisterHandler removes a handler for a specific task ID.
func (ps *PushServer) UnregisterHandler(taskID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.handlers, taskID)
}

// Handler returns the HTTP handler answering validation challenges and notifications.
func (ps *PushServer) Handler() http.Handler {
	return ps.receiver.Handler(ps.deliver)
}

// Start starts the push notification server.
func (ps *PushServer) Start() error {
	if err := ps.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the push notification server.
func (ps *PushServer) Shutdown(ctx context.Context) error {
	return ps.server.Shutdown(ctx)
}

func (ps *PushServer) deliver(ctx context.Context, body []byte) error {
	var task a2a.Task
	if err := json.Unmarshal(body, &task); err != nil {
		return err
	}

	ps.mu.RLock()
	handler, ok := ps.handlers[task.ID]
	ps.mu.RUnlock()
	if !ok {
		ps.logger.DebugContext(ctx, "push notification for unknown task", "task_id", task.ID, "state", task.Status.State)
		return nil
	}
	return handler(ctx, &task)
}
