// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"sync"

	"github.com/go-a2a/sqlexcel/a2a"
)

// PushNotificationConfigStore stores at most one push notification configuration per task.
type PushNotificationConfigStore interface {
	// GetConfig retrieves the configuration of a task.
	// Returns NotFoundError if the task has none.
	GetConfig(ctx context.Context, taskID string) (*a2a.PushNotificationConfig, error)

	// SaveConfig saves the configuration of a task, replacing any previous one.
	SaveConfig(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) error

	// DeleteConfig removes the configuration of a task. Deleting a missing configuration is not an error.
	DeleteConfig(ctx context.Context, taskID string) error

	// ExistsConfig reports whether a configuration exists for a task.
	ExistsConfig(ctx context.Context, taskID string) bool
}

// InMemoryPushNotificationConfigStore is an in-memory implementation of PushNotificationConfigStore.
// All operations are safe for concurrent use.
type InMemoryPushNotificationConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*a2a.PushNotificationConfig
}

var _ PushNotificationConfigStore = (*InMemoryPushNotificationConfigStore)(nil)

// NewInMemoryPushNotificationConfigStore creates a new in-memory push notification config store.
func NewInMemoryPushNotificationConfigStore() *InMemoryPushNotificationConfigStore {
	return &InMemoryPushNotificationConfigStore{
		configs: make(map[string]*a2a.PushNotificationConfig),
	}
}

// GetConfig retrieves a push notification configuration by task ID.
func (s *InMemoryPushNotificationConfigStore) GetConfig(ctx context.Context, taskID string) (*a2a.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	config, exists := s.configs[taskID]
	if !exists {
		return nil, NotFoundError{TaskID: taskID}
	}
	return copyConfig(config), nil
}

// SaveConfig saves a push notification configuration for a task.
func (s *InMemoryPushNotificationConfigStore) SaveConfig(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) error {
	if taskID == "" {
		return NewStoreError("save push config", taskID, errors.New("task ID cannot be empty"))
	}
	if config == nil || config.URL == "" {
		return NewStoreError("save push config", taskID, errors.New("push notification URL is missing"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[taskID] = copyConfig(config)
	return nil
}

// DeleteConfig removes a push notification configuration for a task.
func (s *InMemoryPushNotificationConfigStore) DeleteConfig(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.configs, taskID)
	return nil
}

// ExistsConfig checks if a push notification configuration exists for a task.
func (s *InMemoryPushNotificationConfigStore) ExistsConfig(ctx context.Context, taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.configs[taskID]
	return exists
}

func copyConfig(config *a2a.PushNotificationConfig) *a2a.PushNotificationConfig {
	c := *config
	if config.Authentication != nil {
		auth := *config.Authentication
		auth.Schemes = append([]string(nil), config.Authentication.Schemes...)
		c.Authentication = &auth
	}
	return &c
}
