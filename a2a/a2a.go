// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package a2a provides the data model of the agent task protocol spoken between the
// router, the SQL agent and the Excel agent: tasks, messages, parts, artifacts, agent
// cards, push-notification configuration and the JSON-RPC envelopes that carry them.
package a2a

import (
	"time"
)

// Version is the current version of the protocol implementation.
const Version = "0.1.0"

// Well-known discovery paths.
const (
	// AgentCardWellKnownPath is where an agent publishes its [AgentCard].
	AgentCardWellKnownPath = "/.well-known/agent.json"

	// JWKSWellKnownPath is where an agent publishes the public keys it signs push notifications with.
	JWKSWellKnownPath = "/.well-known/jwks.json"
)

// Role represents the author of a [Message].
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TaskStatus is the current state of a task with an optional explanation.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Message is a single turn of communication between a user and an agent.
type Message struct {
	Role     Role           `json:"role"`
	Parts    Parts          `json:"parts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTextMessage returns a message with a single [TextPart].
func NewTextMessage(role Role, text string) *Message {
	return &Message{
		Role:  role,
		Parts: Parts{&TextPart{Text: text}},
	}
}

// Artifact is an output produced by a task.
type Artifact struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       Parts          `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Index       int            `json:"index"`
	Append      *bool          `json:"append,omitempty"`
	LastChunk   *bool          `json:"lastChunk,omitempty"`
}

// Task is a unit of work submitted to an agent.
type Task struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId,omitempty"`
	Status    TaskStatus     `json:"status"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	History   []Message      `json:"history,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of t.
//
// Part values are shared between the copy and t; parts are treated as immutable once
// attached to a message or artifact.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Status = t.Status.clone()
	if t.History != nil {
		c.History = make([]Message, len(t.History))
		for i, m := range t.History {
			c.History[i] = m.clone()
		}
	}
	if t.Artifacts != nil {
		c.Artifacts = make([]Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			a.Parts = append(Parts(nil), a.Parts...)
			a.Metadata = cloneMap(a.Metadata)
			c.Artifacts[i] = a
		}
	}
	c.Metadata = cloneMap(t.Metadata)
	return &c
}

func (s TaskStatus) clone() TaskStatus {
	if s.Message != nil {
		m := s.Message.clone()
		s.Message = &m
	}
	return s
}

func (m Message) clone() Message {
	m.Parts = append(Parts(nil), m.Parts...)
	m.Metadata = cloneMap(m.Metadata)
	return m
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// AuthenticationInfo describes how a push-notification receiver or an agent expects to be authenticated.
type AuthenticationInfo struct {
	Schemes     []string `json:"schemes"`
	Credentials string   `json:"credentials,omitempty"`
}

// PushNotificationConfig is the callback a client registers to receive task updates out of band.
type PushNotificationConfig struct {
	URL            string              `json:"url"`
	Token          string              `json:"token,omitempty"`
	Authentication *AuthenticationInfo `json:"authentication,omitempty"`
}

// TaskPushNotificationConfig associates a [PushNotificationConfig] with a task.
type TaskPushNotificationConfig struct {
	ID                     string                 `json:"id"`
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}

// TaskIDParams identifies a task.
type TaskIDParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskQueryParams identifies a task and how much of its history to return.
type TaskQueryParams struct {
	ID            string         `json:"id"`
	HistoryLength int            `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TaskSendParams is the payload of tasks/send and tasks/sendSubscribe.
type TaskSendParams struct {
	ID                  string                  `json:"id"`
	SessionID           string                  `json:"sessionId,omitempty"`
	Message             Message                 `json:"message"`
	AcceptedOutputModes []string                `json:"acceptedOutputModes,omitempty"`
	PushNotification    *PushNotificationConfig `json:"pushNotification,omitempty"`
	HistoryLength       int                     `json:"historyLength,omitempty"`
	Metadata            map[string]any          `json:"metadata,omitempty"`
}

// AgentProvider identifies the organization operating an agent.
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url,omitempty"`
}

// AgentCapabilities declares the optional protocol features an agent supports.
type AgentCapabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// AgentAuthentication describes how clients authenticate against an agent.
type AgentAuthentication struct {
	Schemes     []string `json:"schemes"`
	Credentials string   `json:"credentials,omitempty"`
}

// AgentSkill is a unit of capability an agent can perform.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// AgentCard is the static descriptor an agent publishes at [AgentCardWellKnownPath].
type AgentCard struct {
	Name               string               `json:"name"`
	Description        string               `json:"description,omitempty"`
	URL                string               `json:"url"`
	Provider           *AgentProvider       `json:"provider,omitempty"`
	Version            string               `json:"version"`
	DocumentationURL   string               `json:"documentationUrl,omitempty"`
	Capabilities       AgentCapabilities    `json:"capabilities"`
	Authentication     *AgentAuthentication `json:"authentication,omitempty"`
	DefaultInputModes  []string             `json:"defaultInputModes"`
	DefaultOutputModes []string             `json:"defaultOutputModes"`
	Skills             []AgentSkill         `json:"skills"`
}

// AreModalitiesCompatible reports whether a client accepting the accepted output modes can
// be served by an agent producing the supported content types.
//
// An empty list on either side means "anything" and is always compatible.
func AreModalitiesCompatible(accepted, supported []string) bool {
	if len(accepted) == 0 || len(supported) == 0 {
		return true
	}
	for _, a := range accepted {
		for _, s := range supported {
			if a == s {
				return true
			}
		}
	}
	return false
}
