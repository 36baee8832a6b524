// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// StreamEvent is one update delivered to a subscriber of a task:
// a [*TaskStatusUpdateEvent] or a [*TaskArtifactUpdateEvent].
type StreamEvent interface {
	// TaskID returns the id of the task the event belongs to.
	TaskID() string
	// IsFinal reports whether the event is the last one of its stream.
	IsFinal() bool
	isStreamEvent()
}

// TaskStatusUpdateEvent reports a status transition.
type TaskStatusUpdateEvent struct {
	ID       string         `json:"id"`
	Status   TaskStatus     `json:"status"`
	Final    bool           `json:"final"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskArtifactUpdateEvent reports an artifact produced by a task.
type TaskArtifactUpdateEvent struct {
	ID       string         `json:"id"`
	Artifact Artifact       `json:"artifact"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

var (
	_ StreamEvent = (*TaskStatusUpdateEvent)(nil)
	_ StreamEvent = (*TaskArtifactUpdateEvent)(nil)
)

func (e *TaskStatusUpdateEvent) TaskID() string   { return e.ID }
func (e *TaskArtifactUpdateEvent) TaskID() string { return e.ID }

func (e *TaskStatusUpdateEvent) IsFinal() bool   { return e.Final }
func (e *TaskArtifactUpdateEvent) IsFinal() bool { return false }

func (*TaskStatusUpdateEvent) isStreamEvent()   {}
func (*TaskArtifactUpdateEvent) isStreamEvent() {}

// UnmarshalStreamEvent decodes a stream event, telling the variants apart by the
// presence of the "status" or "artifact" member.
func UnmarshalStreamEvent(data []byte) (StreamEvent, error) {
	var head struct {
		Status   jsontext.Value `json:"status"`
		Artifact jsontext.Value `json:"artifact"`
	}
	if err := json.Unmarshal(data, &head, json.RejectUnknownMembers(false)); err != nil {
		return nil, err
	}

	switch {
	case len(head.Status) > 0:
		var ev TaskStatusUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	case len(head.Artifact) > 0:
		var ev TaskArtifactUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	default:
		return nil, errors.New("stream event has neither status nor artifact")
	}
}
