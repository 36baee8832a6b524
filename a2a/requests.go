// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"

	"github.com/go-json-experiment/json"
)

// RPC method names
const (
	// MethodTasksSend is the method name for sending a task.
	MethodTasksSend = "tasks/send"
	// MethodTasksSendSubscribe is the method name for sending a task and subscribing to updates.
	MethodTasksSendSubscribe = "tasks/sendSubscribe"
	// MethodTasksGet is the method name for getting a task.
	MethodTasksGet = "tasks/get"
	// MethodTasksCancel is the method name for canceling a task.
	MethodTasksCancel = "tasks/cancel"
	// MethodTasksPushNotificationSet is the method name for setting push notification configuration.
	MethodTasksPushNotificationSet = "tasks/pushNotification/set"
	// MethodTasksPushNotificationGet is the method name for getting push notification configuration.
	MethodTasksPushNotificationGet = "tasks/pushNotification/get"
	// MethodTasksResubscribe is the method name for resubscribing to task updates.
	MethodTasksResubscribe = "tasks/resubscribe"
)

// IsStreamingMethod reports whether responses to method are delivered as a server-sent event stream.
func IsStreamingMethod(method string) bool {
	return method == MethodTasksSendSubscribe || method == MethodTasksResubscribe
}

// NewJSONRPCRequest builds a request for method with params encoded as its parameters.
func NewJSONRPCRequest(id any, method string, params any) (*JSONRPCRequest, error) {
	req := &JSONRPCRequest{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion, ID: id},
		Method:         method,
	}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", method, err)
		}
		req.Params = b
	}
	return req, nil
}

// DecodeParams decodes the parameters of req into dst.
//
// A missing or malformed params object is reported as an InvalidParams error.
func (req *JSONRPCRequest) DecodeParams(dst any) error {
	if len(req.Params) == 0 {
		return NewInvalidParamsError("params are required")
	}
	if err := json.Unmarshal(req.Params, dst); err != nil {
		return NewInvalidParamsError(err.Error())
	}
	return nil
}

// Validate checks the envelope of req.
func (req *JSONRPCRequest) Validate() error {
	if req.JSONRPC != JSONRPCVersion {
		return NewInvalidRequestError(fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC))
	}
	if req.Method == "" {
		return NewInvalidRequestError("method is required")
	}
	return nil
}

// Validate checks the fields every tasks/send call must carry.
func (p *TaskSendParams) Validate() error {
	if p.ID == "" {
		return NewInvalidParamsError("task id is required")
	}
	switch p.Message.Role {
	case RoleUser, RoleAgent:
	default:
		return NewInvalidParamsError(fmt.Sprintf("invalid message role %q", p.Message.Role))
	}
	if p.PushNotification != nil && p.PushNotification.URL == "" {
		return NewInvalidParamsError("push notification URL is missing")
	}
	return nil
}
