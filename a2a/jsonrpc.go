// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"

	"github.com/go-json-experiment/json/jsontext"
)

// JSONRPCVersion is the only protocol version spoken.
const JSONRPCVersion = "2.0"

// JSONRPCMessage is the base structure for all JSON-RPC 2.0 messages.
type JSONRPCMessage struct {
	// JSONRPC version, always "2.0".
	JSONRPC string `json:"jsonrpc"`
	// ID is a unique identifier for the request/response correlation.
	ID any `json:"id,omitempty"` // string, number, or null
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPCMessage `json:",inline"`
	// Method identifies the operation to perform.
	Method string `json:"method"`
	// Params contains the undecoded parameters for the method.
	Params jsontext.Value `json:"params,omitzero"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
//
// Result and Error are mutually exclusive.
type JSONRPCResponse struct {
	JSONRPCMessage `json:",inline"`
	Result         any           `json:"result,omitzero"`
	Error          *JSONRPCError `json:"error,omitempty"`
}

// RawJSONRPCResponse is a [JSONRPCResponse] whose result has not been decoded yet.
type RawJSONRPCResponse struct {
	JSONRPCMessage `json:",inline"`
	Result         jsontext.Value `json:"result,omitzero"`
	Error          *JSONRPCError  `json:"error,omitempty"`
}

// NewJSONRPCResponse returns a successful response to the request identified by id.
func NewJSONRPCResponse(id, result any) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion, ID: id},
		Result:         result,
	}
}

// NewJSONRPCErrorResponse returns an error response to the request identified by id.
func NewJSONRPCErrorResponse(id any, err *JSONRPCError) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion, ID: id},
		Error:          err,
	}
}

// Standard JSON-RPC 2.0 error codes
const (
	// JSONParseErrorCode indicates invalid JSON payload.
	JSONParseErrorCode = -32700
	// InvalidRequestErrorCode indicates request payload validation error.
	InvalidRequestErrorCode = -32600
	// MethodNotFoundErrorCode indicates the method does not exist.
	MethodNotFoundErrorCode = -32601
	// InvalidParamsErrorCode indicates invalid method parameters.
	InvalidParamsErrorCode = -32602
	// InternalErrorCode indicates an internal server error.
	InternalErrorCode = -32603
)

// Task protocol error codes
const (
	// TaskNotFoundErrorCode indicates the specified task ID was not found.
	TaskNotFoundErrorCode = -32001
	// TaskNotCancelableErrorCode indicates the task is in a final state and cannot be canceled.
	TaskNotCancelableErrorCode = -32002
	// PushNotificationNotSupportedErrorCode indicates the agent does not support push notifications.
	PushNotificationNotSupportedErrorCode = -32003
	// UnsupportedOperationErrorCode indicates the requested operation is not supported.
	UnsupportedOperationErrorCode = -32004
	// ContentTypeNotSupportedErrorCode indicates a mismatch in supported content types.
	ContentTypeNotSupportedErrorCode = -32005
)

// JSONRPCError represents a JSON-RPC 2.0 error. It is also a Go error, so protocol
// failures flow through ordinary error returns and are recovered with [errors.As].
type JSONRPCError struct {
	// Code is the error code.
	Code int `json:"code"`
	// Message is a short description of the error.
	Message string `json:"message"`
	// Data contains optional additional error details.
	Data any `json:"data,omitempty"`
}

var _ error = (*JSONRPCError)(nil)

// Error implements error.
func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Is reports whether target is a [*JSONRPCError] with the same code.
func (e *JSONRPCError) Is(target error) bool {
	t, ok := target.(*JSONRPCError)
	return ok && t.Code == e.Code
}

var defaultErrorMessages = map[int]string{
	JSONParseErrorCode:                    "Invalid JSON payload",
	InvalidRequestErrorCode:               "Request payload validation error",
	MethodNotFoundErrorCode:               "Method not found",
	InvalidParamsErrorCode:                "Invalid parameters",
	InternalErrorCode:                     "Internal error",
	TaskNotFoundErrorCode:                 "Task not found",
	TaskNotCancelableErrorCode:            "Task cannot be canceled",
	PushNotificationNotSupportedErrorCode: "Push Notification is not supported",
	UnsupportedOperationErrorCode:         "This operation is not supported",
	ContentTypeNotSupportedErrorCode:      "Incompatible content types",
}

// NewJSONRPCError returns an error with the given code. An empty message is replaced
// by the default description of code.
func NewJSONRPCError(code int, message string) *JSONRPCError {
	if message == "" {
		message = defaultErrorMessages[code]
	}
	return &JSONRPCError{Code: code, Message: message}
}

// NewJSONParseError creates a new JSONParseError.
func NewJSONParseError(message string) *JSONRPCError {
	return NewJSONRPCError(JSONParseErrorCode, message)
}

// NewInvalidRequestError creates a new InvalidRequestError.
func NewInvalidRequestError(message string) *JSONRPCError {
	return NewJSONRPCError(InvalidRequestErrorCode, message)
}

// NewMethodNotFoundError creates a new MethodNotFoundError.
func NewMethodNotFoundError(method string) *JSONRPCError {
	e := NewJSONRPCError(MethodNotFoundErrorCode, "")
	if method != "" {
		e.Data = map[string]any{"method": method}
	}
	return e
}

// NewInvalidParamsError creates a new InvalidParamsError.
func NewInvalidParamsError(message string) *JSONRPCError {
	return NewJSONRPCError(InvalidParamsErrorCode, message)
}

// NewInternalError creates a new InternalError.
func NewInternalError(message string) *JSONRPCError {
	return NewJSONRPCError(InternalErrorCode, message)
}

// NewTaskNotFoundError creates a new TaskNotFoundError.
func NewTaskNotFoundError(taskID string) *JSONRPCError {
	e := NewJSONRPCError(TaskNotFoundErrorCode, "")
	if taskID != "" {
		e.Data = map[string]any{"id": taskID}
	}
	return e
}

// NewTaskNotCancelableError creates a new TaskNotCancelableError.
func NewTaskNotCancelableError(taskID string) *JSONRPCError {
	e := NewJSONRPCError(TaskNotCancelableErrorCode, "")
	if taskID != "" {
		e.Data = map[string]any{"id": taskID}
	}
	return e
}

// NewPushNotificationNotSupportedError creates a new PushNotificationNotSupportedError.
func NewPushNotificationNotSupportedError() *JSONRPCError {
	return NewJSONRPCError(PushNotificationNotSupportedErrorCode, "")
}

// NewUnsupportedOperationError creates a new UnsupportedOperationError.
func NewUnsupportedOperationError(message string) *JSONRPCError {
	return NewJSONRPCError(UnsupportedOperationErrorCode, message)
}

// NewContentTypeNotSupportedError creates a new ContentTypeNotSupportedError.
func NewContentTypeNotSupportedError(message string) *JSONRPCError {
	return NewJSONRPCError(ContentTypeNotSupportedErrorCode, message)
}
