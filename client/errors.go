// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-a2a/sqlexcel/a2a"
)

// ClientError is implemented by every error returned from a [Client] call.
type ClientError interface {
	error
	Code() int
	Message() string
	IsRetryable() bool
}

// RPCError is a JSON-RPC error answered by the agent.
type RPCError struct {
	Method string
	Err    *a2a.JSONRPCError
}

var _ ClientError = (*RPCError)(nil)

// NewRPCError creates a new RPCError.
func NewRPCError(method string, err *a2a.JSONRPCError) *RPCError {
	return &RPCError{Method: method, Err: err}
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Err.Data != nil {
		return fmt.Sprintf("%s: rpc error: code = %d, message = %s, data = %v", e.Method, e.Err.Code, e.Err.Message, e.Err.Data)
	}
	return fmt.Sprintf("%s: rpc error: code = %d, message = %s", e.Method, e.Err.Code, e.Err.Message)
}

func (e *RPCError) Code() int         { return e.Err.Code }
func (e *RPCError) Message() string   { return e.Err.Message }
func (e *RPCError) IsRetryable() bool { return e.Err.Code == a2a.InternalErrorCode }
func (e *RPCError) Unwrap() error     { return e.Err }

// HTTPError is a non-2xx HTTP answer.
type HTTPError struct {
	StatusCode int
	Msg        string
	Err        error
}

var _ ClientError = (*HTTPError)(nil)

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, message string, err error) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Msg:        message,
		Err:        err,
	}
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP error %d: %s: %v", e.StatusCode, e.Msg, e.Err)
	}
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Msg)
}

func (e *HTTPError) Code() int       { return e.StatusCode }
func (e *HTTPError) Message() string { return e.Msg }
func (e *HTTPError) Unwrap() error   { return e.Err }

// IsRetryable reports whether the status code is worth another attempt.
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
}

// NetworkError is a failure to reach the agent or to read its answer.
type NetworkError struct {
	Msg string
	Err error
}

var _ ClientError = (*NetworkError)(nil)

// NewNetworkError creates a new NetworkError.
func NewNetworkError(message string, err error) *NetworkError {
	return &NetworkError{
		Msg: message,
		Err: err,
	}
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("network error: %s", e.Msg)
}

func (e *NetworkError) Code() int         { return http.StatusServiceUnavailable }
func (e *NetworkError) Message() string   { return e.Msg }
func (e *NetworkError) IsRetryable() bool { return true }
func (e *NetworkError) Unwrap() error     { return e.Err }

// ValidationError reports a request or a response that does not satisfy the protocol.
type ValidationError struct {
	Field string
	Msg   string
}

var _ ClientError = (*ValidationError)(nil)

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Msg: message}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("validation error: %s", e.Msg)
}

func (e *ValidationError) Code() int         { return a2a.InvalidParamsErrorCode }
func (e *ValidationError) Message() string   { return e.Msg }
func (e *ValidationError) IsRetryable() bool { return false }

// DiscoveryError is a failure to resolve the agent card of an agent.
type DiscoveryError struct {
	BaseURL string
	Err     error
}

var _ ClientError = (*DiscoveryError)(nil)

// NewDiscoveryError creates a new DiscoveryError.
func NewDiscoveryError(baseURL string, err error) *DiscoveryError {
	return &DiscoveryError{BaseURL: baseURL, Err: err}
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("resolve agent card of %s: %v", e.BaseURL, e.Err)
}

func (e *DiscoveryError) Code() int       { return http.StatusNotFound }
func (e *DiscoveryError) Message() string { return e.Err.Error() }
func (e *DiscoveryError) Unwrap() error   { return e.Err }

// IsRetryable reports whether the underlying failure is retryable.
func (e *DiscoveryError) IsRetryable() bool {
	return IsRetryableError(e.Err)
}

// IsRPCError reports whether err carries a JSON-RPC error with the given code.
func IsRPCError(err error, code int) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code() == code
}

// IsTaskNotFoundError reports whether the task was unknown to the agent.
func IsTaskNotFoundError(err error) bool {
	return IsRPCError(err, a2a.TaskNotFoundErrorCode)
}

// IsTaskNotCancelableError reports whether the task had already finished.
func IsTaskNotCancelableError(err error) bool {
	return IsRPCError(err, a2a.TaskNotCancelableErrorCode)
}

// IsPushNotificationNotSupportedError reports whether the agent does not do push notifications.
func IsPushNotificationNotSupportedError(err error) bool {
	return IsRPCError(err, a2a.PushNotificationNotSupportedErrorCode)
}

// IsUnsupportedOperationError reports whether the agent does not support the operation.
func IsUnsupportedOperationError(err error) bool {
	return IsRPCError(err, a2a.UnsupportedOperationErrorCode)
}

// IsContentTypeNotSupportedError reports whether the accepted output modes were rejected.
func IsContentTypeNotSupportedError(err error) bool {
	return IsRPCError(err, a2a.ContentTypeNotSupportedErrorCode)
}

// IsRetryableError reports whether err is worth another attempt.
func IsRetryableError(err error) bool {
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr.IsRetryable()
	}
	return false
}
